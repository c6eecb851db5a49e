package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
)

// DefaultPopupTTL is how long an in-app popup stays on screen. The expiry
// timestamp ships with the popup so the frontend can draw the countdown.
const DefaultPopupTTL = 5 * time.Second

// seenLimit bounds the de-duplication window. At-least-once delivery means
// the same event id can arrive twice; remembering the last few thousand
// ids is enough to absorb any realistic redelivery, and FIFO eviction
// keeps memory flat.
const seenLimit = 4096

// Cue names the audible alert for an event type. New orders get the
// attention-grabbing dual tone; everything else a single chime.
func Cue(t models.NotificationType) string {
	if t == models.NotifyNewOrder {
		return "dual-tone"
	}
	return "single-tone"
}

// Popup is a rendered, auto-expiring in-app notification.
type Popup struct {
	Event     models.NotificationEvent `json:"event"`
	Cue       string                   `json:"cue"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// EventSink receives deduplicated events for fan-out to live viewers.
// The realtime hub satisfies this.
type EventSink interface {
	BroadcastEvent(ev models.NotificationEvent)
}

// Dispatcher consumes lifecycle NotificationEvents: de-duplicates by event
// id, materializes auto-expiring popups, and forwards each event once to
// the sink. Everything here is in-memory — notifications are ephemeral by
// contract and don't survive a restart.
type Dispatcher struct {
	sink   EventSink
	ttl    time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	seen      map[uuid.UUID]struct{}
	seenOrder []uuid.UUID
	popups    map[uuid.UUID]*Popup
}

func NewDispatcher(sink EventSink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		ttl:    DefaultPopupTTL,
		logger: logger,
		seen:   make(map[uuid.UUID]struct{}),
		popups: make(map[uuid.UUID]*Popup),
	}
}

// Dispatch processes one event. A duplicate id is dropped silently —
// rendered once, no matter how many times the transport delivers it.
func (d *Dispatcher) Dispatch(ev models.NotificationEvent) {
	d.mu.Lock()
	if _, dup := d.seen[ev.ID]; dup {
		d.mu.Unlock()
		return
	}
	d.remember(ev.ID)
	d.popups[ev.ID] = &Popup{
		Event:     ev,
		Cue:       Cue(ev.Type),
		ExpiresAt: time.Now().Add(d.ttl),
	}
	d.mu.Unlock()

	if d.sink != nil {
		d.sink.BroadcastEvent(ev)
	}

	d.logger.Debug("notification dispatched",
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
	)
}

// Active returns the popups still on screen at now: unread and unexpired.
// Expired popups are garbage-collected on the way through.
func (d *Dispatcher) Active(now time.Time) []Popup {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Popup, 0, len(d.popups))
	for id, p := range d.popups {
		if now.After(p.ExpiresAt) {
			delete(d.popups, id)
			continue
		}
		if p.Event.Read {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// MarkRead dismisses a popup. Returns false for an unknown id.
func (d *Dispatcher) MarkRead(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.popups[id]
	if !ok {
		return false
	}
	p.Event.Read = true
	return true
}

// remember records an id in the dedupe set, evicting FIFO past seenLimit.
// Caller holds d.mu.
func (d *Dispatcher) remember(id uuid.UUID) {
	d.seen[id] = struct{}{}
	d.seenOrder = append(d.seenOrder, id)
	if len(d.seenOrder) > seenLimit {
		oldest := d.seenOrder[0]
		d.seenOrder = d.seenOrder[1:]
		delete(d.seen, oldest)
		delete(d.popups, oldest)
	}
}
