package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/koombo/koombo/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds the per-subscriber queue. A viewer that can't
	// drain 64 pushes is gone or hopeless; we drop the connection and let
	// it reconnect-and-reconcile rather than buffer without limit.
	sendBuffer = 64
)

// push is one websocket frame to a viewer. Exactly one of Order or Event
// is set, discriminated by Type.
type push struct {
	Type  string                    `json:"type"`
	Order *models.Order             `json:"order,omitempty"`
	Event *models.NotificationEvent `json:"event,omitempty"`
}

// Hub fans committed order changes and notification events out to every
// connected viewer whose predicate matches.
//
// Delivery is at-least-once: the feed may hand the hub the same state
// twice (redis redelivery, reconciliation re-fetch), and frames can arrive
// out of order across a reconnect. Each subscriber therefore keys on
// (order id, updated_at) and silently drops pushes older than what it
// already delivered for that order.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers enforce same-origin on cookies, not websockets;
			// auth happens via the JWT before the upgrade, so any origin
			// may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// BroadcastOrder delivers an order state to every matching subscriber.
func (h *Hub) BroadcastOrder(o *models.Order) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.pred.Matches(o) {
			sub.offerOrder(o)
		}
	}
}

// BroadcastEvent delivers a notification event (popup/sound trigger) to
// every subscriber whose predicate covers the event's tenant.
func (h *Hub) BroadcastEvent(ev models.NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.pred.OrderID != nil && *sub.pred.OrderID != ev.OrderID {
			continue
		}
		if sub.pred.TenantID != nil && ev.TenantID != nil && *sub.pred.TenantID != *ev.TenantID {
			continue
		}
		sub.offer(push{Type: "event", Event: &ev})
	}
}

// Predicates snapshots the active subscriptions, for feed reconciliation.
func (h *Hub) Predicates() []Predicate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	preds := make([]Predicate, 0, len(h.subs))
	for sub := range h.subs {
		preds = append(preds, sub.pred)
	}
	return preds
}

// ServeWS upgrades an HTTP request to a websocket subscription scoped to
// the given predicate and pumps until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, pred Predicate) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{
		hub:      h,
		conn:     conn,
		send:     make(chan push, sendBuffer),
		pred:     pred,
		lastSeen: make(map[uuid.UUID]time.Time),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.writePump()
	go sub.readPump()
	return nil
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan push
	pred Predicate

	// mu guards lastSeen and closed — BroadcastOrder runs on the feed
	// goroutine while the write pump drains.
	//
	// lastSeen implements the stale-drop: the newest updated_at delivered
	// per order id.
	mu       sync.Mutex
	closed   bool
	lastSeen map[uuid.UUID]time.Time
}

// close seals the send channel exactly once. After this, offer becomes a
// no-op for the subscriber.
func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

// offerOrder queues an order push unless it is staler than what this
// subscriber already got for the same order.
func (s *subscriber) offerOrder(o *models.Order) {
	s.mu.Lock()
	if last, ok := s.lastSeen[o.ID]; ok && o.UpdatedAt.Before(last) {
		s.mu.Unlock()
		return
	}
	s.lastSeen[o.ID] = o.UpdatedAt
	s.mu.Unlock()

	s.offer(push{Type: "order", Order: o})
}

// offer queues a push without blocking. A full buffer means the client
// stopped draining; seal the subscriber and detach it from the hub off the
// broadcast path (broadcasts hold the hub's read lock) — reconnection
// reconciles whatever the client missed.
func (s *subscriber) offer(p push) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	select {
	case s.send <- p:
		s.mu.Unlock()
	default:
		s.closed = true
		close(s.send)
		s.mu.Unlock()
		s.hub.logger.Warn("dropping slow realtime subscriber")
		go s.hub.drop(s)
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case p, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(p); err != nil {
				s.hub.drop(s)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.drop(s)
				return
			}
		}
	}
}

// readPump discards inbound frames (the subscription is one-way) but keeps
// the read side alive for pong handling and close detection.
func (s *subscriber) readPump() {
	defer func() {
		s.hub.drop(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
