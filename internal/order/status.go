package order

import (
	"fmt"

	"github.com/koombo/koombo/internal/models"
)

// transitions is the full lifecycle graph:
//
//	pending → confirmed → preparing → ready → delivered
//
// with cancelled reachable from pending, confirmed, and preparing. Once an
// order is ready, the food exists — cancellation stops being an option.
// delivered and cancelled are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing: {models.StatusReady, models.StatusCancelled},
	models.StatusReady:     {models.StatusDelivered},
	models.StatusDelivered: {},
	models.StatusCancelled: {},
}

// CanTransition reports whether to is directly reachable from from.
// A same-status "transition" is not in the graph; callers treat it as an
// idempotent no-op before consulting the table.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError names the rejected pair so the operator sees
// exactly which jump was refused.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// ValidationError is a user-correctable problem with a placement request:
// empty cart, missing customer field, unknown menu item. Handlers surface
// the message as-is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
