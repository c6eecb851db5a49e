package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koombo/koombo/internal/models"
)

var allStatuses = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusPreparing,
	models.StatusReady,
	models.StatusDelivered,
	models.StatusCancelled,
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[models.OrderStatus]map[models.OrderStatus]bool{
		models.StatusPending:   {models.StatusConfirmed: true, models.StatusCancelled: true},
		models.StatusConfirmed: {models.StatusPreparing: true, models.StatusCancelled: true},
		models.StatusPreparing: {models.StatusReady: true, models.StatusCancelled: true},
		models.StatusReady:     {models.StatusDelivered: true},
		models.StatusDelivered: {},
		models.StatusCancelled: {},
	}

	// Walk every (from, to) pair so a graph edit can't slip past unnoticed.
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[from][to], got, "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionSameStatusNotAnEdge(t *testing.T) {
	t.Parallel()

	// Idempotent re-submission is handled by the service before the graph;
	// the graph itself never contains self-loops.
	for _, s := range allStatuses {
		assert.False(t, CanTransition(s, s), "self-loop on %s", s)
	}
}

func TestCancellationWindow(t *testing.T) {
	t.Parallel()

	// Cancellation closes once the order is ready: the food exists.
	assert.True(t, CanTransition(models.StatusPending, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusConfirmed, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusPreparing, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusReady, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusDelivered, models.StatusCancelled))
}

func TestInvalidTransitionErrorNamesThePair(t *testing.T) {
	t.Parallel()

	err := &InvalidTransitionError{From: models.StatusPending, To: models.StatusReady}
	assert.Equal(t, "invalid order transition: pending -> ready", err.Error())
}
