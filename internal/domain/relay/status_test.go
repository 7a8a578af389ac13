package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{StatusCreated, StatusDispatched, StatusAcknowledged, StatusFulfilled, StatusFailed, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusCreated, StatusDispatched}:      true,
		{StatusCreated, StatusCancelled}:       true,
		{StatusCreated, StatusFailed}:          true,
		{StatusDispatched, StatusAcknowledged}: true,
		{StatusDispatched, StatusFailed}:       true,
		{StatusDispatched, StatusCancelled}:    true,
		{StatusAcknowledged, StatusFulfilled}:  true,
		{StatusAcknowledged, StatusFailed}:     true,
		{StatusFailed, StatusCreated}:          true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusAcknowledged.IsValid())
	assert.False(t, Status("SHIPPED").IsValid())
	assert.False(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.VoidsOrder())
}
