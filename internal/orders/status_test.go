package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInTransit, StatusShipped, true},
		{StatusInTransit, StatusCancelled, true},
		{StatusInTransit, StatusReturned, true},
		{StatusInTransit, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusReturned, true},
		{StatusCancelled, StatusInTransit, false},
		{StatusReturned, StatusShipped, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, StatusInTransit.Cancellable())
	assert.False(t, StatusShipped.Cancellable())
	assert.False(t, StatusDelivered.Cancellable())
	assert.False(t, StatusCancelled.Cancellable())
	assert.False(t, StatusReturned.Cancellable())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusInTransit.Valid())
	assert.False(t, Status("Lost").Valid())
}
