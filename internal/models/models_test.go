package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"Pending to Confirmed", StatusPending, StatusConfirmed, true},
		{"Pending to Failed", StatusPending, StatusFailed, true},
		{"Pending to Cancelled", StatusPending, StatusCancelled, true},
		{"Confirmed is terminal", StatusConfirmed, StatusPending, false},
		{"Confirmed to Cancelled", StatusConfirmed, StatusCancelled, false},
		{"Failed is terminal", StatusFailed, StatusConfirmed, false},
		{"Cancelled is terminal", StatusCancelled, StatusFailed, false},
		{"unknown status", "Refunded", StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(StatusPending, StatusConfirmed))

	err := ValidateTransition(StatusConfirmed, StatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid booking transition")

	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusConfirmed, tErr.From)
	assert.Equal(t, StatusFailed, tErr.To)
}

func TestBookingTerminal(t *testing.T) {
	b := &Booking{ID: "REC-1", Status: StatusPending}
	assert.False(t, b.Terminal())
	assert.Equal(t, "REC-1", b.PaymentReference())

	b.Status = StatusConfirmed
	assert.True(t, b.Terminal())
}
