package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   EventType
		want    Decision
	}{
		{
			name:    "connected on offline stream goes live",
			current: StatusOffline,
			event:   EventConnected,
			want:    Decision{Next: StatusLive, SetStartedAt: true},
		},
		{
			name:    "connected on live stream is a no-op",
			current: StatusLive,
			event:   EventConnected,
			want:    Decision{Next: StatusLive, NoOp: true},
		},
		{
			name:    "disconnected on live stream goes offline",
			current: StatusLive,
			event:   EventDisconnected,
			want:    Decision{Next: StatusOffline, SetEndedAt: true},
		},
		{
			name:    "disconnected on offline stream is a no-op",
			current: StatusOffline,
			event:   EventDisconnected,
			want:    Decision{Next: StatusOffline, NoOp: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, false, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_DeletedStreamRejectsEverything(t *testing.T) {
	for _, ev := range []EventType{EventConnected, EventDisconnected} {
		for _, status := range []Status{StatusLive, StatusOffline} {
			_, err := Transition(status, true, ev)
			assert.ErrorIs(t, err, ErrStreamDeleted, "event %s on deleted %s stream", ev, status)
		}
	}
}

func TestTransition_UnknownEvent(t *testing.T) {
	_, err := Transition(StatusOffline, false, EventType("exploded"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_IsIdempotentUnderRedelivery(t *testing.T) {
	// Applying the same event twice must land in the same state, with the
	// second application flagged as a no-op.
	first, err := Transition(StatusOffline, false, EventConnected)
	require.NoError(t, err)
	require.False(t, first.NoOp)

	second, err := Transition(first.Next, false, EventConnected)
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, first.Next, second.Next)
	assert.False(t, second.SetStartedAt)
}

func TestTransition_TimestampsFollowTheEdge(t *testing.T) {
	connected, err := Transition(StatusOffline, false, EventConnected)
	require.NoError(t, err)
	assert.True(t, connected.SetStartedAt)
	assert.False(t, connected.SetEndedAt)

	disconnected, err := Transition(StatusLive, false, EventDisconnected)
	require.NoError(t, err)
	assert.True(t, disconnected.SetEndedAt)
	assert.False(t, disconnected.SetStartedAt)
}

func TestTransition_NoOpNeverSetsTimestamps(t *testing.T) {
	d, err := Transition(StatusLive, false, EventConnected)
	require.NoError(t, err)
	assert.False(t, d.SetStartedAt)
	assert.False(t, d.SetEndedAt)
}

func TestTransitionError_Wrapping(t *testing.T) {
	_, err := Transition(StatusLive, false, EventType("bogus"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "bogus")
}
