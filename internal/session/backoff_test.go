package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 8 * time.Second, Factor: 2.0, MaxAttempts: 10}

	assert.Equal(t, 500*time.Millisecond, b.Delay(1))
	assert.Equal(t, 1*time.Second, b.Delay(2))
	assert.Equal(t, 2*time.Second, b.Delay(3))
	assert.Equal(t, 4*time.Second, b.Delay(4))
	assert.Equal(t, 8*time.Second, b.Delay(5))
	// capped from here on
	assert.Equal(t, 8*time.Second, b.Delay(6))
	assert.Equal(t, 8*time.Second, b.Delay(20))
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 8 * time.Second, Factor: 2.0, MaxAttempts: 3}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(-5))
}

func TestBackoffExhausted(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 8 * time.Second, Factor: 2.0, MaxAttempts: 3}

	assert.False(t, b.Exhausted(1))
	assert.False(t, b.Exhausted(3))
	assert.True(t, b.Exhausted(4))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateIdle, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateReconnecting, true},
		{StateConnected, StateReconnecting, true},
		{StateReconnecting, StateConnected, true},
		{StateConnected, StateClosed, true},
		{StateReconnecting, StateClosed, true},
		{StateIdle, StateClosed, true},
		{StateClosed, StateConnecting, false},
		{StateClosed, StateClosed, false},
		{StateIdle, StateConnected, false},
		{StateConnected, StateConnecting, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
