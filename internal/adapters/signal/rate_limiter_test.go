package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("u1"), "attempt %d inside the budget", i)
	}
	assert.False(t, rl.Allow("u1"))

	// Other users have their own budget.
	assert.True(t, rl.Allow("u2"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("u1"), "window slid, budget refills")
}

func TestJoinRateLimiterDisabled(t *testing.T) {
	rl := NewJoinRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("u1"))
	}
}
