package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c, err := NewController(Config{LimitBytes: 100})
	require.NoError(t, err)

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	err = c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.True(t, IsOutOfMemory(err))
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c, err := NewController(Config{})
	require.NoError(t, err)

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1 << 40)
	c.ClearReserve()
	require.NoError(t, c.ReplenishReserve())
	require.NoError(t, c.AcquireIO(t.Context(), 1<<20))
	assert.Zero(t, c.MemoryUsage())
	assert.True(t, c.TryAcquireBackground())
}

func TestController_Reserve(t *testing.T) {
	_, err := NewController(Config{LimitBytes: 100, ReserveBytes: 100})
	require.Error(t, err)

	c, err := NewController(Config{LimitBytes: 100, ReserveBytes: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(30), c.Reserved())

	require.NoError(t, c.AcquireMemory(70))
	assert.ErrorIs(t, c.AcquireMemory(1), ErrOutOfMemory)

	c.ClearReserve()
	assert.Zero(t, c.Reserved())
	require.NoError(t, c.AcquireMemory(10))

	assert.ErrorIs(t, c.ReplenishReserve(), ErrOutOfMemory)
	assert.Zero(t, c.Reserved())

	c.ReleaseMemory(40)
	require.NoError(t, c.ReplenishReserve())
	assert.Equal(t, int64(30), c.Reserved())
	assert.Equal(t, int64(40), c.MemoryUsage())

	// Replenishing a full reserve is a no-op.
	require.NoError(t, c.ReplenishReserve())
	assert.Equal(t, int64(30), c.Reserved())
}

func TestController_Concurrency(t *testing.T) {
	c, err := NewController(Config{MaxBackgroundWorkers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.MaxBackgroundWorkers())

	require.NoError(t, c.AcquireBackground(context.Background()))
	require.NoError(t, c.AcquireBackground(context.Background()))

	assert.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()

	assert.True(t, c.TryAcquireBackground())
}

func TestController_IO(t *testing.T) {
	c, err := NewController(Config{IOLimitBytesPerSec: 1000})
	require.NoError(t, err)

	// The first burst is free, anything beyond waits for tokens.
	require.NoError(t, c.AcquireIO(context.Background(), 1000))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireIO(ctx, 2500))
}
