package memory

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrOutOfMemory is returned when an allocation would exceed the memory limit.
// It is the only error the retry loop recovers from.
var ErrOutOfMemory = errors.New("memory: limit exceeded")

// IsOutOfMemory reports whether err signals a refused allocation.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}

// Config holds resource limits.
type Config struct {
	// LimitBytes is the hard limit for chunk payload memory.
	// If 0, usage is only tracked.
	LimitBytes int64

	// ReserveBytes is held back from the limit while the grid runs normally
	// and handed out during eviction, so the swap path has room to work.
	ReserveBytes int64

	// MaxBackgroundWorkers bounds concurrent flushes. If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec caps swap traffic. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller accounts chunk memory against a limit and meters swap IO.
// A nil *Controller is valid and imposes no limits.
type Controller struct {
	cfg Config

	memSem   *semaphore.Weighted // nil if unlimited
	memUsed  atomic.Int64
	reserved atomic.Int64

	bgSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller and charges the reserve up front.
func NewController(cfg Config) (*Controller, error) {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}
	if cfg.LimitBytes > 0 && cfg.ReserveBytes >= cfg.LimitBytes {
		return nil, errors.Newf("memory: reserve of %d bytes does not fit the %d byte limit",
			cfg.ReserveBytes, cfg.LimitBytes)
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.LimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.LimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	if err := c.ReplenishReserve(); err != nil {
		return nil, err
	}
	return c, nil
}

// AcquireMemory reserves bytes without blocking and returns ErrOutOfMemory
// when the limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return errors.WithDetailf(ErrOutOfMemory, "requested %d bytes, %d of %d in use",
			bytes, c.memUsed.Load()+c.reserved.Load(), c.cfg.LimitBytes)
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes obtained from AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// ClearReserve releases the reserve so that the eviction path can allocate.
func (c *Controller) ClearReserve() {
	if c == nil {
		return
	}
	if n := c.reserved.Swap(0); n > 0 && c.memSem != nil {
		c.memSem.Release(n)
	}
}

// ReplenishReserve takes the reserve back. It fails with ErrOutOfMemory while
// chunk payloads occupy the room.
func (c *Controller) ReplenishReserve() error {
	if c == nil || c.cfg.ReserveBytes <= 0 || c.reserved.Load() > 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(c.cfg.ReserveBytes) {
		return errors.Wrap(ErrOutOfMemory, "replenish reserve")
	}
	c.reserved.Store(c.cfg.ReserveBytes)
	return nil
}

// MemoryUsage returns the bytes held by chunk payloads.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// Reserved returns the bytes currently held as reserve.
func (c *Controller) Reserved() int64 {
	if c == nil {
		return 0
	}
	return c.reserved.Load()
}

// MemoryLimit returns the configured limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.LimitBytes
}

// AcquireBackground reserves a background worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// MaxBackgroundWorkers returns the number of background slots.
func (c *Controller) MaxBackgroundWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxBackgroundWorkers)
}

// AcquireIO waits until the IO limit allows bytes. Requests larger than the
// limiter burst are split into burst-sized waits.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
