package memory

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/gridstore/internal/chunk"
)

// Environment frees memory on behalf of the retry loop.
type Environment interface {
	// ClearReserve hands the reserved headroom to the eviction path.
	ClearReserve()
	// EvictExcept swaps out resident chunks other than keep and returns how
	// many were released. Zero means nothing more can be freed.
	EvictExcept(ctx context.Context, keep chunk.ID) (int, error)
	// ReplenishReserve takes the headroom back after eviction.
	ReplenishReserve() error
}

// State is a step of the retry loop.
type State int

const (
	Attempting State = iota
	Succeeded
	OutOfMemory
	ClearingReserve
	RequestingEviction
	EvictionFailed
	EvictionSucceeded
	ReplenishingReserve
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case OutOfMemory:
		return "out-of-memory"
	case ClearingReserve:
		return "clearing-reserve"
	case RequestingEviction:
		return "requesting-eviction"
	case EvictionFailed:
		return "eviction-failed"
	case EvictionSucceeded:
		return "eviction-succeeded"
	case ReplenishingReserve:
		return "replenishing-reserve"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is reported to the observer on every state the loop enters.
type Event struct {
	State   State
	Attempt int
	Keep    chunk.ID
	// Freed is set on EvictionSucceeded.
	Freed int
	// Err is the allocation failure on OutOfMemory, or the eviction error on
	// EvictionFailed when there was one.
	Err error
}

// DefaultMaxAttempts bounds the loop when Policy.MaxAttempts is unset.
const DefaultMaxAttempts = 16

// Policy configures the retry loop.
type Policy struct {
	// MaxAttempts bounds the number of times the operation runs.
	MaxAttempts int
	// Observer, if set, sees every state transition.
	Observer func(Event)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) observe(e Event) {
	if p.Observer != nil {
		p.Observer(e)
	}
}

// Retry runs op and, whenever it fails with ErrOutOfMemory, clears the
// reserve, asks env to evict everything but keep, replenishes the reserve and
// runs op again. op must fail before mutating anything when it cannot
// allocate.
//
// The loop ends with the first result of op that is not an out-of-memory
// error. When eviction frees nothing, fails, or MaxAttempts runs out, the
// original allocation error is returned unchanged.
func Retry[R any](ctx context.Context, env Environment, p Policy, keep chunk.ID, op func() (R, error)) (R, error) {
	var (
		res     R
		oom     error
		attempt int
		freed   int
		evErr   error
	)
	state := Attempting
	for {
		switch state {
		case Attempting:
			attempt++
			p.observe(Event{State: state, Attempt: attempt, Keep: keep})
			var err error
			res, err = op()
			switch {
			case err == nil:
				state = Succeeded
			case IsOutOfMemory(err) && env != nil:
				oom = err
				state = OutOfMemory
			default:
				return res, err
			}

		case Succeeded:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep})
			return res, nil

		case OutOfMemory:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep, Err: oom})
			if attempt >= p.maxAttempts() {
				state = Exhausted
			} else {
				state = ClearingReserve
			}

		case ClearingReserve:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep})
			env.ClearReserve()
			state = RequestingEviction

		case RequestingEviction:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep})
			if err := ctx.Err(); err != nil {
				_ = env.ReplenishReserve()
				return res, errors.CombineErrors(oom, err)
			}
			freed, evErr = env.EvictExcept(ctx, keep)
			if evErr != nil || freed <= 0 {
				state = EvictionFailed
			} else {
				state = EvictionSucceeded
			}

		case EvictionFailed:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep, Err: evErr})
			_ = env.ReplenishReserve()
			return res, oom

		case EvictionSucceeded:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep, Freed: freed})
			state = ReplenishingReserve

		case ReplenishingReserve:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep})
			// A reserve that does not fit yet is retried on the next round.
			if err := env.ReplenishReserve(); err != nil && !IsOutOfMemory(err) {
				return res, err
			}
			state = Attempting

		case Exhausted:
			p.observe(Event{State: state, Attempt: attempt, Keep: keep, Err: oom})
			_ = env.ReplenishReserve()
			return res, oom

		default:
			return res, errors.AssertionFailedf("retry: unexpected state %s", state)
		}
	}
}

// Do is Retry for operations without a result.
func Do(ctx context.Context, env Environment, p Policy, keep chunk.ID, op func() error) error {
	_, err := Retry(ctx, env, p, keep, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
