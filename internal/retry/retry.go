// Package retry runs platform operations under a bounded failure budget with
// a convex backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/seat-scheduler/internal/status"
)

const (
	DefaultBase       = 2 * time.Second
	DefaultMaxPenalty = 5 * time.Second
)

// Policy holds the backoff parameters shared by every loop.
type Policy struct {
	Base       time.Duration
	MaxPenalty time.Duration

	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used in production: 2s plus up to 5s penalty.
func Default() Policy {
	return Policy{Base: DefaultBase, MaxPenalty: DefaultMaxPenalty}
}

// Loop describes one bounded retry loop.
type Loop struct {
	Name        string
	MaxFailures int
	Op          func(ctx context.Context) status.Code

	// Terminal classifies codes that stop the loop at once. Nil uses
	// status.Code.Terminal.
	Terminal func(status.Code) bool

	// OnRetry runs after the penalty sleep and before the next attempt.
	OnRetry func(code status.Code, failed int)
}

// Penalty returns the wait after the failed-th failure:
// Base + (failed/maxFailures)^2 * MaxPenalty.
func (p Policy) Penalty(failed, maxFailures int) time.Duration {
	if maxFailures <= 0 {
		return p.Base + p.MaxPenalty
	}
	ratio := float64(failed) / float64(maxFailures)
	return p.Base + time.Duration(ratio*ratio*float64(p.MaxPenalty))
}

// Loop runs l.Op until it succeeds, hits a terminal code, or fails more than
// l.MaxFailures times, in which case it returns status.LoopFailed.
func (p Policy) Loop(ctx context.Context, l Loop) status.Code {
	terminal := l.Terminal
	if terminal == nil {
		terminal = status.Code.Terminal
	}

	failed := 0
	code := l.Op(ctx)
	for code != status.Success {
		failed++
		if terminal(code) {
			return code
		}
		if failed > l.MaxFailures {
			log.Debug().Str("loop", l.Name).Int("failed", failed).Stringer("last", code).Msg("retry budget exhausted")
			return status.LoopFailed
		}
		if err := p.Wait(ctx, p.Penalty(failed, l.MaxFailures)); err != nil {
			return status.LoopFailed
		}
		if l.OnRetry != nil {
			l.OnRetry(code, failed)
		}
		code = l.Op(ctx)
	}
	return status.Success
}

// Wait sleeps d with the policy's sleep function.
func (p Policy) Wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
