package poll

import (
	"context"
	"time"
)

// Reference intervals.
const (
	LobbyInterval = 5 * time.Second
	GameInterval  = 3 * time.Second
)

// Loop calls Tick, waits Interval, and repeats. The next call is scheduled only
// after the current one returns, so slow responses never overlap.
type Loop struct {
	Interval  time.Duration
	Immediate bool            // tick once before the first wait
	Wake      <-chan struct{} // optional; a receive ends the current wait early
	Tick      func(ctx context.Context)
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (l Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = LobbyInterval
	}

	if l.Immediate {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Tick(ctx)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-l.Wake:
			timer.Stop()
		}
		// the timer and cancellation can be ready together
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Tick(ctx)
		timer.Reset(interval)
	}
}
