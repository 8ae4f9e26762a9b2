package caption

import (
	"context"
	"time"
)

// Heartbeat runs a background liveness signal during a long-running
// pipeline stage (spec §4.6): every 30s it calls touch with a
// simulated progress value `min(85, 10 + elapsed/ETA * 75)`, so
// clients watching a video's updated_at can detect liveness even
// before real progress is known. It stops deterministically when Stop
// is called and joins within 5s.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
}

// TouchFunc persists a liveness tick: implementations typically bump
// the video's updated_at and write the simulated progress value.
type TouchFunc func(ctx context.Context, simulatedProgress float64)

// StartHeartbeat launches the background ticker. eta is the stage's
// expected total duration, used only to shape the simulated progress
// curve; it does not bound the stage's actual runtime.
func StartHeartbeat(ctx context.Context, eta time.Duration, touch TouchFunc) *Heartbeat {
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	start := time.Now()

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := time.Since(start)
				progress := simulatedProgress(elapsed, eta)
				touch(ctx, progress)
			}
		}
	}()
	return h
}

// simulatedProgress implements min(85, 10 + elapsed/ETA * 75).
func simulatedProgress(elapsed, eta time.Duration) float64 {
	if eta <= 0 {
		return 10
	}
	fraction := elapsed.Seconds() / eta.Seconds()
	value := 10 + fraction*75
	if value > 85 {
		value = 85
	}
	return value
}

// Stop signals the heartbeat to exit and blocks up to 5s for it to
// join (spec §4.6 "the worker joins within 5s").
func (h *Heartbeat) Stop() {
	close(h.stop)
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
	}
}
