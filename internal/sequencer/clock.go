package sequencer

import (
	"context"
	"time"
)

// Clock paces the draw loop. Tick waits for the next display refresh; Now
// is the time the loop measures clip progress against.
type Clock interface {
	Tick(ctx context.Context) error
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// FrameClock ticks at a fixed frame rate in wall-clock time.
type FrameClock struct {
	ticker *time.Ticker
}

func NewFrameClock(fps int) *FrameClock {
	if fps <= 0 {
		fps = 30
	}
	return &FrameClock{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (c *FrameClock) Tick(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

func (c *FrameClock) Sleep(ctx context.Context, d time.Duration) error {
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

func (c *FrameClock) Now() time.Time {
	return time.Now()
}

func (c *FrameClock) Stop() {
	c.ticker.Stop()
}
