package platform

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickSource produces the tick stream for one run. The returned stop
// function must be safe to call more than once.
type TickSource interface {
	Start(ticksPerSecond int) (<-chan time.Time, func())
}

// ClockSource fires ticks at a fixed rate from a clock. A nil Clock uses
// the wall clock.
type ClockSource struct {
	Clock clock.Clock
}

func (s ClockSource) Start(ticksPerSecond int) (<-chan time.Time, func()) {
	c := s.Clock
	if c == nil {
		c = clock.New()
	}
	if ticksPerSecond <= 0 {
		ticksPerSecond = DefaultTicksPerSecond
	}
	ticker := c.Ticker(time.Second / time.Duration(ticksPerSecond))
	var once sync.Once
	return ticker.C, func() { once.Do(ticker.Stop) }
}

// FreeRunSource delivers ticks back to back with no pacing. Every tick is
// delivered; none are dropped while the consumer is busy.
type FreeRunSource struct{}

func (FreeRunSource) Start(int) (<-chan time.Time, func()) {
	ticks := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ticks <- time.Time{}:
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return ticks, func() { once.Do(func() { close(done) }) }
}
