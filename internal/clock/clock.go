// Package clock abstracts the time operations used by the flush scheduler so
// tests can drive the periodic timer deterministically.
//
// Production code uses Real(). Tests use Fake(), which stands still until
// Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := scheduler.New(q, client, scheduler.Options{Clock: c})
//	s.Start()
//	c.WaitForTickers(1)
//	c.Advance(30 * time.Second)
package clock

import "time"

// Clock is the subset of the time package the scheduler depends on.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called. C has capacity 1; ticks
// are dropped when the consumer falls behind, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
