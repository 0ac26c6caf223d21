package nnfind

import (
	"time"

	"golang.org/x/time/rate"
)

// cancelCheckInterval is the number of particles processed between two
// cancellation checks during a build.
const cancelCheckInterval = 1024

// ProgressFunc receives the number of processed particles out of total.
// It is called from the goroutine running Build.
type ProgressFunc func(done, total int)

// progressReporter throttles a ProgressFunc with a token bucket.
// A nil *progressReporter reports nothing.
type progressReporter struct {
	fn      ProgressFunc
	limiter *rate.Limiter // nil reports on every call
	total   int
	last    int
}

func newProgressReporter(fn ProgressFunc, total int, interval time.Duration) *progressReporter {
	if fn == nil {
		return nil
	}
	p := &progressReporter{fn: fn, total: total, last: -1}
	if interval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return p
}

func (p *progressReporter) report(done int) {
	if p == nil || done == p.last {
		return
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return
	}
	p.last = done
	p.fn(done, p.total)
}

// finish always delivers the final report.
func (p *progressReporter) finish() {
	if p == nil || p.last == p.total {
		return
	}
	p.last = p.total
	p.fn(p.total, p.total)
}
