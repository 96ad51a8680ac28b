package tracer

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter rate-limits "keep" decisions to a configured number per
// second with fractional carry-over, wrapping golang.org/x/time/rate's
// token bucket with the rolling 1-second allowed/denied bookkeeping needed
// to report an effective_rate metric, which rate.Limiter alone does not
// expose.
type rateLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	window   time.Time
	allowed  float64
	denied   float64
	clock    Clock
}

func newRateLimiter(capacity float64, clock Clock) *rateLimiter {
	if capacity <= 0 {
		capacity = defaultRateLimit
	}
	if clock == nil {
		clock = realClock{}
	}
	burst := int(capacity)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(capacity), burst),
		window:  clock.Now(),
		clock:   clock,
	}
}

const defaultRateLimit = 100.0

// allow reports whether a new "keep" decision may proceed and the current
// effective rate: the fraction of decisions allowed within the current
// rolling 1-second window.
func (l *rateLimiter) allow() (bool, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.window) >= time.Second {
		l.window = now
		l.allowed = 0
		l.denied = 0
	}

	ok := l.limiter.AllowN(now, 1)
	if ok {
		l.allowed++
	} else {
		l.denied++
	}

	total := l.allowed + l.denied
	if total == 0 {
		return ok, 1.0
	}
	return ok, l.allowed / total
}
