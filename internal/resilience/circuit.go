package resilience

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/huyngo-dev/pos-terminal/internal/obs"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to test the backend.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a failure-ratio circuit breaker guarding the backend dependency.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	target       string
}

// NewBreaker constructs a breaker that opens once the failure ratio over at
// least minRequests observations reaches failureRatio, and stays open for
// openFor before sampling again.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{minRequests: minRequests, failureRatio: failureRatio, openFor: openFor}
}

// WithTarget sets the dependency label used for the state gauge.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	b.recordStateLocked()
	return b
}

// Allow reports whether a request may proceed. An open breaker admits one
// probe after the cool-off period and moves to half-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.setStateLocked(HalfOpen)
	}
	return true
}

// Report records a request outcome and advances the state machine.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.setStateLocked(Closed)
		} else {
			b.setStateLocked(Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.setStateLocked(Open)
		return
	}
	if total > b.minRequests*2 {
		// Decay counters so old outcomes stop dominating the ratio.
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// CurrentState returns the breaker state for inspection.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setStateLocked(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = time.Now()
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()
}

func (b *Breaker) recordStateLocked() {
	if obs.BreakerState == nil || b.target == "" {
		return
	}
	obs.BreakerState.WithLabelValues(b.target).Set(float64(b.state))
}

// Backoff returns an exponential backoff for the given attempt, with jitter
// expressed as a fraction of the delay.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
