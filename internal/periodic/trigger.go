// ABOUTME: Periodic trigger firing next-in-sequence requests on an interval
// ABOUTME: Validates intervals, supports re-arming, and clears the queue on disarm
package periodic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidInterval is returned for non-positive or non-numeric intervals
var ErrInvalidInterval = errors.New("invalid interval")

// IntervalError carries the rejected input
type IntervalError struct {
	Value string
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("invalid interval %q: must be a positive number of milliseconds", e.Value)
}

func (e *IntervalError) Unwrap() error { return ErrInvalidInterval }

// Ticker is the subset of time.Ticker the trigger needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker for an interval
type TickerFunc func(d time.Duration) Ticker

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTicker wraps time.NewTicker
func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Option configures a Trigger
type Option func(*Trigger)

// WithTicker replaces the ticker factory
func WithTicker(fn TickerFunc) Option {
	return func(t *Trigger) { t.newTicker = fn }
}

// Trigger calls fire once per interval while armed
type Trigger struct {
	fire      func()
	clear     func()
	newTicker TickerFunc

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New creates a disarmed trigger. fire runs on every tick; clear runs on Disarm.
func New(fire, clear func(), opts ...Option) *Trigger {
	t := &Trigger{fire: fire, clear: clear, newTicker: NewTicker}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Arm starts firing every ms milliseconds, replacing any running interval.
// A non-positive value leaves the trigger disarmed; a running interval is
// stopped and pending requests are cleared as on Disarm.
func (t *Trigger) Arm(ms int) error {
	if ms <= 0 {
		return t.reject(strconv.Itoa(ms))
	}

	interval := time.Duration(ms) * time.Millisecond

	t.mu.Lock()
	defer t.mu.Unlock()

	t.halt()

	ticker := t.newTicker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	t.interval = interval
	t.stop = stop
	t.done = done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				t.fire()
			}
		}
	}()

	log.Infof("Launched periodic player with delay time %d msec", ms)
	return nil
}

// ArmText parses s as milliseconds and arms the trigger
func (t *Trigger) ArmText(s string) error {
	ms, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || ms <= 0 {
		return t.reject(s)
	}
	return t.Arm(ms)
}

// reject disarms a running trigger and reports value as invalid
func (t *Trigger) reject(value string) error {
	log.Warnf("Wrong delay time value %s", value)
	if t.Armed() {
		t.Disarm()
	}
	return &IntervalError{Value: value}
}

// Disarm stops firing and asks for pending requests to be cleared. After
// it returns no further fire calls happen.
func (t *Trigger) Disarm() {
	t.mu.Lock()
	wasArmed := t.stop != nil
	t.halt()
	t.interval = 0
	t.mu.Unlock()

	if wasArmed {
		log.Info("Stopped periodic player")
	}
	if t.clear != nil {
		t.clear()
	}
}

// halt stops the running loop and waits for it (must hold t.mu)
func (t *Trigger) halt() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}

// Armed reports whether the trigger is running
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Interval returns the armed interval, zero when disarmed
func (t *Trigger) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}
