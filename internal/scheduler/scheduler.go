// ABOUTME: Playback scheduler worker serializing clip requests
// ABOUTME: Plays one clip at a time, gated by estimated duration plus a guard interval
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
	log "github.com/sirupsen/logrus"
)

// Defaults for Config
const (
	DefaultGuardInterval = 100 * time.Millisecond
	DefaultEventBuffer   = 64
)

// Config holds scheduler configuration
type Config struct {
	// GuardInterval is added after each clip's duration
	GuardInterval time.Duration
	// PollInterval adds a fallback ticker; zero relies on the busy timer alone
	PollInterval time.Duration
	// EventBuffer is the capacity of the Events channel
	EventBuffer int
	Metrics     *Metrics
	// Now is the clock used for busy windows; defaults to time.Now
	Now func() time.Time
}

// Snapshot is a point-in-time copy of scheduler state
type Snapshot struct {
	Busy      bool
	BusyUntil time.Time
	Pending   int
	Cursor    int
	Current   string
}

// Scheduler is the single worker owning playback state
type Scheduler struct {
	player  backend.Player
	machine *machine
	inbox   *mailbox
	events  chan Event
	metrics *Metrics
	poll    time.Duration
	now     func() time.Time

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a scheduler over cat that plays through player
func New(cat *catalog.Catalog, player backend.Player, cfg Config) *Scheduler {
	if cfg.GuardInterval < 0 {
		cfg.GuardInterval = 0
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		player:  player,
		machine: newMachine(cat, cfg.GuardInterval),
		inbox:   newMailbox(),
		events:  make(chan Event, cfg.EventBuffer),
		metrics: cfg.Metrics,
		poll:    cfg.PollInterval,
		now:     cfg.Now,
	}
}

// RequestNamed queues clip by exact name. Unknown names are dropped by the worker.
func (s *Scheduler) RequestNamed(clip string, kind backend.Kind, device string) uuid.UUID {
	req := backend.NewRequest(clip, kind, device)
	s.Submit(req)
	return req.ID
}

// RequestNext queues the next clip in catalog order
func (s *Scheduler) RequestNext(kind backend.Kind, device string) uuid.UUID {
	req := backend.NewNextRequest(kind, device)
	s.Submit(req)
	return req.ID
}

// Submit queues a prepared request. It never blocks.
func (s *Scheduler) Submit(req backend.Request) {
	s.inbox.put(message{kind: msgRequest, req: req})
}

// ClearPending drops queued requests without touching the current clip
func (s *Scheduler) ClearPending() {
	s.inbox.put(message{kind: msgClear})
}

// Events returns the notification channel
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Snapshot returns the latest published state
func (s *Scheduler) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	snap := s.snap
	snap.Busy = s.now().Before(snap.BusyUntil)
	return snap
}

// Run services requests until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var pollC <-chan time.Time
	if s.poll > 0 {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		pollC = ticker.C
	}

	log.WithField("guard", s.machine.guard).Debug("Scheduler started")
	defer log.Debug("Scheduler stopped")

	for {
		s.service(ctx)

		if d, waiting := s.machine.wait(s.now()); waiting {
			timer.Reset(d)
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.inbox.wake:
			s.receive(s.inbox.take())
		case <-timer.C:
		case <-pollC:
		}
	}
}

// receive applies inbound messages in arrival order
func (s *Scheduler) receive(msgs []message) {
	for _, msg := range msgs {
		switch msg.kind {
		case msgClear:
			n := s.machine.clear()
			log.Debugf("Cleared %d pending request(s)", n)
			s.emit(Event{Kind: EventQueueCleared})
		case msgRequest:
			s.accept(msg.req)
		}
	}
	s.publish()
}

func (s *Scheduler) accept(req backend.Request) {
	kind := "named"
	if req.Next {
		kind = "next"
	}
	s.metrics.Requests.WithLabelValues(kind).Inc()

	p, ok := s.machine.resolve(req)
	if !ok {
		reason := "unknown_clip"
		if req.Next {
			reason = "empty_catalog"
		}
		s.metrics.Dropped.WithLabelValues(reason).Inc()
		log.WithFields(log.Fields{"clip": req.Clip, "request": req.ID}).Debug("Dropped request for unknown clip")
		return
	}
	s.machine.enqueue(p)
}

// service starts the queue head whenever the busy window has closed
func (s *Scheduler) service(ctx context.Context) {
	for {
		p, ok := s.machine.ready(s.now())
		if !ok {
			break
		}
		s.play(ctx, p)
	}
	s.publish()
}

// play invokes the backend synchronously. A failure still consumes the
// slot: the busy window opens and playback_started is emitted with Err.
func (s *Scheduler) play(ctx context.Context, p pending) {
	backendName := p.req.Backend.String()
	fields := log.Fields{
		"clip":    p.clip.Name,
		"backend": backendName,
		"device":  p.req.Device,
		"request": p.req.ID,
	}

	err := s.player.Play(ctx, p.req, p.clip)
	now := s.now()
	s.machine.started(now, p.clip)

	s.metrics.Plays.WithLabelValues(backendName).Inc()
	if err != nil {
		s.metrics.PlayErrors.WithLabelValues(backendName).Inc()
		log.WithFields(fields).Errorf("Playback failed: %v", err)
	} else {
		log.WithFields(fields).Debugf("Playing for %v", p.clip.Duration)
	}

	s.snapMu.Lock()
	s.snap.Current = p.clip.Name
	s.snapMu.Unlock()

	s.emit(Event{
		Kind:      EventPlaybackStarted,
		Clip:      p.clip.Name,
		Backend:   backendName,
		Device:    p.req.Device,
		RequestID: p.req.ID,
		Err:       err,
		At:        now,
	})
}

// emit never blocks the worker; overflow is counted and discarded
func (s *Scheduler) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	select {
	case s.events <- ev:
	default:
		s.metrics.EventsDropped.Inc()
		log.WithField("kind", ev.Kind).Warn("Event buffer full, dropping notification")
	}
}

// publish copies machine state for readers on other goroutines
func (s *Scheduler) publish() {
	s.metrics.QueueDepth.Set(float64(len(s.machine.queue)))

	s.snapMu.Lock()
	s.snap.BusyUntil = s.machine.busyUntil
	s.snap.Pending = len(s.machine.queue)
	s.snap.Cursor = s.machine.cursor
	s.snapMu.Unlock()
}
