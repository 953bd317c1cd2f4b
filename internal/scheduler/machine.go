// ABOUTME: Pure Idle/Busy playback state machine
// ABOUTME: Owns the cursor, the FIFO of pending requests and the busy window
package scheduler

import (
	"time"

	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
)

// pending is a request whose clip has been resolved
type pending struct {
	req  backend.Request
	clip *catalog.Clip
}

// machine is only touched by the worker goroutine
type machine struct {
	catalog   *catalog.Catalog
	guard     time.Duration
	cursor    int
	queue     []pending
	busyUntil time.Time
}

func newMachine(cat *catalog.Catalog, guard time.Duration) *machine {
	return &machine{catalog: cat, guard: guard}
}

// resolve turns a request into a pending item. Named requests are looked
// up now; next requests take the cursor clip and advance the cursor.
// Unknown names resolve to false and leave the state untouched.
func (m *machine) resolve(req backend.Request) (pending, bool) {
	if req.Next {
		clip, err := m.catalog.ByCursor(m.cursor)
		if err != nil {
			return pending{}, false
		}
		m.cursor = (m.cursor + 1) % m.catalog.Len()
		req.Clip = clip.Name
		return pending{req: req, clip: clip}, true
	}

	clip, err := m.catalog.Get(req.Clip)
	if err != nil {
		return pending{}, false
	}
	return pending{req: req, clip: clip}, true
}

func (m *machine) enqueue(p pending) {
	m.queue = append(m.queue, p)
}

// busy reports whether the current window is still open at now
func (m *machine) busy(now time.Time) bool {
	return now.Before(m.busyUntil)
}

// ready pops the oldest pending item when the gate is open
func (m *machine) ready(now time.Time) (pending, bool) {
	if m.busy(now) || len(m.queue) == 0 {
		return pending{}, false
	}
	p := m.queue[0]
	m.queue[0] = pending{}
	m.queue = m.queue[1:]
	return p, true
}

// started opens the busy window for clip beginning at now
func (m *machine) started(now time.Time, clip *catalog.Clip) {
	m.busyUntil = now.Add(clip.Duration + m.guard)
}

// clear drops pending items; the busy window is kept
func (m *machine) clear() int {
	n := len(m.queue)
	m.queue = nil
	return n
}

// wait is how long until the queue head may start, or false if nothing waits
func (m *machine) wait(now time.Time) (time.Duration, bool) {
	if len(m.queue) == 0 {
		return 0, false
	}
	d := m.busyUntil.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
