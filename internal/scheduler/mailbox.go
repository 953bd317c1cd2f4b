// ABOUTME: Unbounded single-consumer mailbox for scheduler messages
// ABOUTME: Senders never block; the worker drains everything in arrival order
package scheduler

import (
	"sync"

	"github.com/harperreed/cuebox/internal/backend"
)

type messageKind int

const (
	msgRequest messageKind = iota
	msgClear
)

type message struct {
	kind messageKind
	req  backend.Request
}

type mailbox struct {
	mu    sync.Mutex
	items []message
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// put appends msg and nudges the consumer
func (m *mailbox) put(msg message) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far
func (m *mailbox) take() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
