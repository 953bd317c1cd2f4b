// ABOUTME: Notifications emitted by the playback core
// ABOUTME: Defines Event kinds shared by scheduler, controller and presentation
package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a notification
type EventKind string

const (
	EventPlaybackStarted  EventKind = "playback_started"
	EventDeviceSelected   EventKind = "device_selected"
	EventQueueCleared     EventKind = "queue_cleared"
	EventPeriodicArmed    EventKind = "periodic_armed"
	EventPeriodicDisarmed EventKind = "periodic_disarmed"
)

// Event is a timestamped notification. Err is set on playback_started
// when the backend failed; the slot is still consumed.
type Event struct {
	Kind      EventKind
	Clip      string
	Backend   string
	Device    string
	RequestID uuid.UUID
	Interval  time.Duration
	Err       error
	At        time.Time
}
