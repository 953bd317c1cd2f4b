// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and feeds controller events into it
package ui

import (
	"context"
	"errors"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/harperreed/cuebox/internal/app"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/scheduler"
)

// Controller is the application surface the TUI drives
type Controller interface {
	RequestNamed(clip string, kind backend.Kind, device string) uuid.UUID
	RequestNext(kind backend.Kind, device string) uuid.UUID
	ClearPending()
	SelectDevice(index int) (backend.Device, error)
	CurrentDevice() (backend.Device, bool)
	Devices() []backend.Device
	ClipNames() []string
	SetSelection(kind backend.Kind, device string)
	Selection() app.Selection
	ArmPeriodicText(s string) error
	DisarmPeriodic()
	PeriodicArmed() bool
	Snapshot() scheduler.Snapshot
}

// Options tune the model
type Options struct {
	Name       string
	IntervalMs int
	// StreamDeviceInput shows the free-text stream device field; Linux only by default
	StreamDeviceInput *bool
}

// EventMsg carries one controller event into the program
type EventMsg scheduler.Event

// eventsClosedMsg is sent when the event stream ends
type eventsClosedMsg struct{}

// waitForEvent reads the next event as a tea.Cmd
func waitForEvent(events <-chan scheduler.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg(ev)
	}
}

func streamDeviceDefault() bool {
	return runtime.GOOS == "linux"
}

// Run starts the TUI and blocks until the user quits or ctx is done
func Run(ctx context.Context, ctrl Controller, events <-chan scheduler.Event, opts Options) error {
	p := tea.NewProgram(NewModel(ctrl, events, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
