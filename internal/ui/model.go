// ABOUTME: Bubbletea model for the soundboard TUI
// ABOUTME: Clip list, backend/device routing, periodic controls and a playback log pane
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/logging"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/harperreed/cuebox/internal/version"
)

const maxLogLines = 200

type focus int

const (
	focusClips focus = iota
	focusInterval
	focusDevice
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	lockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	armedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Model represents the TUI state
type Model struct {
	ctrl   Controller
	events <-chan scheduler.Event
	name   string

	// Clips
	clips  []string
	cursor int

	// Routing
	kind         backend.Kind
	devices      []backend.Device
	deviceCursor int
	deviceName   string
	streamInput  bool
	streamDevice textinput.Model

	// Periodic
	interval textinput.Model
	armed    bool

	focus  focus
	status string
	err    string
	log    []string

	// Dimensions
	width  int
	height int
}

// NewModel creates a new TUI model
func NewModel(ctrl Controller, events <-chan scheduler.Event, opts Options) Model {
	interval := textinput.New()
	interval.Prompt = ""
	interval.Placeholder = "msec"
	interval.CharLimit = 9
	interval.Width = 10
	if opts.IntervalMs > 0 {
		interval.SetValue(strconv.Itoa(opts.IntervalMs))
	}

	streamDevice := textinput.New()
	streamDevice.Prompt = ""
	streamDevice.Placeholder = "default"
	streamDevice.CharLimit = 64
	streamDevice.Width = 24

	streamInput := streamDeviceDefault()
	if opts.StreamDeviceInput != nil {
		streamInput = *opts.StreamDeviceInput
	}

	name := opts.Name
	if name == "" {
		name = version.Product
	}

	sel := ctrl.Selection()
	streamDevice.SetValue(sel.Device)

	m := Model{
		ctrl:         ctrl,
		events:       events,
		name:         name,
		clips:        ctrl.ClipNames(),
		kind:         sel.Backend,
		devices:      ctrl.Devices(),
		streamInput:  streamInput,
		streamDevice: streamDevice,
		interval:     interval,
		armed:        ctrl.PeriodicArmed(),
	}
	if dev, ok := ctrl.CurrentDevice(); ok {
		m.deviceCursor = dev.Index
		m.deviceName = dev.Name
	}
	return m
}

// Init starts listening for controller events
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case EventMsg:
		m.applyEvent(scheduler.Event(msg))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	header := titleStyle.Render(m.name) + "  " + m.renderPeriodicState() + "  " + m.renderQueue()

	left := paneStyle.Render(m.renderClips() + "\n\n" + m.renderRouting() + "\n" + m.renderPeriodic())
	right := paneStyle.Render(m.renderLog())

	var footer string
	if m.err != "" {
		footer = errorStyle.Render(m.err) + "\n"
	} else if m.status != "" {
		footer = m.status + "\n"
	}
	footer += helpStyle.Render(m.renderHelp())

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		footer,
	)
}

func (m Model) renderPeriodicState() string {
	if m.armed {
		return armedStyle.Render("● periodic")
	}
	return lockedStyle.Render("○ idle")
}

func (m Model) renderQueue() string {
	snap := m.ctrl.Snapshot()
	if snap.Busy {
		return fmt.Sprintf("playing %s, %d pending", snap.Current, snap.Pending)
	}
	return fmt.Sprintf("%d pending", snap.Pending)
}

func (m Model) renderClips() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Clips"))
	for i, name := range m.clips {
		b.WriteString("\n")
		line := "  " + name
		if i == m.cursor {
			line = "> " + name
		}
		switch {
		case m.armed:
			b.WriteString(lockedStyle.Render(line))
		case i == m.cursor && m.focus == focusClips:
			b.WriteString(selectedStyle.Render(line))
		default:
			b.WriteString(line)
		}
	}
	if len(m.clips) == 0 {
		b.WriteString("\n  (no clips)")
	}
	return b.String()
}

func (m Model) renderRouting() string {
	s := fmt.Sprintf("Backend: %s\n", m.kind)
	switch {
	case m.kind == backend.KindMixer:
		name := m.deviceName
		if name == "" {
			name = "default"
		}
		s += fmt.Sprintf("Device:  %s", name)
		if len(m.devices) > 1 {
			s += fmt.Sprintf(" (%d/%d)", m.deviceCursor+1, len(m.devices))
		}
	case m.streamInput:
		s += "Device:  " + m.streamDevice.View()
	default:
		s += "Device:  default"
	}
	if m.armed {
		return lockedStyle.Render(s)
	}
	return s
}

func (m Model) renderPeriodic() string {
	s := "Interval: " + m.interval.View() + " msec"
	if m.armed {
		return lockedStyle.Render(s)
	}
	return s
}

func (m Model) renderLog() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Log"))
	lines := m.log
	if visible := m.height - 8; visible > 0 && len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, line := range lines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

func (m Model) renderHelp() string {
	if m.focus != focusClips {
		return "enter:Apply  esc:Back"
	}
	if m.armed {
		return "x:Stop  c:Clear  q:Quit"
	}
	help := "↑/↓:Select  enter:Play  n:Next  b:Backend  "
	if m.kind == backend.KindMixer {
		help += "[/]:Device  "
	} else if m.streamInput {
		help += "d:Device  "
	}
	return help + "i:Interval  s:Start  x:Stop  c:Clear  q:Quit"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.focus != focusClips {
		return m.handleInputKey(msg)
	}

	m.err = ""
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "x":
		m.ctrl.DisarmPeriodic()
		m.armed = false
		m.status = "Periodic player stopped"
		return m, nil
	case "c":
		m.ctrl.ClearPending()
		m.status = "Pending requests cleared"
		return m, nil
	}

	if m.armed {
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.clips)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.clips) > 0 {
			m.ctrl.RequestNamed(m.clips[m.cursor], m.kind, m.routeDevice())
		}
	case "n":
		m.ctrl.RequestNext(m.kind, m.routeDevice())
	case "b":
		if m.kind == backend.KindMixer {
			m.kind = backend.KindStream
		} else {
			m.kind = backend.KindMixer
		}
		m.syncSelection()
	case "[":
		m.stepDevice(-1)
	case "]":
		m.stepDevice(1)
	case "d":
		if m.kind == backend.KindStream && m.streamInput {
			m.focus = focusDevice
			cmd := m.streamDevice.Focus()
			return m, cmd
		}
	case "i":
		m.focus = focusInterval
		cmd := m.interval.Focus()
		return m, cmd
	case "s":
		m.armPeriodic()
	}
	return m, nil
}

// handleInputKey routes keys to the focused text field
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		if m.focus == focusDevice {
			m.streamDevice.Blur()
			m.syncSelection()
		} else {
			m.interval.Blur()
		}
		m.focus = focusClips
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusDevice {
		m.streamDevice, cmd = m.streamDevice.Update(msg)
	} else {
		m.interval, cmd = m.interval.Update(msg)
	}
	return m, cmd
}

// routeDevice is the device string carried by requests
func (m Model) routeDevice() string {
	if m.kind == backend.KindStream && m.streamInput {
		return strings.TrimSpace(m.streamDevice.Value())
	}
	return ""
}

// syncSelection makes periodic fires follow the visible routing
func (m *Model) syncSelection() {
	m.ctrl.SetSelection(m.kind, m.routeDevice())
}

func (m *Model) stepDevice(delta int) {
	if m.kind != backend.KindMixer || len(m.devices) == 0 {
		return
	}
	next := (m.deviceCursor + delta + len(m.devices)) % len(m.devices)
	dev, err := m.ctrl.SelectDevice(next)
	if err != nil {
		m.err = err.Error()
		return
	}
	m.deviceCursor = dev.Index
	m.deviceName = dev.Name
}

func (m *Model) armPeriodic() {
	m.syncSelection()
	if err := m.ctrl.ArmPeriodicText(m.interval.Value()); err != nil {
		m.err = err.Error()
		return
	}
	m.armed = true
	m.status = fmt.Sprintf("Periodic player every %s msec", strings.TrimSpace(m.interval.Value()))
}

// applyEvent updates the model from a controller event
func (m *Model) applyEvent(ev scheduler.Event) {
	stamp := logging.Stamp(ev.At)
	var line string
	switch ev.Kind {
	case scheduler.EventPlaybackStarted:
		line = ev.Clip
		if ev.Err != nil {
			line = errorStyle.Render(fmt.Sprintf("%s (failed: %v)", ev.Clip, ev.Err))
		}
	case scheduler.EventDeviceSelected:
		m.deviceName = ev.Device
		for _, d := range m.devices {
			if d.Name == ev.Device {
				m.deviceCursor = d.Index
			}
		}
		line = "New audio device was set: " + ev.Device
	case scheduler.EventQueueCleared:
		line = "queue cleared"
	case scheduler.EventPeriodicArmed:
		m.armed = true
		line = fmt.Sprintf("Launched periodic player with delay time %d msec", ev.Interval.Milliseconds())
	case scheduler.EventPeriodicDisarmed:
		m.armed = false
		line = "periodic player stopped"
	default:
		line = string(ev.Kind)
	}

	m.log = append(m.log, stamp+" "+line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}
