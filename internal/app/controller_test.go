// ABOUTME: Tests for the application controller
// ABOUTME: Tests request routing, device selection, periodic arming and event fan-out
package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
	"github.com/harperreed/cuebox/internal/periodic"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playCall struct {
	clip    string
	backend backend.Kind
	device  string
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []playCall
}

func (p *fakePlayer) Play(_ context.Context, req backend.Request, clip *catalog.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, playCall{clip: clip.Name, backend: req.Backend, device: req.Device})
	return nil
}

func (p *fakePlayer) snapshot() []playCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playCall(nil), p.calls...)
}

type fakeDevices struct {
	devices []backend.Device
	err     error
	picked  []int
}

func (d *fakeDevices) Devices() []backend.Device { return d.devices }

func (d *fakeDevices) SelectDevice(index int) (backend.Device, error) {
	if d.err != nil {
		return backend.Device{}, d.err
	}
	d.picked = append(d.picked, index)
	return d.devices[index], nil
}

type manualTicker struct{ c chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               {}

type harness struct {
	ctrl    *Controller
	player  *fakePlayer
	devices *fakeDevices
	ticker  *manualTicker
	events  <-chan scheduler.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.New([]*catalog.Clip{
		{Name: "alpha.wav", Duration: 5 * time.Millisecond},
		{Name: "beta.wav", Duration: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	h := &harness{
		player:  &fakePlayer{},
		devices: &fakeDevices{devices: []backend.Device{{Index: 0, Name: "Built-in"}, {Index: 1, Name: "USB"}}},
		ticker:  &manualTicker{c: make(chan time.Time)},
	}
	sched := scheduler.New(cat, h.player, scheduler.Config{GuardInterval: time.Millisecond})
	h.ctrl = New(cat, sched, h.devices, Config{
		Selection: Selection{Backend: backend.KindMixer},
		TriggerOptions: []periodic.Option{
			periodic.WithTicker(func(time.Duration) periodic.Ticker { return h.ticker }),
		},
	})

	events, cancelSub := h.ctrl.Subscribe(32)
	h.events = events

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		cancelSub()
	})
	return h
}

func (h *harness) waitFor(t *testing.T, kind scheduler.EventKind) scheduler.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.events:
			require.True(t, ok, "event stream closed")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

// waitForAll waits until every kind has been seen, in any order
func (h *harness) waitForAll(t *testing.T, kinds ...scheduler.EventKind) {
	t.Helper()
	want := make(map[scheduler.EventKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	timeout := time.After(2 * time.Second)
	for len(want) > 0 {
		select {
		case ev, ok := <-h.events:
			require.True(t, ok, "event stream closed")
			delete(want, ev.Kind)
		case <-timeout:
			t.Fatalf("missing events: %v", want)
		}
	}
}

func TestController_RequestsFlowToBackend(t *testing.T) {
	h := newHarness(t)

	h.ctrl.RequestNext(backend.KindMixer, "")
	assert.Equal(t, "alpha.wav", h.waitFor(t, scheduler.EventPlaybackStarted).Clip)

	h.ctrl.RequestNamed("alpha.wav", backend.KindStream, "hw:1")
	ev := h.waitFor(t, scheduler.EventPlaybackStarted)
	assert.Equal(t, "alpha.wav", ev.Clip)
	assert.Equal(t, "stream", ev.Backend)
	assert.Equal(t, "hw:1", ev.Device)
	assert.False(t, ev.At.IsZero())

	h.ctrl.RequestNext(backend.KindMixer, "")
	assert.Equal(t, "beta.wav", h.waitFor(t, scheduler.EventPlaybackStarted).Clip)
}

func TestController_SelectDevice(t *testing.T) {
	h := newHarness(t)

	dev, err := h.ctrl.SelectDevice(1)
	require.NoError(t, err)
	assert.Equal(t, "USB", dev.Name)

	ev := h.waitFor(t, scheduler.EventDeviceSelected)
	assert.Equal(t, "USB", ev.Device)

	current, ok := h.ctrl.CurrentDevice()
	assert.True(t, ok)
	assert.Equal(t, dev, current)
}

func TestController_SelectDeviceFailure(t *testing.T) {
	h := newHarness(t)
	h.devices.err = &backend.DeviceError{Device: "#5", Err: backend.ErrBackendUnavailable}

	_, err := h.ctrl.SelectDevice(5)
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	_, ok := h.ctrl.CurrentDevice()
	assert.False(t, ok)
}

func TestController_SelectDeviceWithoutMixer(t *testing.T) {
	cat, err := catalog.New([]*catalog.Clip{{Name: "a.wav"}})
	require.NoError(t, err)
	ctrl := New(cat, scheduler.New(cat, &fakePlayer{}, scheduler.Config{}), nil, Config{})

	_, err = ctrl.SelectDevice(0)
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	assert.Nil(t, ctrl.Devices())
	ctrl.SelectInitialDevice(0)
}

func TestController_SelectInitialDevice(t *testing.T) {
	h := newHarness(t)

	h.ctrl.SelectInitialDevice(7)
	assert.Equal(t, "Built-in", h.waitFor(t, scheduler.EventDeviceSelected).Device)
	assert.Equal(t, []int{0}, h.devices.picked)
}

func TestController_PeriodicUsesSelection(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SetSelection(backend.KindStream, "hw:2")

	require.NoError(t, h.ctrl.ArmPeriodic(500))
	armed := h.waitFor(t, scheduler.EventPeriodicArmed)
	assert.Equal(t, 500*time.Millisecond, armed.Interval)
	assert.True(t, h.ctrl.PeriodicArmed())

	h.ticker.c <- time.Now()
	ev := h.waitFor(t, scheduler.EventPlaybackStarted)
	assert.Equal(t, "alpha.wav", ev.Clip)
	assert.Equal(t, "hw:2", ev.Device)

	h.ticker.c <- time.Now()
	assert.Equal(t, "beta.wav", h.waitFor(t, scheduler.EventPlaybackStarted).Clip)

	h.ctrl.DisarmPeriodic()
	h.waitForAll(t, scheduler.EventPeriodicDisarmed, scheduler.EventQueueCleared)
	assert.False(t, h.ctrl.PeriodicArmed())

	calls := h.player.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, backend.KindStream, calls[0].backend)
}

func TestController_ArmPeriodicInvalid(t *testing.T) {
	h := newHarness(t)

	for _, input := range []string{"0", "-3", "soon"} {
		err := h.ctrl.ArmPeriodicText(input)
		assert.ErrorIs(t, err, periodic.ErrInvalidInterval, input)
	}
	assert.ErrorIs(t, h.ctrl.ArmPeriodic(0), periodic.ErrInvalidInterval)
	assert.False(t, h.ctrl.PeriodicArmed())

	require.NoError(t, h.ctrl.ArmPeriodicText("250"))
	assert.Equal(t, 250*time.Millisecond, h.ctrl.PeriodicInterval())
	h.ctrl.DisarmPeriodic()
}

func TestController_InvalidRearmDisarms(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.ArmPeriodic(250))
	h.waitFor(t, scheduler.EventPeriodicArmed)

	assert.ErrorIs(t, h.ctrl.ArmPeriodic(-1), periodic.ErrInvalidInterval)
	assert.False(t, h.ctrl.PeriodicArmed())
	assert.Zero(t, h.ctrl.PeriodicInterval())
	h.waitForAll(t, scheduler.EventPeriodicDisarmed, scheduler.EventQueueCleared)
}

func TestController_ClipNames(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"alpha.wav", "beta.wav"}, h.ctrl.ClipNames())
	assert.Len(t, h.ctrl.Devices(), 2)
}

func TestController_RunClosesSubscribers(t *testing.T) {
	cat, err := catalog.New([]*catalog.Clip{{Name: "a.wav"}})
	require.NoError(t, err)
	ctrl := New(cat, scheduler.New(cat, &fakePlayer{}, scheduler.Config{}), nil, Config{})
	events, _ := ctrl.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ctrl.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	_, open := <-events
	assert.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	slow, cancelSlow := hub.Subscribe(1)
	fast, cancelFast := hub.Subscribe(10)
	defer cancelSlow()
	defer cancelFast()

	for i := 0; i < 5; i++ {
		hub.Publish(scheduler.Event{Kind: scheduler.EventPlaybackStarted})
	}
	assert.Len(t, slow, 1)
	assert.Len(t, fast, 5)

	cancelFast()
	cancelFast()
	_, open := <-fast
	for open {
		_, open = <-fast
	}
	hub.Publish(scheduler.Event{})
}
