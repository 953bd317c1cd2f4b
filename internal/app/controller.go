// ABOUTME: Application controller coordinating catalog, scheduler, devices and periodic trigger
// ABOUTME: Single inbound boundary for the TUI and remote control; fans events out to subscribers
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
	"github.com/harperreed/cuebox/internal/periodic"
	"github.com/harperreed/cuebox/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

// DeviceSelector is the mixer side of device management
type DeviceSelector interface {
	Devices() []backend.Device
	SelectDevice(index int) (backend.Device, error)
}

// Selection is the backend and device used by periodic fires
type Selection struct {
	Backend backend.Kind
	Device  string
}

// Config holds controller configuration
type Config struct {
	Selection Selection
	// TriggerOptions are passed to the periodic trigger
	TriggerOptions []periodic.Option
}

// Controller is the inbound boundary of the playback core
type Controller struct {
	catalog *catalog.Catalog
	sched   *scheduler.Scheduler
	devices DeviceSelector
	trigger *periodic.Trigger
	hub     *Hub

	mu        sync.RWMutex
	selection Selection
	device    backend.Device
	hasDevice bool
}

// New wires a controller. devices may be nil when no mixer is available.
func New(cat *catalog.Catalog, sched *scheduler.Scheduler, devices DeviceSelector, cfg Config) *Controller {
	c := &Controller{
		catalog:   cat,
		sched:     sched,
		devices:   devices,
		hub:       NewHub(),
		selection: cfg.Selection,
	}
	c.trigger = periodic.New(c.firePeriodic, sched.ClearPending, cfg.TriggerOptions...)
	return c
}

// Run drives the scheduler and forwards its events until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.sched.Run(ctx) }()

	for {
		select {
		case ev := <-c.sched.Events():
			c.publish(ev)
		case err := <-errCh:
			c.trigger.Disarm()
			c.hub.Close()
			return err
		}
	}
}

// RequestNamed plays clip on the given backend and device
func (c *Controller) RequestNamed(clip string, kind backend.Kind, device string) uuid.UUID {
	return c.sched.RequestNamed(clip, kind, device)
}

// RequestNext plays the next clip in catalog order
func (c *Controller) RequestNext(kind backend.Kind, device string) uuid.UUID {
	return c.sched.RequestNext(kind, device)
}

// ClearPending drops queued requests; the current clip keeps playing
func (c *Controller) ClearPending() {
	c.sched.ClearPending()
}

// SelectDevice reinitializes mixer output on the device at index
func (c *Controller) SelectDevice(index int) (backend.Device, error) {
	if c.devices == nil {
		return backend.Device{}, &backend.DeviceError{Device: "mixer", Err: backend.ErrBackendUnavailable}
	}
	dev, err := c.devices.SelectDevice(index)
	if err != nil {
		log.Errorf("Device selection failed: %v", err)
		return backend.Device{}, err
	}

	c.mu.Lock()
	c.device = dev
	c.hasDevice = true
	c.mu.Unlock()

	log.Infof("New audio device was set: %s", dev.Name)
	c.publish(scheduler.Event{Kind: scheduler.EventDeviceSelected, Device: dev.Name, Backend: backend.KindMixer.String()})
	return dev, nil
}

// SelectInitialDevice selects the first mixer device if there is one
func (c *Controller) SelectInitialDevice(index int) {
	if c.devices == nil || len(c.devices.Devices()) == 0 {
		log.Info("No mixer devices found, using system default")
		return
	}
	if index < 0 || index >= len(c.devices.Devices()) {
		index = 0
	}
	_, _ = c.SelectDevice(index)
}

// CurrentDevice returns the selected mixer device
func (c *Controller) CurrentDevice() (backend.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.device, c.hasDevice
}

// Devices lists mixer devices
func (c *Controller) Devices() []backend.Device {
	if c.devices == nil {
		return nil
	}
	return c.devices.Devices()
}

// ClipNames lists clips in catalog order
func (c *Controller) ClipNames() []string {
	return c.catalog.Names()
}

// SetSelection sets the backend and device used by periodic fires
func (c *Controller) SetSelection(kind backend.Kind, device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = Selection{Backend: kind, Device: device}
}

// Selection returns the current periodic routing
func (c *Controller) Selection() Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

// ArmPeriodic starts next-in-sequence requests every ms milliseconds
func (c *Controller) ArmPeriodic(ms int) error {
	return c.arm(func() error { return c.trigger.Arm(ms) })
}

// ArmPeriodicText parses the interval from user input
func (c *Controller) ArmPeriodicText(s string) error {
	return c.arm(func() error { return c.trigger.ArmText(s) })
}

// arm runs fn against the trigger; a rejected interval that stopped a
// running trigger is published as a disarm
func (c *Controller) arm(fn func() error) error {
	wasArmed := c.trigger.Armed()
	if err := fn(); err != nil {
		if wasArmed && !c.trigger.Armed() {
			c.publish(scheduler.Event{Kind: scheduler.EventPeriodicDisarmed})
		}
		return err
	}
	c.publishArmed()
	return nil
}

// DisarmPeriodic stops the trigger and clears pending requests
func (c *Controller) DisarmPeriodic() {
	c.trigger.Disarm()
	c.publish(scheduler.Event{Kind: scheduler.EventPeriodicDisarmed})
}

// PeriodicArmed reports whether the periodic trigger is running
func (c *Controller) PeriodicArmed() bool {
	return c.trigger.Armed()
}

// PeriodicInterval returns the armed interval
func (c *Controller) PeriodicInterval() time.Duration {
	return c.trigger.Interval()
}

// Snapshot returns scheduler state
func (c *Controller) Snapshot() scheduler.Snapshot {
	return c.sched.Snapshot()
}

// Subscribe returns a stream of events for one consumer
func (c *Controller) Subscribe(buffer int) (<-chan scheduler.Event, func()) {
	return c.hub.Subscribe(buffer)
}

func (c *Controller) firePeriodic() {
	sel := c.Selection()
	c.sched.RequestNext(sel.Backend, sel.Device)
}

func (c *Controller) publishArmed() {
	sel := c.Selection()
	c.publish(scheduler.Event{
		Kind:     scheduler.EventPeriodicArmed,
		Interval: c.trigger.Interval(),
		Backend:  sel.Backend.String(),
		Device:   sel.Device,
	})
}

// publish stamps, logs and fans out ev
func (c *Controller) publish(ev scheduler.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Kind == scheduler.EventPlaybackStarted {
		if ev.Err != nil {
			log.Warnf("%s (playback failed: %v)", ev.Clip, ev.Err)
		} else {
			log.Info(ev.Clip)
		}
	}
	c.hub.Publish(ev)
}
