// ABOUTME: Mixer backend playing clips fire-and-forget on a selected device
// ABOUTME: Device changes reinitialize the output engine under an exclusive lock
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/harperreed/cuebox/internal/catalog"
	log "github.com/sirupsen/logrus"
)

// resampleQuality is the beep resampler quality used for clips
const resampleQuality = 4

// Device is an enumerated output device
type Device struct {
	Index int
	Name  string
}

// DefaultDevice is the system default output
var DefaultDevice = Device{Index: -1, Name: "default"}

// Engine is an audio output that can be opened on a device and mixes
// any number of concurrent streamers.
type Engine interface {
	// Devices enumerates playback devices
	Devices() ([]Device, error)
	// Open (re)initializes output on dev, dropping anything still playing
	Open(dev Device) error
	// Play adds a streamer to the running output
	Play(s beep.Streamer) error
	// SampleRate is the output rate streamers must be delivered at
	SampleRate() beep.SampleRate
	// Close releases the engine
	Close() error
}

// Mixer is the device-enumerated backend
type Mixer struct {
	mu      sync.Mutex
	engine  Engine
	devices []Device
	current Device
	opened  bool
}

// NewMixer enumerates devices once; the list is static afterwards
func NewMixer(engine Engine) (*Mixer, error) {
	devices, err := engine.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", ErrBackendUnavailable, err)
	}
	log.Infof("Mixer found %d playback device(s)", len(devices))
	return &Mixer{engine: engine, devices: devices, current: DefaultDevice}, nil
}

// Devices returns the device list captured at construction
func (m *Mixer) Devices() []Device {
	out := make([]Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// Current returns the selected device and whether output is open
func (m *Mixer) Current() (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.opened
}

// SelectDevice reinitializes output on the device at index. Clips still
// playing on the previous device are cut off.
func (m *Mixer) SelectDevice(index int) (Device, error) {
	if index < 0 || index >= len(m.devices) {
		return Device{}, &DeviceError{
			Device: fmt.Sprintf("#%d", index),
			Err:    fmt.Errorf("%w: index out of range (have %d devices)", ErrBackendUnavailable, len(m.devices)),
		}
	}
	dev := m.devices[index]

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.engine.Open(dev); err != nil {
		m.opened = false
		return Device{}, &DeviceError{Device: dev.Name, Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, err)}
	}
	m.current = dev
	m.opened = true
	log.WithField("device", dev.Name).Info("Mixer output device selected")
	return dev, nil
}

// Play mixes clip into the output on the current device, opening the
// default device first if nothing was selected.
func (m *Mixer) Play(ctx context.Context, req Request, clip *catalog.Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clip.Buffer == nil {
		return fmt.Errorf("clip %s has no audio data", clip.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		if err := m.engine.Open(m.current); err != nil {
			return &DeviceError{Device: m.current.Name, Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, err)}
		}
		m.opened = true
	}

	var s beep.Streamer = clip.Streamer()
	if from, to := clip.Buffer.Format().SampleRate, m.engine.SampleRate(); from != to {
		s = beep.Resample(resampleQuality, from, to, s)
	}

	if err := m.engine.Play(s); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the engine
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return m.engine.Close()
}

// unavailableEngine stands in when no audio subsystem could be initialized
type unavailableEngine struct {
	err error
}

// NewUnavailableEngine returns an engine whose every operation fails with err
func NewUnavailableEngine(err error) Engine {
	return unavailableEngine{err: err}
}

func (e unavailableEngine) Devices() ([]Device, error)  { return nil, nil }
func (e unavailableEngine) Open(Device) error           { return e.err }
func (e unavailableEngine) Play(beep.Streamer) error    { return e.err }
func (e unavailableEngine) SampleRate() beep.SampleRate { return 48000 }
func (e unavailableEngine) Close() error                { return nil }
