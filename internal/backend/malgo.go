// ABOUTME: Malgo-based mixer engine with device enumeration
// ABOUTME: Uses miniaudio via malgo, pulling s16 frames from a beep mixer in the data callback
package backend

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/gopxl/beep/v2"
	"github.com/harperreed/cuebox/pkg/audio"
	log "github.com/sirupsen/logrus"
)

// MalgoEngine drives one miniaudio playback device at a time
type MalgoEngine struct {
	malgoCtx   *malgo.AllocatedContext
	infos      []malgo.DeviceInfo
	sampleRate int
	volume     int

	// mu guards device, mixer and frames; the data callback takes it too
	mu     sync.Mutex
	device *malgo.Device
	mixer  *beep.Mixer
	frames [][2]float64
}

// NewMalgoEngine initializes a malgo context. Output is s16 stereo at sampleRate.
func NewMalgoEngine(sampleRate, volume int) (*MalgoEngine, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debugf("miniaudio: %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	return &MalgoEngine{
		malgoCtx:   ctx,
		sampleRate: sampleRate,
		volume:     volume,
	}, nil
}

// Devices enumerates playback devices
func (m *MalgoEngine) Devices() ([]Device, error) {
	infos, err := m.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}
	m.infos = infos

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{Index: i, Name: info.Name()}
	}
	return devices, nil
}

// Open reinitializes the playback device. A negative index opens the default.
func (m *MalgoEngine) Open(dev Device) error {
	m.mu.Lock()
	old := m.device
	m.device = nil
	m.mixer = &beep.Mixer{}
	m.mu.Unlock()
	stopDevice(old)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 2
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if dev.Index >= 0 {
		if dev.Index >= len(m.infos) {
			return fmt.Errorf("unknown device index %d", dev.Index)
		}
		deviceConfig.Playback.DeviceID = m.infos[dev.Index].ID.Pointer()
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()

	log.Infof("Audio output initialized: %s, %dHz, 2 channels (malgo/S16)", dev.Name, m.sampleRate)
	return nil
}

// Play adds s to the mix
func (m *MalgoEngine) Play(s beep.Streamer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return fmt.Errorf("output not initialized")
	}
	m.mixer.Add(s)
	return nil
}

// SampleRate returns the device rate
func (m *MalgoEngine) SampleRate() beep.SampleRate {
	return beep.SampleRate(m.sampleRate)
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *MalgoEngine) dataCallback(pOutput []byte, frameCount uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int(frameCount)
	if cap(m.frames) < n {
		m.frames = make([][2]float64, n)
	}
	frames := m.frames[:n]

	filled := 0
	if m.mixer != nil {
		filled, _ = m.mixer.Stream(frames)
	}
	for i := filled; i < n; i++ {
		frames[i] = [2]float64{}
	}

	audio.EncodeS16LE(pOutput, frames, m.volume, false)
}

// stopDevice stops and uninitializes a device. Must not hold m.mu, since
// Stop waits for a running data callback.
func stopDevice(device *malgo.Device) {
	if device == nil {
		return
	}
	if err := device.Stop(); err != nil {
		log.Warnf("device stop error: %v", err)
	}
	device.Uninit()
}

// Close releases the device and the malgo context
func (m *MalgoEngine) Close() error {
	m.mu.Lock()
	old := m.device
	m.device = nil
	m.mu.Unlock()
	stopDevice(old)

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warnf("malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}
