// ABOUTME: Tests for command wiring
// ABOUTME: Builds the full stack against fake audio and checks trigger parsing
package cmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
	"github.com/harperreed/cuebox/internal/config"
	"github.com/harperreed/cuebox/internal/remote"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV writes a silent 8kHz mono 16-bit clip of duration d
func writeWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	data := make([]byte, int(8000*d/time.Second)*2)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(1), uint16(1), uint32(8000), uint32(16000), uint16(2), uint16(16)} {
		binary.Write(&b, binary.LittleEndian, v)
	}
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)

	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

type recordingSink struct {
	mu    sync.Mutex
	clips []string
}

func (s *recordingSink) Play(clip *catalog.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = append(s.clips, clip.Name)
	return nil
}

func (s *recordingSink) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clips...)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "alpha.wav"), 50*time.Millisecond)
	writeWAV(t, filepath.Join(dir, "beta.wav"), 50*time.Millisecond)

	v := viper.New()
	config.SetDefaults(v)
	v.Set("catalog.dir", dir)
	v.Set("backend.default", "stream")
	v.Set("backend.stream_command", "aplay")
	v.Set("scheduler.guard_interval", 10*time.Millisecond)
	v.Set("ui.enabled", false)
	v.Set("log.file", "")

	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildStack(t *testing.T) {
	cfg := testConfig(t)
	sink := &recordingSink{}

	st, err := buildStack(cfg, deps{Engine: backend.NewUnavailableEngine(errors.New("no audio")), Sink: sink})
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, []string{"alpha.wav", "beta.wav"}, st.ctrl.ClipNames())
	assert.Empty(t, st.ctrl.Devices())
	assert.Equal(t, backend.KindStream, st.ctrl.Selection().Backend)

	families, err := st.registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cuebox_queue_depth")
}

func TestBuildStack_PlaysThroughDefaultSink(t *testing.T) {
	cfg := testConfig(t)
	sink := &recordingSink{}
	st, err := buildStack(cfg, deps{Engine: backend.NewUnavailableEngine(errors.New("no audio")), Sink: sink})
	require.NoError(t, err)
	defer st.Close()

	events, unsubscribe := st.ctrl.Subscribe(8)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.ctrl.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	st.ctrl.RequestNamed("beta.wav", backend.KindStream, "")

	select {
	case ev := <-events:
		assert.Equal(t, scheduler.EventPlaybackStarted, ev.Kind)
		assert.Equal(t, "beta.wav", ev.Clip)
		assert.NoError(t, ev.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no playback event")
	}
	assert.Equal(t, []string{"beta.wav"}, sink.played())
}

func TestBuildStack_MissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := buildStack(cfg, deps{Engine: backend.NewUnavailableEngine(errors.New("no audio"))})
	var loadErr *catalog.LoadError
	assert.True(t, errors.As(err, &loadErr), "expected LoadError, got %v", err)
}

type closeCountingEngine struct {
	backend.Engine
	closes int
}

func (e *closeCountingEngine) Close() error {
	e.closes++
	return e.Engine.Close()
}

type closingSink struct {
	recordingSink
	closes int
}

func (s *closingSink) Close() error {
	s.closes++
	return nil
}

func TestBuildStack_ReleasesAudioOnError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing catalog", func(c *config.Config) { c.Catalog.Dir = filepath.Join(c.Catalog.Dir, "missing") }},
		{"bad backend", func(c *config.Config) { c.Backend.Default = "carrier-pigeon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			engine := &closeCountingEngine{Engine: backend.NewUnavailableEngine(errors.New("no audio"))}
			sink := &closingSink{}

			st, err := buildStack(cfg, deps{Engine: engine, Sink: sink})
			require.Error(t, err)
			assert.Nil(t, st)
			assert.Equal(t, 1, engine.closes)
			assert.Equal(t, 1, sink.closes)
		})
	}
}

func TestBuildStack_CloseReleasesAudioOnce(t *testing.T) {
	engine := &closeCountingEngine{Engine: backend.NewUnavailableEngine(errors.New("no audio"))}
	sink := &closingSink{}

	st, err := buildStack(testConfig(t), deps{Engine: engine, Sink: sink})
	require.NoError(t, err)
	st.Close()

	assert.Equal(t, 1, engine.closes)
	assert.Equal(t, 1, sink.closes)
}

func TestRun_HeadlessStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, deps{Engine: backend.NewUnavailableEngine(errors.New("no audio")), Sink: &recordingSink{}})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		msgType string
		payload interface{}
	}{
		{"play", []string{"play", "alpha.wav"}, remote.TypePlay, remote.PlayCommand{Clip: "alpha.wav", Backend: "stream", Device: "hw:1"}},
		{"next", []string{"next"}, remote.TypeNext, remote.NextCommand{Backend: "stream", Device: "hw:1"}},
		{"clear", []string{"clear"}, remote.TypeClear, nil},
		{"stop", []string{"stop"}, remote.TypePeriodicStop, nil},
		{"start", []string{"start", "750"}, remote.TypePeriodicStart, remote.PeriodicStartCommand{IntervalMs: 750}},
		{"device", []string{"device", "2"}, remote.TypeDeviceSelect, remote.DeviceSelectCommand{Index: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgType, payload, err := parseTrigger(tt.args, "stream", "hw:1")
			require.NoError(t, err)
			assert.Equal(t, tt.msgType, msgType)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestParseTrigger_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"play"},
		{"start", "soon"},
		{"start"},
		{"device", "x"},
		{"rewind"},
	} {
		_, _, err := parseTrigger(args, "", "")
		assert.Error(t, err, "args %v", args)
	}
}

func TestPrintDevices(t *testing.T) {
	var out bytes.Buffer
	printDevices(&out, []backend.Device{{Index: 0, Name: "Built-in"}, {Index: 1, Name: "USB"}}, "paplay")
	assert.Contains(t, out.String(), "[1] USB")
	assert.Contains(t, out.String(), "Stream command: paplay")

	out.Reset()
	printDevices(&out, nil, "")
	assert.Contains(t, out.String(), "(none, system default only)")
	assert.Contains(t, out.String(), "none found")
}
