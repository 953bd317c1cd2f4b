// ABOUTME: Stream backend playing registered clips on a named or default device
// ABOUTME: Named devices go through an external player command; the default device through a sink
package backend

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/harperreed/cuebox/internal/catalog"
	log "github.com/sirupsen/logrus"
)

// Runner starts an external command. The returned wait blocks until it exits.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (wait func() error, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Start launches the command without waiting for it
func (ExecRunner) Start(ctx context.Context, name string, args ...string) (func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

// Sink plays a decoded clip on the default output device
type Sink interface {
	Play(clip *catalog.Clip) error
}

// supportedCommands are the players that accept an explicit device name
var supportedCommands = []string{"paplay", "aplay"}

// DetectCommand returns the first supported player found in PATH
func DetectCommand() string {
	for _, name := range supportedCommands {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return ""
}

// Stream is the named-device backend. Device choice is per call; nothing
// global is reinitialized.
type Stream struct {
	mu      sync.RWMutex
	clips   map[string]string
	command string
	runner  Runner
	sink    Sink
}

// StreamConfig configures the stream backend
type StreamConfig struct {
	// Command is the device-aware player (aplay or paplay); empty disables named devices
	Command string
	Runner  Runner
	// Sink plays on the default device; nil disables default-device playback
	Sink Sink
}

// NewStream creates a stream backend with no registered clips
func NewStream(cfg StreamConfig) *Stream {
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Stream{
		clips:   make(map[string]string),
		command: cfg.Command,
		runner:  runner,
		sink:    cfg.Sink,
	}
}

// Register makes a clip playable by name
func (s *Stream) Register(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[name] = path
}

// RegisterCatalog registers every clip of cat
func (s *Stream) RegisterCatalog(cat *catalog.Catalog) {
	for _, clip := range cat.Clips() {
		s.Register(clip.Name, clip.Path)
	}
}

// Play starts req.Clip on req.Device, or on the default device when empty
func (s *Stream) Play(ctx context.Context, req Request, clip *catalog.Clip) error {
	s.mu.RLock()
	path, ok := s.clips[req.Clip]
	s.mu.RUnlock()
	if !ok {
		return &UnknownClipError{Name: req.Clip}
	}

	if req.Device == "" {
		if s.sink == nil {
			return fmt.Errorf("%w: no default output", ErrBackendUnavailable)
		}
		if err := s.sink.Play(clip); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil
	}

	if s.command == "" {
		return &DeviceError{Device: req.Device, Err: fmt.Errorf("%w: no device-aware player command", ErrBackendUnavailable)}
	}

	args := commandArgs(s.command, req.Device, path)
	wait, err := s.runner.Start(ctx, s.command, args...)
	if err != nil {
		return &DeviceError{Device: req.Device, Err: fmt.Errorf("%w: %v", ErrBackendUnavailable, err)}
	}

	go func() {
		if err := wait(); err != nil && ctx.Err() == nil {
			log.WithFields(log.Fields{
				"clip":   req.Clip,
				"device": req.Device,
			}).Warnf("%s exited: %v", s.command, err)
		}
	}()
	return nil
}

// commandArgs builds the argument list binding path to device
func commandArgs(command, device, path string) []string {
	if filepath.Base(command) == "paplay" {
		return []string{"--device=" + device, path}
	}
	return []string{"-q", "-D", device, path}
}
