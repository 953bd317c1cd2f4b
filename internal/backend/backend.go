// ABOUTME: Playback backend adapter shared types and dispatch
// ABOUTME: Routes a playback request to the mixer or stream backend
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/cuebox/internal/catalog"
)

// ErrBackendUnavailable is returned when a backend or device cannot be opened
var ErrBackendUnavailable = errors.New("backend unavailable")

// UnknownClipError is returned when a backend has no registration for a clip
type UnknownClipError struct {
	Name string
}

func (e *UnknownClipError) Error() string {
	return fmt.Sprintf("unknown clip %q", e.Name)
}

// DeviceError reports a device that could not be selected or opened
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Kind identifies a backend
type Kind int

const (
	// KindMixer plays through the device-enumerated mixer
	KindMixer Kind = iota
	// KindStream plays registered clips on a named device
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindMixer:
		return "mixer"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a backend name to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mixer", "":
		return KindMixer, nil
	case "stream":
		return KindStream, nil
	default:
		return 0, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, s)
	}
}

// Request is a single playback request
type Request struct {
	ID      uuid.UUID
	Clip    string
	Backend Kind
	Device  string
	Next    bool
}

// NewRequest creates a named request with a fresh ID
func NewRequest(clip string, kind Kind, device string) Request {
	return Request{ID: uuid.New(), Clip: clip, Backend: kind, Device: device}
}

// NewNextRequest creates a next-in-sequence request with a fresh ID
func NewNextRequest(kind Kind, device string) Request {
	return Request{ID: uuid.New(), Backend: kind, Device: device, Next: true}
}

// Player starts playback of a resolved clip. It returns once output has
// been handed to the device, not when playback ends.
type Player interface {
	Play(ctx context.Context, req Request, clip *catalog.Clip) error
}

// Adapter dispatches requests by backend kind
type Adapter struct {
	mixer  Player
	stream Player
}

// NewAdapter creates an adapter. Either backend may be nil when unavailable.
func NewAdapter(mixer, stream Player) *Adapter {
	return &Adapter{mixer: mixer, stream: stream}
}

// Play routes req to its backend
func (a *Adapter) Play(ctx context.Context, req Request, clip *catalog.Clip) error {
	var p Player
	switch req.Backend {
	case KindMixer:
		p = a.mixer
	case KindStream:
		p = a.stream
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, req.Backend)
	}
	return p.Play(ctx, req, clip)
}
