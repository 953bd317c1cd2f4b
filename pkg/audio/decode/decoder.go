// ABOUTME: Decoder interface definition and file dispatch
// ABOUTME: Decodes a whole clip into a beep buffer selected by file extension
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/harperreed/cuebox/pkg/audio"
)

// ErrUnsupportedFormat is returned for file extensions with no decoder
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder decodes a complete encoded clip into memory
type Decoder interface {
	// Decode reads r to the end and returns the decoded clip
	Decode(r io.Reader) (*Result, error)
}

// Result is a fully decoded clip
type Result struct {
	Format audio.Format
	Buffer *beep.Buffer
}

// Duration is the playing time of the decoded buffer
func (r *Result) Duration() time.Duration {
	return r.Buffer.Format().SampleRate.D(r.Buffer.Len())
}

// Extensions lists the file extensions ForExtension understands
func Extensions() []string {
	return []string{".flac", ".mp3", ".ogg", ".opus", ".wav"}
}

// ForExtension returns the decoder for a file extension (with leading dot)
func ForExtension(ext string) (Decoder, error) {
	switch strings.ToLower(ext) {
	case ".wav":
		return WAV{}, nil
	case ".mp3":
		return MP3{}, nil
	case ".flac":
		return FLAC{}, nil
	case ".opus", ".ogg":
		return Opus{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// File decodes the clip at path
func File(path string) (*Result, error) {
	dec, err := ForExtension(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return res, nil
}

// fromSamples buffers interleaved 24-bit range samples as stereo frames
func fromSamples(format audio.Format, samples []int32) *Result {
	bf := beep.Format{
		SampleRate:  beep.SampleRate(format.SampleRate),
		NumChannels: 2,
		Precision:   2,
	}
	buf := beep.NewBuffer(bf)
	buf.Append(&frameStreamer{frames: audio.Frames(samples, format.Channels)})
	return &Result{Format: format, Buffer: buf}
}

// frameStreamer streams a fixed slice of frames once
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *frameStreamer) Err() error { return nil }
