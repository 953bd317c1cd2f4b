// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Ogg Opus clips at 48kHz with hraban/opus
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/cuebox/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// opus always decodes at 48kHz; 120ms is the largest frame
const (
	opusSampleRate   = 48000
	opusMaxFrameSize = 5760
)

// Opus decodes Ogg Opus files
type Opus struct{}

// Decode reads a whole Ogg Opus stream into memory
func (Opus) Decode(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read opus data: %w", err)
	}

	channels, err := opusHeadChannels(data)
	if err != nil {
		return nil, err
	}

	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	defer stream.Close()

	var pcm []int16
	chunk := make([]int16, opusMaxFrameSize*channels)
	for {
		n, err := stream.Read(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}
		// n counts samples per channel
		pcm = append(pcm, chunk[:n*channels]...)
	}

	format := audio.Format{
		Codec:      "opus",
		SampleRate: opusSampleRate,
		Channels:   channels,
		BitDepth:   16,
	}
	return fromSamples(format, widenInt16(pcm)), nil
}

// opusHeadChannels reads the channel count from the OpusHead packet
func opusHeadChannels(data []byte) (int, error) {
	idx := bytes.Index(data, []byte("OpusHead"))
	if idx < 0 || idx+9 >= len(data) {
		return 0, fmt.Errorf("missing OpusHead header")
	}
	channels := int(data[idx+9])
	if channels == 0 {
		return 0, fmt.Errorf("invalid opus channel count: 0")
	}
	return channels, nil
}
