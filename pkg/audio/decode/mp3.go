// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 clips to 16-bit stereo PCM with go-mp3
package decode

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/harperreed/cuebox/pkg/audio"
)

// MP3 decodes MPEG-1/2 layer III files
type MP3 struct{}

// Decode reads a whole MP3 stream into memory
func (MP3) Decode(r io.Reader) (*Result, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	// go-mp3 always outputs 16-bit stereo little-endian
	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	format := audio.Format{
		Codec:      "mp3",
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}
	return fromSamples(format, unpackPCM(data, 16)), nil
}
