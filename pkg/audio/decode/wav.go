// ABOUTME: WAV audio decoder
// ABOUTME: Decodes RIFF/WAVE PCM clips through beep's wav package
package decode

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/harperreed/cuebox/pkg/audio"
)

// WAV decodes WAVE files
type WAV struct{}

// Decode reads a whole WAVE stream into memory
func (WAV) Decode(r io.Reader) (*Result, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav decoder: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("wav decode error: %w", err)
	}

	return &Result{
		Format: audio.Format{
			Codec:      "wav",
			SampleRate: int(format.SampleRate),
			Channels:   format.NumChannels,
			BitDepth:   format.Precision * 8,
		},
		Buffer: buf,
	}, nil
}
