// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC clips frame by frame with mewkiz/flac
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/harperreed/cuebox/pkg/audio"
	"github.com/mewkiz/flac"
)

// maxPrealloc bounds the sample buffer sized from the untrusted STREAMINFO
// total; longer clips grow through append.
const maxPrealloc = 1 << 22

// FLAC decodes FLAC files
type FLAC struct{}

// Decode reads every frame of a FLAC stream into memory
func (FLAC) Decode(r io.Reader) (*Result, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	format := audio.Format{
		Codec:      "flac",
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   int(info.BitsPerSample),
	}
	if format.Channels == 0 {
		return nil, fmt.Errorf("flac stream has no channels")
	}

	prealloc := uint64(maxPrealloc)
	if total := info.NSamples * uint64(format.Channels); total < prealloc {
		prealloc = total
	}
	samples := make([]int32, 0, prealloc)
	frames := 0
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame error: %w", err)
		}

		if len(frame.Subframes) < format.Channels {
			return nil, fmt.Errorf("flac frame %d has %d subframes, want %d", frames, len(frame.Subframes), format.Channels)
		}
		block := int(frame.BlockSize)
		for ch := 0; ch < format.Channels; ch++ {
			if len(frame.Subframes[ch].Samples) < block {
				return nil, fmt.Errorf("flac frame %d channel %d is short: %d of %d samples", frames, ch, len(frame.Subframes[ch].Samples), block)
			}
		}

		for i := 0; i < block; i++ {
			for ch := 0; ch < format.Channels; ch++ {
				samples = append(samples, audio.ScaleTo24Bit(frame.Subframes[ch].Samples[i], format.BitDepth))
			}
		}
		frames++
	}
	if frames == 0 {
		return nil, fmt.Errorf("flac stream has no audio frames")
	}

	return fromSamples(format, samples), nil
}
