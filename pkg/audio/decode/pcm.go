// ABOUTME: Raw PCM sample unpacking
// ABOUTME: Converts 16-bit and 24-bit little-endian PCM bytes to int32 samples
package decode

import (
	"encoding/binary"

	"github.com/harperreed/cuebox/pkg/audio"
)

// unpackPCM converts little-endian PCM bytes to int32 samples in the
// 24-bit range. Trailing bytes that do not form a sample are ignored.
func unpackPCM(data []byte, bitDepth int) []int32 {
	if bitDepth == 24 {
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples
	}

	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}

// widenInt16 converts decoded int16 samples to the 24-bit range
func widenInt16(pcm []int16) []int32 {
	samples := make([]int32, len(pcm))
	for i, s := range pcm {
		samples[i] = audio.SampleFromInt16(s)
	}
	return samples
}
