// ABOUTME: Audio type definitions and sample conversion helpers
// ABOUTME: Bridges decoder int32 samples, beep float frames and s16le output
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a decoded clip
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// ScaleTo24Bit moves a sample of the given bit depth into the 24-bit range
func ScaleTo24Bit(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}

// SampleToFloat converts a 24-bit range sample to beep's [-1, 1] range
func SampleToFloat(sample int32) float64 {
	return float64(sample) / float64(Max24Bit+1)
}

// FloatToInt16 converts a [-1, 1] sample to int16 with clipping
func FloatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}

// Frames converts interleaved 24-bit range samples into stereo frames.
// Mono is duplicated to both sides; extra channels beyond two are dropped.
func Frames(samples []int32, channels int) [][2]float64 {
	if channels <= 0 {
		return nil
	}
	n := len(samples) / channels
	frames := make([][2]float64, n)
	for i := 0; i < n; i++ {
		left := SampleToFloat(samples[i*channels])
		right := left
		if channels > 1 {
			right = SampleToFloat(samples[i*channels+1])
		}
		frames[i] = [2]float64{left, right}
	}
	return frames
}

// EncodeS16LE writes stereo frames as interleaved signed 16-bit little-endian
// PCM into dst, applying volume. dst must hold len(frames)*4 bytes.
func EncodeS16LE(dst []byte, frames [][2]float64, volume int, muted bool) int {
	multiplier := VolumeMultiplier(volume, muted)
	n := len(frames)
	if max := len(dst) / 4; n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*4:], uint16(FloatToInt16(frames[i][0]*multiplier)))
		binary.LittleEndian.PutUint16(dst[i*4+2:], uint16(FloatToInt16(frames[i][1]*multiplier)))
	}
	return n * 4
}

// VolumeMultiplier calculates the gain for a 0-100 volume
func VolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100.0
}
