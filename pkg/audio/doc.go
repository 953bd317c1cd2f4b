// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and sample conversion functions used by decoders and outputs
// Package audio provides the sample plumbing shared by clip decoders and outputs.
//
// Decoders produce interleaved int32 samples in the 24-bit range, which are
// turned into beep stereo frames ([2]float64 in [-1, 1]) for mixing. Outputs
// encode frames back to signed 16-bit little-endian PCM with software volume.
//
// Example:
//
//	frames := audio.Frames(samples, format.Channels)
//	n := audio.EncodeS16LE(out, frames, 80, false)
package audio
