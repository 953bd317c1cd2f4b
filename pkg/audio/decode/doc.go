// ABOUTME: Audio decoder package for whole-clip decoding
// ABOUTME: Provides Decoder interface and implementations for WAV, MP3, FLAC, Opus
// Package decode loads complete audio clips into memory.
//
// Supports: WAV (via beep), MP3, FLAC, Ogg Opus
//
// Every decoder returns a Result holding a beep.Buffer of stereo frames and
// the source format, so clip duration is known up front.
//
// Example:
//
//	res, err := decode.File("audio/alpha.wav")
//	fmt.Println(res.Duration())
package decode
