// ABOUTME: Oto-based default-device sink for the stream backend
// ABOUTME: Renders whole clips to s16le and hands each to its own oto player
package backend

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/harperreed/cuebox/internal/catalog"
	"github.com/harperreed/cuebox/pkg/audio"
	log "github.com/sirupsen/logrus"
)

// OtoSink plays on the system default device. oto allows one context per
// process, so it is created lazily and never reinitialized.
type OtoSink struct {
	sampleRate int
	volume     int

	once    sync.Once
	otoCtx  *oto.Context
	initErr error

	mu      sync.Mutex
	players []*oto.Player
}

// NewOtoSink creates a sink that opens oto on first use
func NewOtoSink(sampleRate, volume int) *OtoSink {
	return &OtoSink{sampleRate: sampleRate, volume: volume}
}

func (o *OtoSink) open() error {
	o.once.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   o.sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			o.initErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan
		o.otoCtx = ctx
		log.Infof("Default audio output initialized: %dHz, 2 channels (oto)", o.sampleRate)
	})
	return o.initErr
}

// Play renders clip and starts a player for it
func (o *OtoSink) Play(clip *catalog.Clip) error {
	if clip.Buffer == nil {
		return fmt.Errorf("clip %s has no audio data", clip.Name)
	}
	if err := o.open(); err != nil {
		return err
	}

	pcm := renderS16LE(clip, beep.SampleRate(o.sampleRate), o.volume)
	player := o.otoCtx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	o.mu.Lock()
	defer o.mu.Unlock()
	live := o.players[:0]
	for _, p := range o.players {
		if p.IsPlaying() {
			live = append(live, p)
		} else {
			p.Close()
		}
	}
	o.players = append(live, player)
	return nil
}

// Close stops every player
func (o *OtoSink) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.players {
		p.Close()
	}
	o.players = nil
	return nil
}

// renderS16LE resamples clip to rate and encodes it as s16le stereo
func renderS16LE(clip *catalog.Clip, rate beep.SampleRate, volume int) []byte {
	var s beep.Streamer = clip.Streamer()
	if from := clip.Buffer.Format().SampleRate; from != rate {
		s = beep.Resample(resampleQuality, from, rate, s)
	}

	var out bytes.Buffer
	frames := make([][2]float64, 512)
	chunk := make([]byte, len(frames)*4)
	for {
		n, ok := s.Stream(frames)
		if n > 0 {
			written := audio.EncodeS16LE(chunk, frames[:n], volume, false)
			out.Write(chunk[:written])
		}
		if !ok {
			break
		}
	}
	return out.Bytes()
}
