// ABOUTME: Sound catalog loaded once from a directory of audio clips
// ABOUTME: Provides ordered names, lookup by name and cyclic lookup by cursor
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/harperreed/cuebox/pkg/audio"
	"github.com/harperreed/cuebox/pkg/audio/decode"
	"golang.org/x/sync/errgroup"
	log "github.com/sirupsen/logrus"
)

// ErrEmptyCatalog is returned when there are no clips to play
var ErrEmptyCatalog = errors.New("catalog is empty")

// LoadError reports a directory or clip that could not be loaded
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotFoundError is returned by Get for a name that is not in the catalog
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("clip %q not found", e.Name)
}

// Clip is a decoded sound, immutable after load
type Clip struct {
	Name     string
	Path     string
	Duration time.Duration
	Format   audio.Format
	Buffer   *beep.Buffer
}

// Streamer returns a fresh streamer over the whole clip
func (c *Clip) Streamer() beep.StreamSeeker {
	return c.Buffer.Streamer(0, c.Buffer.Len())
}

// Catalog is the ordered, read-only set of clips
type Catalog struct {
	clips  []*Clip
	byName map[string]*Clip
}

// DecodeFunc decodes one clip file
type DecodeFunc func(path string) (*decode.Result, error)

// Option configures Load
type Option func(*loadOptions)

type loadOptions struct {
	decode  DecodeFunc
	workers int
}

// WithDecoder overrides the file decoder
func WithDecoder(fn DecodeFunc) Option {
	return func(o *loadOptions) { o.decode = fn }
}

// WithWorkers sets how many files are decoded concurrently
func WithWorkers(n int) Option {
	return func(o *loadOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Load reads every regular, non-hidden file in dir and decodes it.
// The directory is read once; clips are ordered by file name.
func Load(dir string, opts ...Option) (*Catalog, error) {
	o := loadOptions{decode: decode.File, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrEmptyCatalog
	}
	sort.Strings(names)

	clips := make([]*Clip, len(names))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(o.workers)
	for i := range names {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			clip, err := loadClip(filepath.Join(dir, names[i]), names[i], o.decode)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return New(clips)
}

func loadClip(path, name string, fn DecodeFunc) (*Clip, error) {
	res, err := fn(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	clip := &Clip{
		Name:     name,
		Path:     path,
		Duration: res.Duration(),
		Format:   res.Format,
		Buffer:   res.Buffer,
	}
	log.WithFields(log.Fields{
		"clip":        name,
		"duration":    clip.Duration,
		"codec":       clip.Format.Codec,
		"sample_rate": clip.Format.SampleRate,
		"channels":    clip.Format.Channels,
	}).Debug("Loaded clip")
	return clip, nil
}

// New builds a catalog from already decoded clips, sorting them by name.
// Duplicate names are rejected.
func New(clips []*Clip) (*Catalog, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyCatalog
	}

	sorted := make([]*Clip, len(clips))
	copy(sorted, clips)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	byName := make(map[string]*Clip, len(sorted))
	for _, c := range sorted {
		if _, dup := byName[c.Name]; dup {
			return nil, &LoadError{Path: c.Path, Err: fmt.Errorf("duplicate clip name %q", c.Name)}
		}
		byName[c.Name] = c
	}

	return &Catalog{clips: sorted, byName: byName}, nil
}

// Len returns the number of clips
func (c *Catalog) Len() int { return len(c.clips) }

// Names returns the clip names in catalog order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.clips))
	for i, clip := range c.clips {
		names[i] = clip.Name
	}
	return names
}

// Clips returns the clips in catalog order
func (c *Catalog) Clips() []*Clip {
	out := make([]*Clip, len(c.clips))
	copy(out, c.clips)
	return out
}

// Get looks up a clip by exact file name
func (c *Catalog) Get(name string) (*Clip, error) {
	clip, ok := c.byName[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return clip, nil
}

// ByCursor returns the clip at index modulo the catalog size
func (c *Catalog) ByCursor(index int) (*Clip, error) {
	n := len(c.clips)
	if n == 0 {
		return nil, ErrEmptyCatalog
	}
	i := index % n
	if i < 0 {
		i += n
	}
	return c.clips[i], nil
}
