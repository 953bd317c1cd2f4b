// ABOUTME: Assembles catalog, backends, scheduler and controller from config
// ABOUTME: Audio engines are injectable so the stack can be built without hardware
package cmd

import (
	"fmt"

	"github.com/harperreed/cuebox/internal/app"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/catalog"
	"github.com/harperreed/cuebox/internal/config"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

// deps are the hardware-facing pieces of the stack
type deps struct {
	Engine         backend.Engine
	Sink           backend.Sink
	Runner         backend.Runner
	CatalogOptions []catalog.Option
}

// defaultDeps opens malgo and oto for real playback. A malgo failure
// leaves the mixer backend unavailable rather than failing startup.
func defaultDeps(cfg config.Config) deps {
	var engine backend.Engine
	malgoEngine, err := backend.NewMalgoEngine(cfg.Audio.SampleRate, cfg.Audio.Volume)
	if err != nil {
		log.Warnf("Mixer backend unavailable: %v", err)
		engine = backend.NewUnavailableEngine(err)
	} else {
		engine = malgoEngine
	}
	return deps{
		Engine: engine,
		Sink:   backend.NewOtoSink(cfg.Audio.SampleRate, cfg.Audio.Volume),
	}
}

type stack struct {
	catalog  *catalog.Catalog
	mixer    *backend.Mixer
	stream   *backend.Stream
	sched    *scheduler.Scheduler
	ctrl     *app.Controller
	registry *prometheus.Registry
	closers  []interface{ Close() error }
}

// buildStack takes ownership of d.Engine and d.Sink: they are released by
// stack.Close, or before returning when the stack cannot be built.
func buildStack(cfg config.Config, d deps) (_ *stack, err error) {
	st := &stack{}
	if d.Engine != nil {
		st.closers = append(st.closers, d.Engine)
	}
	if c, ok := d.Sink.(interface{ Close() error }); ok {
		st.closers = append(st.closers, c)
	}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	cat, err := catalog.Load(cfg.Catalog.Dir, d.CatalogOptions...)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded %d clips from %s", cat.Len(), cfg.Catalog.Dir)

	st.catalog = cat
	st.registry = prometheus.NewRegistry()
	st.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mixer, err := backend.NewMixer(d.Engine)
	if err != nil {
		log.Warnf("Mixer device enumeration failed: %v", err)
		mixer, err = backend.NewMixer(backend.NewUnavailableEngine(err))
		if err != nil {
			return nil, fmt.Errorf("creating mixer: %w", err)
		}
	}
	st.mixer = mixer

	command := cfg.Backend.StreamCommand
	if command == "" {
		command = backend.DetectCommand()
	}
	if command == "" {
		log.Info("No aplay or paplay found, stream backend limited to the default device")
	}
	st.stream = backend.NewStream(backend.StreamConfig{Command: command, Runner: d.Runner, Sink: d.Sink})
	st.stream.RegisterCatalog(cat)

	kind, err := backend.ParseKind(cfg.Backend.Default)
	if err != nil {
		return nil, err
	}

	st.sched = scheduler.New(cat, backend.NewAdapter(mixer, st.stream), scheduler.Config{
		GuardInterval: cfg.Scheduler.GuardInterval,
		PollInterval:  cfg.Scheduler.PollInterval,
		EventBuffer:   cfg.Scheduler.EventBuffer,
		Metrics:       scheduler.NewMetrics(st.registry),
	})
	st.ctrl = app.New(cat, st.sched, mixer, app.Config{
		Selection: app.Selection{Backend: kind},
	})
	return st, nil
}

// Close releases the audio engine and sink
func (s *stack) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Warnf("Close error: %v", err)
		}
	}
}
