// ABOUTME: Root cobra command for cuebox
// ABOUTME: Binds flags into viper, sets up logging and runs the soundboard
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/harperreed/cuebox/internal/config"
	"github.com/harperreed/cuebox/internal/discovery"
	"github.com/harperreed/cuebox/internal/logging"
	"github.com/harperreed/cuebox/internal/remote"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/harperreed/cuebox/internal/ui"
	"github.com/harperreed/cuebox/internal/version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	noTUI   bool
	v       = viper.New()
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:               "cuebox",
	Short:             "Terminal soundboard with paced playback",
	Long:              `Plays audio clips from a directory on a mixer device or a named stream device, one at a time with a guard interval between clips.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runRoot,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./cuebox.yaml or ~/.config/cuebox/cuebox.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-file", "cuebox.log", "log file path")

	f := rootCmd.Flags()
	f.StringP("dir", "d", "./audio", "clip directory")
	f.String("backend", "mixer", "initial backend (mixer or stream)")
	f.Int("device-index", 0, "initial mixer device index")
	f.Duration("guard", 100*time.Millisecond, "guard interval between clips")
	f.String("remote", "", "remote control listen address, e.g. :8930")
	f.Bool("mdns", false, "advertise the remote control endpoint via mDNS")
	f.BoolVar(&noTUI, "no-tui", false, "disable the TUI and stream logs to stdout")

	for key, name := range map[string]string{"log.level": "log-level", "log.file": "log-file"} {
		mustBind(key, pf.Lookup(name))
	}
	for key, name := range map[string]string{
		"catalog.dir":              "dir",
		"backend.default":          "backend",
		"backend.device_index":     "device-index",
		"scheduler.guard_interval": "guard",
		"remote.listen":            "remote",
		"remote.mdns":              "mdns",
	} {
		mustBind(key, f.Lookup(name))
	}
}

func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding %s: %v", key, err))
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, env and flags into cfg
func loadConfig(cmd *cobra.Command, args []string) error {
	config.Configure(v, cfgFile)
	if noTUI {
		v.Set("ui.enabled", false)
	}
	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	closer, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Stdout: !cfg.UI.Enabled,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, defaultDeps(cfg))
}

// run wires the stack and blocks until ctx is done or the TUI quits
func run(ctx context.Context, cfg config.Config, deps deps) error {
	log.Infof("Starting %s %s", version.Product, version.Version)

	st, err := buildStack(cfg, deps)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var uiEvents <-chan scheduler.Event
	if cfg.UI.Enabled {
		events, unsubscribe := st.ctrl.Subscribe(0)
		defer unsubscribe()
		uiEvents = events
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := st.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	st.ctrl.SelectInitialDevice(cfg.Backend.DeviceIndex)

	if cfg.Remote.Listen != "" {
		srv := remote.NewServer(st.ctrl, remote.Config{
			Listen:   cfg.Remote.Listen,
			Name:     cfg.Remote.Name,
			Gatherer: st.registry,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				errChan <- err
				cancel()
			}
		}()

		if cfg.Remote.MDNS {
			mdns, err := advertise(cfg.Remote)
			if err != nil {
				log.Warnf("Failed to start mDNS advertisement: %v", err)
			} else {
				defer mdns.Stop()
			}
		}
	}

	if cfg.UI.Enabled {
		err := ui.Run(ctx, st.ctrl, uiEvents, ui.Options{
			Name:       cfg.Remote.Name,
			IntervalMs: cfg.Periodic.IntervalMs,
		})
		cancel()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("tui: %w", err)
		}
	} else {
		log.Infof("TUI disabled, %d clips loaded from %s", st.catalog.Len(), cfg.Catalog.Dir)
		<-ctx.Done()
		wg.Wait()
	}

	select {
	case err := <-errChan:
		return err
	default:
	}
	log.Info("Shutdown complete")
	return nil
}

func advertise(rc config.RemoteConfig) (*discovery.Manager, error) {
	_, portText, err := net.SplitHostPort(rc.Listen)
	if err != nil {
		return nil, fmt.Errorf("parsing remote.listen: %w", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("remote.listen needs a fixed port for mDNS, got %q", rc.Listen)
	}
	mgr := discovery.NewManager(discovery.Config{ServiceName: rc.Name, Port: port})
	if err := mgr.Advertise(); err != nil {
		return nil, err
	}
	return mgr, nil
}
