package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/ducker"
	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/mixer"
	"github.com/sound-priority/daemon/internal/mixer/pulse"
	"github.com/sound-priority/daemon/internal/mock"
	"github.com/sound-priority/daemon/internal/session"
	"github.com/sound-priority/daemon/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use the simulated sound server")
	backend := flag.String("backend", "pulse", "Sound server backend: pulse or mock")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	logLevel := flag.String("log-level", "", "Override log level")
	flag.Parse()

	if err := run(*configPath, *backend, *mockMode, *port, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "sound-priority: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, backend string, mockMode bool, port int, logLevel string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if env.ConfigPath != "" && !flagSet("config") {
		configPath = env.ConfigPath
	}
	if env.Backend != "" && !flagSet("backend") {
		backend = env.Backend
	}
	if mockMode {
		backend = "mock"
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env.Apply(cfg)
	if port > 0 {
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys, closeSys, err := openBackend(ctx, backend, cfg, log)
	if err != nil {
		return err
	}
	defer closeSys()

	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(store, clockwork.NewRealClock(), cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections)
	broadcaster.SetLogger(log)
	broadcaster.SetPrivacy(&session.PrivacyFilter{
		MaskPaths:  cfg.Server.Privacy.MaskPaths,
		MaskPIDs:   cfg.Server.Privacy.MaskPIDs,
		HiddenApps: cfg.Server.Privacy.HiddenApps,
	})
	defer broadcaster.Stop()

	events := make(chan session.Event, 64)
	d := ducker.New(sys, cfg.Ducking.Clone(),
		ducker.WithLogger(log),
		ducker.WithTiming(cfg.Daemon),
		ducker.WithObserver(events),
	)

	go func() {
		for {
			select {
			case <-d.Done():
				return
			case ev := <-events:
				store.Apply(ev)
				broadcaster.Publish(ev)
			}
		}
	}()

	log.Info("sound_priority.starting", "backend", backend, "config", configPath,
		"server", cfg.Server.Enabled)

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := ws.NewServer(cfg, configPath, d, store, broadcaster, log)
		go func() {
			serverErr <- ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, srv.Handler(), log)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("daemon.shutting_down")
		if cfg.Server.Enabled {
			err = <-serverErr
		}
	case err = <-serverErr:
		if err != nil {
			log.Error("server.failed", "err", err)
		}
	}

	stop()
	d.Close()
	<-d.Done()
	return err
}

// openBackend returns the sound server binding and a func that releases it.
func openBackend(ctx context.Context, name string, cfg *config.Config, log *slog.Logger) (mixer.System, func(), error) {
	switch name {
	case "mock":
		sys, gen := mock.NewDemo(cfg.Daemon.Tick, mock.WithGeneratorLogger(log))
		genCtx, cancel := context.WithCancel(ctx)
		gen.Start(genCtx)
		return sys, cancel, nil
	case "pulse":
		runner, err := pulse.NewExecRunner()
		if err != nil {
			return nil, nil, err
		}
		sys := pulse.New(runner, pulse.WithLogger(log))
		return sys, sys.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
