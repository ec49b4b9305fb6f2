package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gaspardpetit/editorbridge/internal/bridge"
	"github.com/gaspardpetit/editorbridge/internal/config"
	"github.com/gaspardpetit/editorbridge/internal/executor"
	"github.com/gaspardpetit/editorbridge/internal/lifecycle"
	"github.com/gaspardpetit/editorbridge/internal/logx"
	"github.com/gaspardpetit/editorbridge/internal/metrics"
	"github.com/gaspardpetit/editorbridge/internal/reconnect"
	"github.com/gaspardpetit/editorbridge/internal/store"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "editorbridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("editorbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := loadConfigFile(&cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(context.Background(), cfg); err != nil {
		logx.Log.Fatal().Err(err).Msg("bridge stopped")
	}
}

// loadConfigFile reads the YAML file, then reapplies the command line so
// explicit flags win over the file.
func loadConfigFile(cfg *config.BridgeConfig) error {
	if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
		return err
	}
	return flag.CommandLine.Parse(os.Args[1:])
}

func run(ctx context.Context, cfg config.BridgeConfig) error {
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	st, err := store.Open(cfg.StateStore)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	exec, closer, err := executor.FromConfig(ctx, cfg.Executor)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	opts, err := bridge.OptionsFromConfig(cfg, st, exec)
	if err != nil {
		return err
	}
	opts.OnMaxAttempts = func(s reconnect.Status) {
		logx.Log.Error().Int("attempts", s.Attempts).Str("error", s.LastError).Msg("server unreachable; check that it is running")
	}
	b := bridge.New(opts)
	coord := lifecycle.NewCoordinator(b, st)
	coord.OnEvent = func(ev lifecycle.Event) { metrics.RecordLifecycleEvent(ev.String()) }

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.StatusAddr != "" {
		token, err := bridge.LoadOrCreateToken(cfg.TokenFile)
		if err != nil {
			return fmt.Errorf("control token: %w", err)
		}
		vi := bridge.VersionInfo{Version: version, BuildSHA: buildSHA, BuildDate: buildDate}
		addr, err := bridge.StartStatusServer(ctx, cfg.StatusAddr, bridge.NewStatusHandler(b, coord, token, vi))
		if err != nil {
			return err
		}
		logx.Log.Info().Str("addr", addr).Str("token_file", cfg.TokenFile).Msg("status api listening")
	}
	if cfg.MetricsAddr != "" {
		addr, err := metrics.StartMetricsServer(ctx, cfg.MetricsAddr)
		if err != nil {
			return err
		}
		logx.Log.Info().Str("addr", addr).Msg("metrics listening")
	}

	if err := coord.Handle(ctx, lifecycle.HostStarted); err != nil {
		logx.Log.Warn().Err(err).Msg("restore preserved state")
	}

	g.Go(func() error {
		defer cancel()
		return b.Run(ctx)
	})
	if cfg.Signals {
		g.Go(func() error {
			lifecycle.WatchSignals(ctx, coord)
			return nil
		})
	}
	if cfg.HostPID > 0 {
		g.Go(func() error {
			lifecycle.WatchHost(ctx, int32(cfg.HostPID), 0, coord)
			return nil
		})
	}
	logx.Log.Info().Str("url", b.CurrentURL()).Str("version", version).Msg("bridge started")
	return g.Wait()
}
