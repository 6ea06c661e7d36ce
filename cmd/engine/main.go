package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/zeusphere/internal/config"
	"github.com/zeusync/zeusphere/internal/core/checkpoint"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/scene"
	"github.com/zeusync/zeusphere/internal/injector"
)

func main() {
	var (
		configPath = flag.String("config", "", "engine config (yaml, optional)")
		scenePath  = flag.String("scene", "", "scene file (.yaml or .json), overrides engine.scene")
		ticks      = flag.Uint64("ticks", 0, "stop after this many ticks (0 = config value, run until signalled if unset)")
		level      = flag.String("log", "", "log level, overrides log.level")
		inspect    = flag.String("inspect", "", "print the header of a checkpoint file and exit")
	)
	flag.Parse()

	if *inspect != "" {
		hdr, cp, err := checkpoint.ReadFile(*inspect)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read checkpoint:", err)
			os.Exit(1)
		}
		fmt.Printf("checkpoint v%d scene=%s tick=%d objects=%d taken=%s\n",
			hdr.Version, hdr.Scene, hdr.Tick, cp.Len(), cp.Time.Format("2006-01-02T15:04:05.000Z07:00"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if *scenePath != "" {
		cfg.Engine.Scene = *scenePath
	}
	if *ticks > 0 {
		cfg.Engine.Ticks = *ticks
	}
	if *level != "" {
		if cfg.Log.Level, err = log.ParseLevel(*level); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if cfg.Engine.Scene == "" {
		fmt.Fprintln(os.Stderr, "missing -scene")
		os.Exit(2)
	}

	logger := injector.ProvideLogger(cfg)
	defer func() { _ = logger.Sync() }()

	sc, err := scene.LoadFile(cfg.Engine.Scene)
	if err != nil {
		logger.Error("Failed to load scene", log.String("path", cfg.Engine.Scene), log.Error(err))
		os.Exit(1)
	}

	eng, cleanup, err := injector.InitializeEngine(cfg, sc, logger)
	if err != nil {
		logger.Error("Failed to build engine", log.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx, nil); err != nil {
		logger.Error("Engine stopped with error", log.Error(err))
		os.Exit(1)
	}
	if f, ok := eng.Last(); ok {
		logger.Info("Run complete",
			log.String("run_id", eng.RunID()),
			log.Tick(f.Tick),
			log.Int("visible", f.Visible),
			log.String("digest", fmt.Sprintf("%016x", f.Digest)))
	}
}
