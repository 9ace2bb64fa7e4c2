package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/plcsnmp/plcsnmp/internal/auth"
	"github.com/plcsnmp/plcsnmp/internal/channels"
	"github.com/plcsnmp/plcsnmp/internal/config"
	"github.com/plcsnmp/plcsnmp/internal/controller"
	"github.com/plcsnmp/plcsnmp/internal/history"
	"github.com/plcsnmp/plcsnmp/internal/logging"
	"github.com/plcsnmp/plcsnmp/internal/poller"
	"github.com/plcsnmp/plcsnmp/internal/server"
	"github.com/plcsnmp/plcsnmp/internal/snmp"
	"github.com/plcsnmp/plcsnmp/internal/supervisor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runBridge(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := loadConfig(configFile, args)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("starting plcsnmp",
		"version", version,
		"controller", cfg.Controller.Address(),
		"status_enabled", cfg.Status.Enabled,
		"history_enabled", cfg.History.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("plcsnmp stopped with error", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfig resolves settings from file, environment and the positional
// controller endpoint, in increasing order of precedence
func loadConfig(path string, args []string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if len(args) > 0 {
		cfg.Controller.Host = args[0]
	}
	if len(args) > 1 {
		port, err := config.ParsePort(args[1])
		if err != nil {
			return nil, fmt.Errorf("controller port: %w", err)
		}
		cfg.Controller.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	events := channels.NewEventChannels(channels.EventChannelsConfig{
		TickBufferSize:       cfg.Events.TickBufferSize,
		TransitionBufferSize: cfg.Events.TransitionBufferSize,
	})
	defer events.Close()

	var tokens *auth.Service
	if cfg.Controller.APIKey != "" {
		var err error
		tokens, err = auth.NewService(cfg.Controller.APIKey, cfg.Controller.TokenExpiry())
		if err != nil {
			return fmt.Errorf("failed to initialize token service: %w", err)
		}
	}

	factory := controller.NewHTTPFactory(controller.HTTPConfig{
		Host:           cfg.Controller.Host,
		Port:           cfg.Controller.Port,
		RequestTimeout: cfg.Controller.RequestTimeout(),
	}, tokens, logger)

	sup := supervisor.New(factory, snmp.NewClient(cfg.Poller.FetchTimeout()),
		supervisor.WithLogger(logger),
		supervisor.WithIdleInterval(cfg.Supervisor.IdleInterval()),
		supervisor.WithReconnectDelay(cfg.Supervisor.ReconnectDelay()),
		supervisor.WithPollerConfig(poller.Config{
			FetchTimeout: cfg.Poller.FetchTimeout(),
			Cooldown:     cfg.Poller.Cooldown(),
			Events:       events,
		}),
		supervisor.WithEvents(events),
	)

	g, gctx := errgroup.WithContext(ctx)

	var (
		onTick       func(channels.TickEvent)
		onTransition func(channels.TransitionEvent)
		onDrained    func()
	)

	if cfg.History.Enabled {
		pool, err := history.Open(ctx, cfg.History.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := history.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("history database ready", "database", cfg.History.Database.DBName)

		recorder := history.NewRecorder(pool, cfg.History.BatchSize, cfg.History.FlushInterval(), logger)
		recCtx, stopRecorder := context.WithCancel(context.Background())
		defer stopRecorder()
		g.Go(func() error { return recorder.Run(recCtx) })
		onTick, onTransition, onDrained = recorder.RecordTick, recorder.RecordTransition, stopRecorder
	}

	if cfg.Status.Enabled {
		srv := server.NewServer(cfg.Status, sup, logger)
		server.Version = version
		g.Go(func() error { return srv.Run(gctx) })
	}

	supervise(gctx, g, sup, events, onTick, onTransition, onDrained)

	return g.Wait()
}

// supervise runs sup until ctx ends and dispatches hub events until the hub
// closes behind it, so the final shutdown transition reaches onTransition.
// onDrained, if set, runs once the last event was dispatched.
func supervise(ctx context.Context, g *errgroup.Group, sup *supervisor.Supervisor, events *channels.EventChannels,
	onTick func(channels.TickEvent), onTransition func(channels.TransitionEvent), onDrained func()) {
	g.Go(func() error {
		if onDrained != nil {
			defer onDrained()
		}
		channels.Consume(context.Background(), events, onTick, onTransition)
		return nil
	})
	g.Go(func() error {
		defer events.Close()
		return sup.Run(ctx)
	})
}
