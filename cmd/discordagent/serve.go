package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/lattice-discord/pkg/bot"
	"github.com/Protocol-Lattice/lattice-discord/pkg/concurrent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/counter"
	"github.com/Protocol-Lattice/lattice-discord/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and serve commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	messenger := &lateMessenger{}
	comps, err := buildComponents(ctx, cfg, logger, messenger, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	studio, err := buildStudio(ctx, cfg, logger)
	if err != nil {
		return err
	}
	phrases, err := counter.Open(ctx, cfg.Storage.CounterDB, counter.DefaultPhrases)
	if err != nil {
		return err
	}
	defer phrases.Close()

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.Storage.RedisURL)
	if err != nil {
		return err
	}
	defer closeLimiter()

	b := bot.New(bot.Deps{
		Agent:   comps.runner,
		Studio:  studio,
		Counter: phrases,
		Limiter: limiter,
		Metrics: comps.metrics,
		Pool:    concurrent.NewWorkerPool(cfg.Discord.Workers),
		Logger:  logger,
	}, bot.Settings{
		Prefix:          cfg.Discord.Prefix,
		AllowedChannels: cfg.Discord.RestrictedChannels(),
		RelayChannel:    cfg.Discord.RelayChannel,
		RoastTargets:    cfg.Discord.RoastTargets,
		LoadingFrames:   cfg.Discord.LoadingFrames,
		Welcome:         cfg.Discord.WelcomeMessages,
		CommandTimeout:  cfg.Discord.CommandTimeout,
	})
	messenger.target = b

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Connect(ctx, cfg.Discord.Token) })
	if cfg.Server.Enabled {
		srv := server.New(server.Options{
			Address:       cfg.Server.Address,
			Metrics:       comps.metrics,
			History:       comps.runner,
			ExposeHistory: cfg.Server.ExposeHistory,
			Connected:     b.Connected,
			Logger:        logger,
		})
		g.Go(func() error { return srv.Run(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutdown complete", zap.Error(err))
	return err
}
