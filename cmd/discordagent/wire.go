package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/agent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/checkpoint"
	"github.com/Protocol-Lattice/lattice-discord/pkg/config"
	"github.com/Protocol-Lattice/lattice-discord/pkg/cooldown"
	"github.com/Protocol-Lattice/lattice-discord/pkg/media"
	"github.com/Protocol-Lattice/lattice-discord/pkg/metrics"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/tools"
)

// components are the shared pieces behind both the bot and the ask command.
type components struct {
	runner  *agent.Runner
	store   checkpoint.Store
	metrics *metrics.Metrics
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// lateMessenger lets the tool catalog reach the bot, which is built after it.
type lateMessenger struct {
	target tools.DirectMessenger
}

func (l *lateMessenger) SendDirect(ctx context.Context, userID, content string) (string, error) {
	if l.target == nil {
		return "", errors.New("discord session is not available")
	}
	return l.target.SendDirect(ctx, userID, content)
}

func providerConfigs(cfg *config.Config, offline bool) []models.ProviderConfig {
	if offline {
		return []models.ProviderConfig{{Name: "dummy", Kind: "dummy", Models: []string{"echo"}}}
	}
	return cfg.LLMProviders()
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, messenger tools.DirectMessenger, offline bool) (*components, error) {
	c := &components{metrics: metrics.New()}

	selector, err := models.BuildSelector(ctx, providerConfigs(cfg, offline))
	if err != nil {
		return nil, fmt.Errorf("build model selector: %w", err)
	}
	logger.Info("model providers ready", zap.Strings("providers", selector.Providers()))

	catalog, err := tools.DefaultCatalog(tools.Options{
		TavilyAPIKey:  cfg.Tools.TavilyAPIKey,
		SenderEmail:   cfg.Tools.SenderEmail,
		EmailPassword: cfg.Tools.EmailPassword,
		Messenger:     messenger,
		CacheSize:     cfg.Tools.CacheSize,
		CacheTTL:      cfg.Tools.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}

	cpCfg := checkpoint.Config{
		Driver:   cfg.Storage.Checkpoint.Driver,
		DSN:      cfg.Storage.Checkpoint.DSN,
		Database: cfg.Storage.Checkpoint.Database,
		TTL:      cfg.Storage.Checkpoint.TTL,
	}
	if offline {
		cpCfg = checkpoint.Config{Driver: "memory"}
	}
	store, err := checkpoint.Open(ctx, cpCfg)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	c.store = store
	c.closers = append(c.closers, store.Close)

	runner, err := agent.New(agent.Options{
		Models:          selector,
		Tools:           catalog,
		Store:           store,
		Logger:          logger,
		Metrics:         c.metrics,
		MaxHistory:      cfg.Agent.MaxHistory,
		MaxToolCalls:    cfg.Agent.MaxToolCalls,
		RecursionLimit:  cfg.Agent.RecursionLimit,
		ToolConcurrency: cfg.Agent.ToolConcurrency,
		Temperature:     float32(cfg.Agent.Temperature),
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.runner = runner
	return c, nil
}

func buildStudio(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*media.Studio, error) {
	studio := media.NewStudio(media.NewWriter(cfg.Media.Dir), logger)
	if key := cfg.Providers.Gemini.APIKey; key != "" {
		g, err := media.NewGeminiImages(ctx, key, cfg.Media.GeminiImageModel)
		if err != nil {
			return nil, err
		}
		studio.AddGenerator(media.BackendGemini, g)
		studio.AddEditor(media.BackendGemini, g)
	}
	if key := cfg.Providers.A4F.APIKey; key != "" {
		base := cfg.Providers.A4F.BaseURL
		if base == "" {
			base = media.DefaultA4FBaseURL
		}
		studio.AddGenerator(media.BackendFlux, media.NewOpenAIImages(key, base, media.DefaultFluxModel))
		studio.AddGenerator(media.BackendDalle, media.NewOpenAIImages(key, base, media.DefaultDalleModel))
	}
	if key := cfg.Media.BFLAPIKey; key != "" {
		studio.AddEditor(media.BackendFlux, media.NewBFLKontext(key, logger))
	}
	if key := cfg.Media.ElevenLabsAPIKey; key != "" {
		studio.SetSpeech(media.NewElevenLabs(key))
	}
	logger.Info("media backends ready",
		zap.Strings("generators", studio.Generators()),
		zap.Strings("editors", studio.Editors()))
	return studio, nil
}

// buildLimiter shares cooldowns through Redis when configured.
func buildLimiter(ctx context.Context, url string) (cooldown.Limiter, func() error, error) {
	if url == "" {
		return cooldown.NewMemory(), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return cooldown.NewRedis(client), client.Close, nil
}
