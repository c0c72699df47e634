package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pageforge/pageforge/internal/brief"
	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/internal/images"
	"github.com/pageforge/pageforge/internal/logging"
	"github.com/pageforge/pageforge/internal/pipeline"
	"github.com/pageforge/pageforge/internal/planner"
	"github.com/pageforge/pageforge/internal/scene"
	"github.com/pageforge/pageforge/internal/scheduler"
	"github.com/pageforge/pageforge/internal/store"
	"github.com/pageforge/pageforge/internal/streaming"
	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/internal/validation"
	"github.com/pageforge/pageforge/internal/verify"
	"github.com/pageforge/pageforge/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pageforge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	maint, err := scheduler.NewMaintenance(st, logger, cfg.CacheSweepSpec, cfg.VacuumSpec)
	if err != nil {
		return err
	}
	maint.Start()
	defer maint.Stop()

	refCache, err := capability.NewReferenceCache(cfg.referenceTTL(), cfg.CacheSweepSpec)
	if err != nil {
		return err
	}
	defer refCache.Close()

	var gen capability.TextGenerator = capability.Disabled{}
	var imgGen capability.ImageGenerator
	aiEnabled := cfg.OpenAIKey != ""
	if aiEnabled {
		client, err := capability.NewOpenAIClient(cfg.OpenAIKey, cfg.Model, cfg.ImageModel)
		if err != nil {
			return err
		}
		gen = client
		imgGen = client
	} else {
		logger.Warn("no openai api key configured, every stage will use its fallback")
	}

	validator, err := validation.NewLLMValidator()
	if err != nil {
		return err
	}
	templates, err := planner.NewTemplateEngine()
	if err != nil {
		return err
	}

	fetcher := capability.NewHTTPFetcher(&http.Client{Timeout: 30 * time.Second}, refCache)
	genCfg := capability.GenConfig{Model: cfg.Model, Temperature: 0.4}

	mergerOpts := []tokens.MergerOption{}
	if cfg.MinConfidence > 0 {
		mergerOpts = append(mergerOpts, tokens.WithConfidenceThreshold(cfg.MinConfidence))
	}
	if cfg.AcceptRule != "" {
		mergerOpts = append(mergerOpts, tokens.WithAcceptRule(cfg.AcceptRule))
	}

	resolverOpts := []images.ResolverOption{images.WithConcurrency(cfg.ImageConcurrency)}
	if aiEnabled {
		resolverOpts = append(resolverOpts, images.WithEnhancer(gen))
	}

	hub := streaming.NewMemoryHub()
	pipe := pipeline.New(
		brief.NewNormalizer(gen, validator, genCfg),
		tokens.NewAnalyzer(gen, fetcher, validator, logger, genCfg),
		tokens.NewMerger(mergerOpts...),
		planner.NewPlanner(gen, validator, templates, genCfg),
		planner.NewComposer(),
		images.NewResolver(imgGen, logger, resolverOpts...),
		verify.NewVerifier(verify.WithNodeCeiling(cfg.NodeCeiling)),
		hub,
		store.NewRecorder(st),
		logger,
		pipeline.Config{
			StageTimeout: cfg.stageTimeout(),
			MaxAttempts:  cfg.MaxAttempts,
		},
	)

	engine := scene.NewEngine(logger, hub)

	srv := mcp.NewForgeServer(mcp.ForgeServerDeps{
		Runner: pipe,
		Scene:  engine,
		Store:  st,
		Hub:    hub,
		Logger: logger,
	})
	go func() {
		if err := srv.ForwardProgress(ctx); err != nil && ctx.Err() == nil {
			logger.Error("progress forwarder stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("pageforge serving on stdio",
		slog.String("db", cfg.DBPath), slog.Bool("ai_enabled", aiEnabled))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr; stdout belongs to the MCP stdio transport.
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
