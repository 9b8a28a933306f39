package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"weekcal/internal/ai"
	"weekcal/internal/cache"
	"weekcal/internal/config"
	"weekcal/internal/digest"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/pipeline"
)

const version = "0.1.0"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "weekcal",
		Short: "Merge calendar feeds and build an AI-assisted weekly digest",
		Long: `weekcal loads per-group ICS feeds, deduplicates and window-filters them,
matches events against a canonical reference calendar, and turns newsletter
content into a categorized weekly summary.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional.
			if err := godotenv.Load(); err == nil {
				appLog.Debug("loaded .env")
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/weekcal/config.yaml", "Path to config file")

	root.AddCommand(
		newServeCmd(),
		newEventsCmd(),
		newOrganizeCmd(),
		newWeeklyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg       *config.Config
	store     cache.Store
	pipe      *pipeline.Pipeline
	organizer *ai.Organizer
	analyzer  *digest.Analyzer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	appLog.Info("effective config",
		"version", version,
		"config_path", configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"groups", len(cfg.Groups),
		"sources", len(cfg.Sources),
		"reference", cfg.Reference.ID,
		"cache_backend", cfg.Cache.Backend,
		"models", len(cfg.AI.Models),
	)

	store, err := cache.Open(ctx, cfg.Cache.Backend, cfg.Cache.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	pipe, err := pipeline.New(cfg, ics.NewLoader(cfg.FeedDir, cfg.CacheDir))
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	var chain *ai.Chain
	if cfg.AI.APIKey != "" {
		gem, err := ai.NewGemini(ctx, cfg.AI.APIKey)
		if err != nil {
			return nil, err
		}
		chain = ai.NewChain(gem, cfg.AI.Models)
	} else {
		appLog.Warn("no AI API key configured; digests fall back to keyword classification")
	}

	analyzer, err := digest.NewAnalyzer(chain,
		cache.NewDayCache("weekly", store, cfg.WeeklyTTL(), cfg.Location()),
		digest.Options{
			Boundary:      cfg.WeekBoundary(),
			Location:      cfg.Location(),
			SocialSources: cfg.Digest.SocialSources,
			NoisePatterns: cfg.Digest.NoisePatterns,
			Temperature:   cfg.AI.Temperature,
		})
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}

	return &app{
		cfg:       cfg,
		store:     store,
		pipe:      pipe,
		organizer: ai.NewOrganizer(chain, store, cfg.OrganizerTTL(), cfg.AI.Temperature),
		analyzer:  analyzer,
	}, nil
}

func (a *app) Close() {
	if c, ok := a.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			appLog.Error("cache close failed", err)
		}
	}
}
