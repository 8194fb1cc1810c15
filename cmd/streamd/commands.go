package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hireloop/streamcore/internal/arena"
	"github.com/hireloop/streamcore/internal/botfeed"
	"github.com/hireloop/streamcore/internal/config"
	"github.com/hireloop/streamcore/internal/domain"
	"github.com/hireloop/streamcore/internal/events"
	"github.com/hireloop/streamcore/internal/history"
	"github.com/hireloop/streamcore/internal/llm"
	"github.com/hireloop/streamcore/internal/prompts"
	"github.com/hireloop/streamcore/internal/research"
	"github.com/hireloop/streamcore/internal/stream"
	"github.com/hireloop/streamcore/web/api"
)

var servePort int

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the event daemon and web API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override web.port from config")
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if servePort > 0 {
		cfg.Web.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var hist *history.Store
	if cfg.General.DatabasePath != "" {
		hist, err = history.New(config.ExpandPath(cfg.General.DatabasePath))
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer hist.Close()
	}

	bots := botfeed.NewStore(logger)
	res := research.NewStore(logger)

	var loader *prompts.Loader
	if dir := cfg.General.PromptOverrideDir; dir != "" {
		loader = prompts.NewLoader(config.ExpandPath(dir))
		watcher, err := prompts.NewWatcher(loader, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("prompt watcher disabled")
		} else {
			defer watcher.Close()
		}
	} else {
		loader = prompts.NewLoader()
	}

	orch := arena.New(arena.Config{
		Generator: llm.NewClient(cfg.Backend.BaseURL, logger),
		Prompts:   loader,
		Logger:    logger,
	})
	defer orch.Stop()

	subs := make(map[string]*stream.Subscription)
	server := api.NewServer(api.Config{
		Addr:          fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Bots:          bots,
		Research:      res,
		Arena:         orch,
		Subscriptions: subs,
		Logger:        logger,
	})

	bots.SetOnChange(func(eventType string) {
		server.Broadcast(api.Event{Type: "botfeed_changed", Data: eventType})
		if hist == nil {
			return
		}
		if eventType == events.TypeRunComplete || eventType == events.TypeRunError {
			recordFinishedRuns(logger, hist, bots)
		}
	})
	res.SetOnChange(func(eventType string) {
		server.Broadcast(api.Event{Type: "research_changed", Data: eventType})
	})
	orch.SetOnUpdate(func() {
		state := orch.State()
		server.Broadcast(api.Event{Type: "arena_update", Data: state})
		if hist == nil {
			return
		}
		if state.Status == domain.PipelineComplete || state.Status == domain.PipelineError {
			if err := hist.RecordArenaRun(state); err != nil {
				logger.Warn().Err(err).Str("run_id", state.ID).Msg("record arena run failed")
			}
		}
	})

	botSub, err := stream.Open(ctx, stream.Config{
		URL:     cfg.Backend.BotEventsURL,
		OnEvent: bots.Apply,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open bot events channel: %w", err)
	}
	defer botSub.Close()
	subs["bots"] = botSub

	resSub, err := stream.Open(ctx, stream.Config{
		URL: cfg.Backend.ResearchEventsURL,
		OnEvent: func(env events.Envelope) {
			// Follow the most recently announced session
			if env.Type == events.TypeSessionStarted && env.SessionID != "" {
				res.SetActiveSession(env.SessionID)
			}
			res.Apply(env)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("open research events channel: %w", err)
	}
	defer resSub.Close()
	subs["research"] = resSub

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	logger.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("addr", fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)).
		Msg("streamd running")

	return g.Wait()
}

// recordFinishedRuns upserts every finished run still held in memory;
// RecordBotRun is idempotent per run id.
func recordFinishedRuns(logger zerolog.Logger, hist *history.Store, bots *botfeed.Store) {
	for _, run := range bots.Runs() {
		if run.Status == domain.RunRunning {
			continue
		}
		if err := hist.RecordBotRun(run); err != nil {
			logger.Warn().Err(err).Str("run_id", run.ID).Msg("record bot run failed")
		}
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("streamd %s\n", version)
}
