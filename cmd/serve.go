package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omnibothq/omnibot/internal/bootstrap"
	"github.com/omnibothq/omnibot/internal/bot"
	"github.com/omnibothq/omnibot/internal/buffer"
	"github.com/omnibothq/omnibot/internal/channels"
	"github.com/omnibothq/omnibot/internal/channels/meta"
	"github.com/omnibothq/omnibot/internal/channels/telegram"
	"github.com/omnibothq/omnibot/internal/channels/whatsapp"
	"github.com/omnibothq/omnibot/internal/config"
	httpapi "github.com/omnibothq/omnibot/internal/http"
	"github.com/omnibothq/omnibot/internal/llm"
	"github.com/omnibothq/omnibot/internal/media"
	"github.com/omnibothq/omnibot/internal/pipeline"
	"github.com/omnibothq/omnibot/internal/settings"
	"github.com/omnibothq/omnibot/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant: channel adapters, pipeline and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	logger := slog.Default()

	cfgPath := resolveConfigPath()
	if created, err := bootstrap.EnsureConfig(cfgPath); err != nil {
		logger.Warn("config seed failed", "path", cfgPath, "error", err)
	} else if created {
		logger.Info("starter config written", "path", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Verbose && logLevel != slog.LevelDebug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
		logger = slog.Default()
	}
	if cfg.Database.PostgresDSN == "" {
		return errors.New("no database configured, set OMNIBOT_POSTGRES_DSN")
	}
	if err := bootstrap.EnsureDataDirs(cfg.Media.Dir, cfg.Channels.WhatsApp.StoreDir); err != nil {
		return err
	}

	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	stores := pg.NewStores(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set := settings.NewService(stores.Settings, logger)
	resolver := llm.NewResolver(set, stores.Usage, cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, logger)
	mediaStore := media.NewStore(
		media.NewDownloader(cfg.Media.Dir, cfg.Media.MaxBytes),
		media.NewOptimizer(cfg.Media.FFmpegPath, logger),
		logger,
	)
	processor := bot.NewProcessor(stores, set, resolver, mediaStore, logger)
	pipe := pipeline.New(ctx, buffer.RealClock(), processor, set, resolver, logger)

	manager := channels.NewManager()
	pipe.SetDispatch(manager.Dispatch)

	loader := channels.NewTenantLoader(stores.Tenants, set, manager, logger)
	loader.RegisterFactory("telegram", telegram.Factory(pipe, cfg.Channels.Telegram.Token))
	loader.RegisterFactory("whatsapp", whatsapp.Factory(pipe,
		cfg.Channels.WhatsApp.StoreDir, cfg.Media.Dir, cfg.Channels.WhatsApp.Enabled))
	loader.RegisterFactory("facebook", meta.Factory("facebook", cfg.Channels.Meta.AccessToken))
	loader.RegisterFactory("instagram", meta.Factory("instagram", cfg.Channels.Meta.AccessToken))
	if err := loader.LoadAll(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	httpapi.NewStatusHandler(manager).RegisterRoutes(mux)
	meta.NewWebhook(set, pipe, cfg.Channels.Meta.VerifyToken, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	manager.StartAll(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", "error", err)
		}
		manager.StopAll(shutdownCtx)
		pipe.Stop()
		return nil
	})

	return g.Wait()
}
