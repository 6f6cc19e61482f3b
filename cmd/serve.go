package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/channels/webex"
	"github.com/nextlevelbuilder/teamsbot/internal/config"
	"github.com/nextlevelbuilder/teamsbot/internal/correlation"
	"github.com/nextlevelbuilder/teamsbot/internal/dispatch"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
	"github.com/nextlevelbuilder/teamsbot/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.Debug("config loaded", "path", resolveConfigPath(), "hash", cfg.Hash())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// 1. Correlation store
	store, err := correlation.Open(ctx, correlationOptions(cfg))
	if err != nil {
		return fmt.Errorf("open correlation store: %w", err)
	}
	defer store.Close()

	// 2. Collaborators
	client := newClient(cfg)
	sender := correlation.NewTrackingSender(client, store)

	// 3. Plugin registry
	registry := plugins.NewRegistry(newCatalog(), cfg.Plugins.Dir)
	if err := registry.Load(ctx); err != nil {
		slog.Warn("plugin directory unreadable, serving built-in commands only", "dir", cfg.Plugins.Dir, "error", err)
	}

	// 4. Dispatcher
	literals, err := buildLiterals(sender)
	if err != nil {
		return fmt.Errorf("build literal table: %w", err)
	}
	dispatcher := dispatch.New(dispatch.Config{
		BotName:        cfg.Bot.Name,
		CallTimeout:    cfg.Dispatch.CallTimeoutDuration(),
		HandlerTimeout: cfg.Dispatch.HandlerTimeoutDuration(),
	}, client, sender, registry, literals, store)

	// 5. Webhook server
	webhook := webex.NewWebhook(context.Background(), webex.WebhookOptions{
		Path:         cfg.Server.Path,
		Secret:       cfg.Server.WebhookSecret,
		Workers:      cfg.Server.Workers,
		RateLimitRPM: cfg.Server.RateLimitRPM,
	}, func(ctx context.Context, ev bus.InboundEvent) {
		dispatcher.Handle(ctx, ev)
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           webhook.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("teamsbot starting",
			"version", Version,
			"config_hash", cfg.Hash(),
			"addr", srv.Addr,
			"path", cfg.Server.Path,
			"backend", cfg.Correlation.Backend,
			"commands", registry.Table().Commands(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("webhook server shutdown", "error", err)
		}
		drained := make(chan struct{})
		go func() {
			webhook.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-sctx.Done():
			slog.Warn("shutdown timeout, cancelling in-flight events")
		}
		webhook.Close()
		return nil
	})
	if cfg.Plugins.Watch {
		g.Go(func() error {
			return registry.Watch(gctx, 0)
		})
	}
	if purger, ok := store.(correlation.Purger); ok {
		sweeper, err := correlation.NewSweeper(purger, cfg.Correlation.SweepCron)
		if err != nil {
			return fmt.Errorf("correlation sweeper: %w", err)
		}
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	return g.Wait()
}
