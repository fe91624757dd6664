package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/profilestack/internal/account"
	"github.com/kalambet/profilestack/internal/api"
	"github.com/kalambet/profilestack/internal/config"
	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/metrics"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/session"
	"github.com/kalambet/profilestack/internal/storage"
)

const (
	eventPollInterval    = 500 * time.Millisecond
	sessionSweepInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the profile service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server reachability and the session on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "profilestack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ttl, err := cfg.SessionTTL()
	if err != nil {
		return err
	}

	// Open storage.
	if cfg.Storage.Driver == "sqlite" {
		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
	}
	store, err := storage.OpenDriver(cfg.Storage.Driver, cfg.Storage.DataDir, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	backend, err := newBackend(ctx, cfg.AI)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	verifier, err := identity.NewGoogleVerifier(cfg.Auth.GoogleClientID)
	if err != nil {
		return err
	}

	m := metrics.New()
	outbox := events.NewOutbox(store)
	accounts := account.NewService(store, verifier, ttl,
		account.WithEmitter(outbox),
		account.WithMetrics(m),
	)
	handler := api.NewHandler(api.Deps{
		Accounts:  accounts,
		Profiles:  profile.NewManager(store),
		Store:     store,
		Generator: generate.New(backend),
		Events:    outbox,
		Metrics:   m,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start the event worker and the expired session sweeper.
	worker := events.NewWorker(store, publisher, m, eventPollInterval)
	go worker.Run(ctx)
	go sweepSessions(ctx, store, sessionSweepInterval)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("profilestack listening", "addr", addr, "storage", cfg.Storage.Driver, "ai_provider", cfg.AI.Provider, "model", backend.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBackend selects the text generation backend for the configured provider.
func newBackend(ctx context.Context, cfg config.AIConfig) (generate.TextGenerator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return generate.NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	case config.ProviderOpenRouter:
		return generate.NewOpenRouter(cfg.OpenRouterAPIKey, cfg.Model), nil
	case config.ProviderOllama:
		o := generate.NewOllama(cfg.OllamaURL, cfg.Model)
		if !o.IsRunning(ctx) {
			slog.Warn("Ollama is not reachable; generation will fail until it is started", "url", cfg.OllamaURL)
		}
		return o, nil
	}
	return nil, fmt.Errorf("unknown ai.provider %q", cfg.Provider)
}

// newPublisher returns an AMQP publisher when a broker is configured and a
// log publisher otherwise.
func newPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		slog.Info("no events.amqp_url configured; events are logged only")
		return events.LogPublisher{}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("connecting to event broker: %w", err)
	}
	return p, nil
}

type sessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, store sessionSweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := store.DeleteExpiredSessions(ctx, time.Now())
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Warn("deleting expired sessions failed", "error", err)
		case n > 0:
			slog.Info("expired sessions deleted", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func showStatus(ctx context.Context) error {
	d, err := openDevice()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.client.Health(healthCtx); err != nil {
		printStatus("Server", "unreachable at %s", d.cfg.Server.URL)
	} else {
		printStatus("Server", "running at %s", d.cfg.Server.URL)
	}

	printStatus("Session", "%s", d.ctrl.Mode())
	if creds, err := d.ctrl.Credentials(); err == nil {
		printStatus("Account", "%s <%s>", creds.User.Name, creds.User.Email)
	}
	if p := d.ctrl.Active(); p != nil {
		printStatus("Profile", "%s", describeProfile(*p))
	}
	if d.ctrl.Mode() == session.Guest {
		printStatus("Guest file", "%s", d.guest.Path())
	}
	printStatus("Data dir", "%s", d.cfg.Storage.DataDir)
	return nil
}
