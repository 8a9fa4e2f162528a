// Checkout relay - external checkout in front of a Shopify store.
// Rotates payments across processor accounts and turns confirmed payments into orders.
// Designed for Cloud Run; all state lives in the document store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-relay/internal/attribution"
	"checkout-relay/internal/config"
	"checkout-relay/internal/handler"
	"checkout-relay/internal/middleware"
	"checkout-relay/internal/order"
	"checkout-relay/internal/payment"
	"checkout-relay/internal/processor"
	"checkout-relay/internal/rotation"
	"checkout-relay/internal/shopify"
	"checkout-relay/internal/store"
	"checkout-relay/internal/transport"
	"checkout-relay/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("shared_cursor", cfg.RedisURL != ""),
		slog.Bool("has_seed", cfg.Seed != nil),
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	seeded, err := store.Seed(ctx, st, cfg.Seed)
	if err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}
	if seeded {
		logger.Info("settings seeded")
	}

	cursor, closeCursor, err := openCursor(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening rotation cursor: %w", err)
	}
	defer closeCursor()

	gateway := processor.NewStripe(cfg.UpstreamTimeout)
	shop := shopify.New(shopify.Config{
		Timeout:     cfg.UpstreamTimeout,
		Fingerprint: transport.ParseFingerprint(cfg.StorefrontFingerprint),
	}, logger)

	orders := order.NewBuilder(shop, st, logger)
	reporter := attribution.NewReporter(
		transport.NewHTTPClient(cfg.UpstreamTimeout, transport.FingerprintDefault),
		st, st,
		attribution.Config{Timeout: cfg.UpstreamTimeout},
		logger,
	)

	payments := payment.NewOrchestrator(payment.Deps{
		Sessions:   st,
		Settings:   st,
		Stats:      st,
		Selector:   rotation.NewRotator(st, logger),
		RoundRobin: rotation.NewRoundRobin(cursor, rotation.DefaultCursorKey),
		Gateway:    gateway,
		AddOns:     orders,
	}, payment.Config{
		DefaultCurrency: cfg.DefaultCurrency,
		PublicBaseURL:   cfg.PublicBaseURL,
	}, logger)

	dispatcher := webhook.NewDispatcher(webhook.Deps{
		Settings: st,
		Sessions: st,
		Stats:    st,
		Orders:   orders,
		Reporter: reporter,
		Carts:    shop,
		Gateway:  gateway,
	}, webhook.Config{SecretPoolLimit: cfg.WebhookSecretPoolLimit}, logger)

	h := handler.New(handler.Deps{
		Payments:  payments,
		Webhooks:  dispatcher,
		Discounts: shop,
		Sessions:  st,
		Settings:  st,
		Stats:     st,
	}, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from the other middleware.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Webhook deliveries in flight hold order claims; let them finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// openStore creates the document store selected by configuration.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendFirestore:
		return store.NewFirestore(ctx, store.FirestoreConfig{
			ProjectID:       cfg.FirestoreProject,
			EmulatorHost:    cfg.EmulatorHost,
			CredentialsFile: cfg.CredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

// openCursor returns the round-robin cursor store. Without REDIS_URL the
// cursor is process-local.
func openCursor(ctx context.Context, cfg *config.Config) (rotation.CursorStore, func(), error) {
	if cfg.RedisURL == "" {
		return rotation.NewMemoryCursor(), func() {}, nil
	}
	c, err := rotation.NewRedisCursor(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
