package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rsvphub/internal/adapters/discord"
	"rsvphub/internal/adapters/httpapi"
	"rsvphub/internal/adapters/live"
	"rsvphub/internal/application"
	"rsvphub/internal/config"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/infrastructure/database"
	"rsvphub/internal/infrastructure/i18n"
	"rsvphub/internal/ports/output"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		return err
	}

	eventRepo := database.NewEventRepository(pool)
	attendeeRepo := database.NewAttendeeRepository(pool)
	translator := i18n.NewTranslator(cfg.DefaultLocale)
	engine := capacity.NewEngine(translator)
	hub := live.NewHub(logger)

	var sink output.NotificationSink
	if cfg.DiscordEnabled() {
		notifier, err := discord.NewNotifier(cfg.DiscordToken, cfg.DiscordChannelID, translator, cfg.DefaultLocale)
		if err != nil {
			return err
		}
		sink = notifier
		logger.Info("discord notifications enabled", "channel_id", cfg.DiscordChannelID)
	}

	rsvpService := application.NewRSVPService(attendeeRepo, eventRepo, engine, translator, sink, hub, logger)
	eventService := application.NewEventService(eventRepo, attendeeRepo, engine, logger)

	promoter := application.NewPromoter(rsvpService, cfg.PromoteInterval, logger)
	go promoter.Run(ctx)

	handler := httpapi.NewHandler(eventService, rsvpService, cfg.DefaultLocale)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
