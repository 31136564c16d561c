package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/turbinix-be/internal/api"
	"github.com/isdelr/turbinix-be/internal/config"
	"github.com/isdelr/turbinix-be/internal/logger"
	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/notify"
	"github.com/isdelr/turbinix-be/internal/services"
	"github.com/isdelr/turbinix-be/internal/store"
	"github.com/isdelr/turbinix-be/internal/store/jsonfile"
	"github.com/isdelr/turbinix-be/internal/store/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Set up storage
	st, err := openStore(cfg)
	if err != nil {
		logger.LogError("Failed to open storage", err)
		os.Exit(1)
	}
	defer st.Close()

	hasher, err := services.NewPasswordHasher(cfg.PasswordHasher)
	if err != nil {
		logger.LogError("Failed to set up password hasher", err)
		os.Exit(1)
	}

	m := metrics.New(nil)

	// Set up services
	eventService := services.NewEventService(st.Events())
	dispatcher := notify.NewDispatcher(newNotifier(cfg.Mail), notify.DispatcherConfig{
		Async:     cfg.Notify.Mode == "async",
		Timeout:   cfg.Notify.Timeout,
		Retries:   cfg.Notify.Retries,
		QueueSize: cfg.Notify.QueueSize,
		OnStatus:  services.DeliveryReporter(eventService, m),
	})
	if dispatcher.Async() {
		go dispatcher.Run()
	}

	userService := services.NewUserService(st.Users(), hasher, eventService, m)
	verificationService := services.NewVerificationService(
		services.NewCodeRegistry(st.Codes()), st.Users(), hasher, dispatcher, eventService, m)
	entryService := services.NewEntryService(st.Entries())

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Users:         userService,
		Verification:  verificationService,
		Entries:       entryService,
		Events:        eventService,
		Metrics:       m,
		CORSOrigins:   cfg.CORSOrigins,
		VerboseErrors: !cfg.IsProduction(),
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().
			Int("port", cfg.ServerPort).
			Str("storage", cfg.StorageDriver).
			Str("mail", cfg.Mail.Provider).
			Str("notify_mode", cfg.Notify.Mode).
			Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if dispatcher.Async() {
		if err := dispatcher.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Notification dispatcher did not drain in time")
		}
	}

	log.Info().Msg("Server exiting")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		return sqlite.Open(cfg.DatabasePath)
	default:
		return jsonfile.Open(cfg.DataDir)
	}
}

func newNotifier(cfg config.MailConfig) notify.Notifier {
	from := notify.Sender{Address: cfg.FromAddress, Name: cfg.FromName}
	switch cfg.Provider {
	case config.MailSMTP:
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     from,
		})
	case config.MailBrevo:
		return notify.NewBrevoNotifier(notify.BrevoConfig{
			APIKey:   cfg.BrevoAPIKey,
			Endpoint: cfg.BrevoEndpoint,
			From:     from,
		}, nil)
	default:
		return notify.LogNotifier{}
	}
}
