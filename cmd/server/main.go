package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/config"
	"github.com/iliyamo/fleet-booking-client/internal/credential"
	"github.com/iliyamo/fleet-booking-client/internal/database"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/handler"
	"github.com/iliyamo/fleet-booking-client/internal/logging"
	"github.com/iliyamo/fleet-booking-client/internal/middleware"
	"github.com/iliyamo/fleet-booking-client/internal/payment"
	"github.com/iliyamo/fleet-booking-client/internal/queue"
	"github.com/iliyamo/fleet-booking-client/internal/reconcile"
	"github.com/iliyamo/fleet-booking-client/internal/repository"
	"github.com/iliyamo/fleet-booking-client/internal/router"
	"github.com/iliyamo/fleet-booking-client/internal/session"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis serves the credential store and the login throttle.
	var rdb *redis.Client
	if cfg.CredentialStore == "redis" || cfg.RateLimitRedis {
		c, err := config.NewRedisClient(ctx)
		if err != nil {
			if cfg.CredentialStore == "redis" {
				log.Fatalf("redis: %v", err)
			}
			logger.Warn("redis unavailable, login throttle disabled", "error", err)
		} else {
			rdb = c
			defer rdb.Close()
		}
	}

	store, db, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	sessions := session.NewManager(store, session.Options{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
		Skew:       cfg.ExpirySkew,
	})
	sessions.OnExpired(func(reason error) {
		logger.Warn("session ended, login required", "reason", reason)
	})
	go func() {
		state := sessions.Restore(ctx)
		if state == session.Refreshing {
			if err := sessions.Ready(ctx); err != nil {
				logger.Warn("stored session could not be refreshed", "error", err)
			}
			state = sessions.State()
		}
		logger.Info("session restored", "state", state)
	}()

	api := gateway.New(cfg.APIBaseURL, httpClient, sessions, logger)
	reservations := repository.NewReservationRepo(api)
	trips := repository.NewTripRepo(api)
	notifications := repository.NewNotificationRepo(api)

	var provider payment.Provider = payment.Disabled{}
	if cfg.StripeSecretKey != "" {
		provider = payment.NewStripeProvider(cfg.StripeSecretKey, nil, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	}

	var publisher queue.Publisher = queue.LogPublisher{Log: logger}
	if cfg.RabbitMQURL != "" {
		amqpPub := queue.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		defer amqpPub.Close()
		publisher = amqpPub
		go func() {
			if err := queue.StartReceiptConsumer(ctx, cfg.RabbitMQURL, cfg.ReceiptsPath, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("receipt consumer stopped", "error", err)
			}
		}()
	}

	scanner := reconcile.New(reconcile.Options{Reservations: reservations, Logger: logger})
	orch := checkout.New(checkout.Options{
		Reservations: reservations,
		Payments:     repository.NewPaymentRepo(api),
		Provider:     provider,
		Publisher:    publisher,
		Refresher:    scanner,
		Logger:       logger,
		UserID: func() uint64 {
			if s, ok := sessions.Current(); ok {
				return s.User.ID
			}
			return 0
		},
	})
	sessions.OnLogout(func() {
		orch.Reset()
		scanner.UnmountAll()
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e)
	router.RegisterSession(e, handler.NewSessionHandler(sessions), sessions,
		middleware.LoginThrottle(rdb, cfg.CredentialPrefix, cfg.LoginLimit, cfg.LoginWindow))
	router.RegisterViews(e, handler.NewViewHandler(scanner, trips, orch), sessions)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(orch), sessions)
	router.RegisterNotifications(e, handler.NewNotificationHandler(notifications), sessions)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "api", cfg.APIBaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
		os.Exit(1)
	}
}

// openStore builds the credential store selected by CREDENTIAL_STORE. The
// returned *sql.DB is non-nil only for the sql store.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (credential.Store, *sql.DB, error) {
	switch cfg.CredentialStore {
	case "redis":
		return credential.NewRedisStore(rdb, cfg.CredentialPrefix, cfg.CredentialTTL), nil, nil
	case "sql":
		dsn := cfg.DBPath
		if cfg.DBDriver == "mysql" {
			dsn = database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		}
		db, err := database.Open(ctx, cfg.DBDriver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return credential.NewSQLStore(db), db, nil
	case "memory":
		slog.Warn("memory credential store: sessions will not survive a restart")
		return credential.NewMemoryStore(), nil, nil
	default:
		return credential.NewFileStore(cfg.CredentialFile, cfg.CredentialPassphrase), nil, nil
	}
}
