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

	"go.uber.org/zap"

	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/httpserver"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/mongodb"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/ws"
)

// @title           chatcore API
// @version         1.0
// @description     Real-time message delivery for two-party and self chats.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type stores struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	blocks   domain.BlockRepository
	close    func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, err := openStores(cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	// Security components
	accessTTL := time.Duration(cfg.AccessTokenMinutes) * time.Minute
	rememberTTL := time.Duration(cfg.RememberMeDays) * 24 * time.Hour
	tokenSvc := security.NewTokenService(cfg.JWTSecret, accessTTL)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		logger.Fatal("failed to initialize encryptor", zap.Error(err))
	}

	hub := ws.NewHub(logger)
	presence := ws.NewPresence(hub, st.users, logger)

	authSvc := service.NewAuthService(st.users, tokenSvc, passwordHasher, accessTTL, rememberTTL)
	msgSvc := service.NewMessageService(st.users, st.messages, st.blocks, hub, encryptor, logger)

	wsHandler := ws.MakeHandler(hub, presence, authSvc, msgSvc, ws.Options{
		AllowedOrigins: cfg.CORSOrigins,
		RatePerSec:     cfg.WSRatePerSec,
		RateBurst:      cfg.WSRateBurst,
	}, logger)

	router := httpserver.NewRouter(cfg, logger, httpserver.Services{
		Auth:     authSvc,
		Users:    service.NewUserService(st.users),
		Blocks:   service.NewBlockService(st.users, st.blocks),
		Messages: msgSvc,
	}, wsHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{
			users:    postgres.NewUserRepo(db),
			messages: postgres.NewMessageRepo(db),
			blocks:   postgres.NewBlockRepo(db),
			close:    func() { db.Close() },
		}, nil

	case config.DriverMongo:
		db, err := mongodb.Open(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mongodb.Migrate(ctx, db); err != nil {
			db.Client().Disconnect(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{
			users:    mongodb.NewUserRepo(db),
			messages: mongodb.NewMessageRepo(db),
			blocks:   mongodb.NewBlockRepo(db),
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				db.Client().Disconnect(ctx)
			},
		}, nil

	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{
			users:    sqlite.NewUserRepo(db),
			messages: sqlite.NewMessageRepo(db),
			blocks:   sqlite.NewBlockRepo(db),
			close:    func() { db.Close() },
		}, nil
	}
}
