package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/email"
	"github.com/nexusoptimizer/nexus/internal/handler"
	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/ratelimit"
	"github.com/nexusoptimizer/nexus/internal/repository"
	"github.com/nexusoptimizer/nexus/internal/repository/memory"
	"github.com/nexusoptimizer/nexus/internal/router"
	"github.com/nexusoptimizer/nexus/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting Nexus Optimizer server")

	// Select the storage backend
	var (
		db    *database.Postgres
		rdb   *database.Redis
		repos *repository.Repositories
		store ratelimit.Store
	)

	switch cfg.Storage.Driver {
	case "postgres":
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("connected to PostgreSQL")

		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("connected to Redis")

		repos = &repository.Repositories{
			Accounts:     repository.NewPostgresAccountRepository(db),
			SecurityLog:  repository.NewPostgresSecurityLogRepository(db),
			ResetTickets: repository.NewPostgresResetTicketRepository(db),
			Settings:     repository.NewPostgresSettingsRepository(db),
		}
		store = ratelimit.NewRedisStore(rdb, "ratelimit")

	case "memory":
		log.Warn().Msg("memory storage driver active, all state is lost on restart")
		repos = memory.New()
		store = ratelimit.NewMemoryStore()

	default:
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("unknown storage driver")
	}

	// Initialize token service
	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	if cfg.Security.Tokens.Secret == "" {
		log.Warn().Msg("no token secret configured, sessions will not survive a restart")
	}

	// Initialize email sender
	var sender email.Sender
	switch cfg.Email.Provider {
	case "gmail":
		gmailCfg := cfg.Email.Gmail
		if gmailCfg.CredentialsJSON != "" {
			sender, err = email.NewGmailSender(context.Background(), email.GmailConfig{
				CredentialsJSON: gmailCfg.CredentialsJSON,
				SenderAddress:   gmailCfg.SenderAddress,
				SenderName:      gmailCfg.SenderName,
			})
		} else {
			sender, err = email.NewGmailSenderWithToken(context.Background(),
				gmailCfg.ClientID, gmailCfg.ClientSecret, gmailCfg.RefreshToken,
				gmailCfg.SenderAddress, gmailCfg.SenderName)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Gmail sender")
		}
		log.Info().Str("sender", gmailCfg.SenderAddress).Msg("Gmail sender initialized")
	default:
		sender = email.NewLogSender(log)
	}

	// Initialize services
	securityLogSvc := service.NewSecurityLogService(repos.SecurityLog, log)
	authSvc := service.NewAuthService(repos, securityLogSvc, tokenSvc, sender, cfg, log)
	twoFactorSvc := service.NewTwoFactorService(repos.Accounts, securityLogSvc, cfg, log)

	// Start the reset ticket sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := service.NewSweeper(repos.ResetTickets, cfg.Security.Reset.SweepInterval, log)
	sweeper.Start(sweepCtx)

	// Initialize handlers and middleware
	h := handler.New(db, rdb, log, cfg, authSvc, twoFactorSvc, securityLogSvc)
	mw := middleware.New(log, cfg)

	// Set up router
	r := router.New(h, mw, cfg, tokenSvc, store)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
