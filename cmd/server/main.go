package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/database"
	"conta-sync-service/internal/handlers"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/services"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer db.Close()

	if *migrateCmd != "" {
		handleMigration(cfg, log, *migrateCmd, *steps)
		return
	}

	router := handlers.SetupRouter(db, cfg, log)

	scheduler := startScheduler(db, cfg, log)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	// Sync runs are sleep-paced against the remote rate limits and can take
	// minutes, so the write timeout is generous.
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
	}

	go func() {
		log.Info().Str("address", cfg.ServerAddress).Msg("Server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// startScheduler wires the optional cron-driven full sync over every
// registered tenant. Disabled when SYNC_CRON is empty.
func startScheduler(db *sql.DB, cfg *config.Config, log zerolog.Logger) *cron.Cron {
	if cfg.Sync.Cron == "" {
		return nil
	}

	tenantRepo := repositories.NewTenantRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	watermarkRepo := repositories.NewWatermarkRepository(db)
	tokenService := services.NewTokenService(tokenRepo, cfg.OAuth, log)

	c := cron.New()
	_, err := c.AddFunc(cfg.Sync.Cron, func() {
		tenants, err := tenantRepo.ListTenants()
		if err != nil {
			log.Error().Err(err).Msg("Scheduled sync: failed to list tenants")
			return
		}
		for _, tenant := range tenants {
			pipeline, err := services.BuildPipeline(db, cfg, tenant, tokenService, watermarkRepo, log)
			if err != nil {
				log.Error().Err(err).Str("tenant", tenant.ID).Msg("Scheduled sync: failed to build pipeline")
				continue
			}
			if _, err := pipeline.SyncAll(); err != nil {
				log.Error().Err(err).Str("tenant", tenant.ID).Msg("Scheduled sync failed")
				continue
			}
			log.Info().Str("tenant", tenant.ID).Msg("Scheduled sync completed")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("spec", cfg.Sync.Cron).Msg("Invalid sync cron expression")
	}

	c.Start()
	log.Info().Str("spec", cfg.Sync.Cron).Msg("Scheduled sync enabled")
	return c
}

func handleMigration(cfg *config.Config, log zerolog.Logger, command string, steps int) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info().Msg("No migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("Failed to initialize migrate")
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if verErr == migrate.ErrNilVersion {
				log.Info().Msg("No migrations have been applied yet")
				return
			}
			log.Fatal().Err(verErr).Msg("Failed to get version")
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	default:
		log.Fatal().Str("command", command).Msg("Invalid migration command")
	}

	if err != nil {
		if err == migrate.ErrNoChange {
			log.Info().Msg("No migration changes to apply")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migration completed successfully")
}
