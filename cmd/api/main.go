package main

import (
	"os"
	"time"

	"arrozal-backend/internal/application/reconcile"
	"arrozal-backend/internal/config"
	"arrozal-backend/internal/interfaces/router"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}

	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("App create failed")
	}

	if db != nil && cfg.ReconcileSpec != "" {
		var locks *silolock.Locker
		if rdb != nil {
			locks = &silolock.Locker{Rdb: rdb, Wait: cfg.LockWait, TTL: cfg.LockTTL}
		}
		sweeper := &reconcile.Sweeper{DB: db, Locks: locks}
		c, err := reconcile.Start(cfg.ReconcileSpec, sweeper)
		if err != nil {
			log.Fatal().Err(err).Msg("Reconciliation cron failed to start")
		}
		if c != nil {
			defer c.Stop()
			log.Info().Str("spec", cfg.ReconcileSpec).Msg("Reconciliation sweep scheduled")
		}
	}

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Silo ledger API listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
