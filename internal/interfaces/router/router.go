package router

import (
	"time"

	compatsvc "arrozal-backend/internal/application/compat"
	ledgersvc "arrozal-backend/internal/application/ledger"
	transfersvc "arrozal-backend/internal/application/transfers"
	"arrozal-backend/internal/config"
	"arrozal-backend/internal/infrastructure/database"
	deliveryhandler "arrozal-backend/internal/interfaces/handlers/deliveries"
	healthhandler "arrozal-backend/internal/interfaces/handlers/health"
	silohandler "arrozal-backend/internal/interfaces/handlers/silos"
	transferhandler "arrozal-backend/internal/interfaces/handlers/transfers"
	"arrozal-backend/internal/middleware"
	"arrozal-backend/internal/pkg/provenance"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the Fiber app with all middleware and routes. DB and
// Redis are optional: without a DATABASE_URL only health and metrics are
// mounted, and without Redis the ledger runs unlocked (single instance).
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{AllowedSuffix: cfg.FrontendURLEndsWith}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opt)
	}

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	healthHandlers := &healthhandler.Handlers{
		Rdb:     rdb,
		Started: time.Now(),
	}
	if db != nil {
		healthHandlers.DB = &gormDBPinger{db: db}
	}
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if db != nil {
		var locks *silolock.Locker
		if rdb != nil {
			locks = &silolock.Locker{Rdb: rdb, Wait: cfg.LockWait, TTL: cfg.LockTTL}
		}

		ledgerService := &ledgersvc.Service{DB: db, Locks: locks}
		transferService := &transfersvc.Service{DB: db, Ledger: ledgerService, Locks: locks}
		analyzer := &compatsvc.Analyzer{
			Ledger: ledgerService,
			Thresholds: compatsvc.Thresholds{
				MoistureWarnPct:    cfg.MoistureWarnPct,
				BrokenRecommendPct: cfg.BrokenRecommendPct,
			},
			Rates: compatsvc.Rates{
				TransferPerTon:     cfg.TransferRatePerTon,
				StoragePerTonMonth: cfg.StorageRatePerTonMonth,
			},
		}

		var plots provenance.Resolver
		if cfg.ProvenanceBaseURL != "" {
			plots = provenance.NewHTTPResolver(cfg.ProvenanceBaseURL, cfg.ProvenanceAPIKey)
		}

		siloHandlers := &silohandler.Handlers{Ledger: ledgerService, Transfers: transferService, Plots: plots}
		siloGroup := app.Group("/api/v1/silos")
		siloGroup.Post("/", siloHandlers.CreateSilo)
		siloGroup.Get("/", siloHandlers.ListSilos)
		siloGroup.Get("/:silo_id", siloHandlers.GetSilo)
		siloGroup.Post("/:silo_id/preview-withdrawal", siloHandlers.PreviewWithdrawal)

		deliveryHandlers := &deliveryhandler.Handlers{Ledger: ledgerService}
		app.Post("/api/v1/deliveries/accept", deliveryHandlers.Accept)

		transferHandlers := &transferhandler.Handlers{
			Service:  transferService,
			Ledger:   ledgerService,
			Analyzer: analyzer,
		}
		transferGroup := app.Group("/api/v1/transfers")
		transferGroup.Post("/silo-to-silo", transferHandlers.SiloToSilo)
		transferGroup.Post("/assign-to-sale", transferHandlers.AssignToSale)
		transferGroup.Post("/analyze-compatibility", transferHandlers.AnalyzeCompatibility)
		transferGroup.Get("/", transferHandlers.ListTransfers)
		app.Get("/api/v1/reservations", transferHandlers.ListReservations)
	}

	return app, db, rdb, nil
}
