package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/doorwayhq/doorway-api/internal/domain/feedback"
	"github.com/doorwayhq/doorway-api/internal/domain/resolve"
	"github.com/doorwayhq/doorway-api/internal/gateway"
	"github.com/doorwayhq/doorway-api/pkg/config"
	"github.com/doorwayhq/doorway-api/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Gateway
	Buckets  *gateway.TokenBuckets
	Geocoder gateway.Geocoder
	Roads    gateway.RoadFetcher

	// Repositories
	FeedbackRepo feedback.Repository

	// Services
	FeedbackSvc feedback.Service
	ResolveSvc  resolve.Service

	// Handlers
	ResolveHandler  *resolve.Handler
	FeedbackHandler *feedback.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initGateway()
	deps.initServices()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initGateway wires the two upstream clients behind their courtesy buckets.
func (d *Dependencies) initGateway() {
	upstream := d.Config.Upstream

	d.Buckets = gateway.NewTokenBuckets(map[string]gateway.BucketSpec{
		gateway.BucketGeocode:  {RefillEvery: upstream.GeocodeRefillEvery, Burst: upstream.GeocodeBurst},
		gateway.BucketOverpass: {RefillEvery: upstream.OverpassRefillEvery, Burst: upstream.OverpassBurst},
	})
	d.Geocoder = gateway.NewNominatimClient(upstream, d.Buckets, d.Logger)
	d.Roads = gateway.NewOverpassClient(upstream, d.Buckets, d.Logger)
}

func (d *Dependencies) initServices() {
	d.FeedbackRepo = feedback.NewRepository(d.DB.Pool, d.Logger)

	resolveSvc := resolve.NewServiceImpl(d.Geocoder, d.Roads, d.FeedbackRepo, d.Config.Resolver, d.Logger)
	d.ResolveSvc = resolveSvc

	// A correction supersedes whatever the heuristic cached for the place.
	d.FeedbackSvc = feedback.NewServiceImpl(d.FeedbackRepo, resolveSvc.EvictPlace, d.Logger)
}

func (d *Dependencies) initHandlers() {
	d.ResolveHandler = resolve.NewHandler(d.ResolveSvc, d.Logger)
	d.FeedbackHandler = feedback.NewHandler(d.FeedbackSvc, d.Logger)
}

// Close releases held resources.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
