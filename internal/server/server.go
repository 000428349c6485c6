// Package server wires the stores, the engine and the HTTP API together.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/rota/internal/availability"
	"github.com/dukerupert/rota/internal/capacity"
	"github.com/dukerupert/rota/internal/database"
	"github.com/dukerupert/rota/internal/fairness"
	"github.com/dukerupert/rota/internal/feed"
	"github.com/dukerupert/rota/internal/generator"
	"github.com/dukerupert/rota/internal/handler"
	"github.com/dukerupert/rota/internal/metrics"
	"github.com/dukerupert/rota/internal/middleware"
	"github.com/dukerupert/rota/internal/rotation"
	"github.com/dukerupert/rota/internal/scheduler"
	"github.com/dukerupert/rota/internal/snapshot"
	"github.com/dukerupert/rota/internal/store"
	"github.com/dukerupert/rota/internal/workload"
)

// Config carries the engine settings the server needs. Zero values fall back
// to the package defaults of each component.
type Config struct {
	Capacity            capacity.Table
	Preferred           availability.Hours
	SaturationThreshold float64
	HorizonDays         int
	MaxOccurrences      int
	Scheduler           scheduler.Config
	GenerateLimit       int
	Feed                bool
	Snapshot            snapshot.Config
	Metrics             *metrics.Prometheus
	Gatherer            prometheus.Gatherer
}

type Server struct {
	db          *sql.DB
	families    *store.FamilyStore
	generator   *generator.Generator
	scorer      *fairness.Scorer
	scheduler   *scheduler.Scheduler
	snapshots   *snapshot.Manager
	hub         *feed.Hub
	generationH *handler.GenerationHandler
	fairnessH   *handler.FairnessHandler
	occurrenceH *handler.OccurrenceHandler
	slotsH      *handler.AvailabilityHandler
	templateH   *handler.TemplateHandler
	snapshotH   *handler.SnapshotHandler
	rateLimiter *middleware.RateLimiter
	gatherer    prometheus.Gatherer
	limit       int
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	if cfg.Capacity == nil {
		cfg.Capacity = capacity.Default()
	}
	if cfg.GenerateLimit <= 0 {
		cfg.GenerateLimit = 10
	}
	if cfg.Scheduler.Horizon <= 0 && cfg.HorizonDays > 0 {
		cfg.Scheduler.Horizon = time.Duration(cfg.HorizonDays) * 24 * time.Hour
	}

	familyStore := store.NewFamilyStore(db)
	memberStore := store.NewFamilyMemberStore(db)
	eventStore := store.NewEventStore(db)
	templateStore := store.NewTemplateStore(db)
	occurrenceStore := store.NewOccurrenceStore(db)
	generationStore := store.NewGenerationStore(db)

	calc := workload.NewCalculator(memberStore, occurrenceStore, eventStore, cfg.Capacity)
	finder := availability.NewFinder(eventStore, cfg.Preferred)

	rotationOpts := []rotation.Option{rotation.WithLogger(logger.With("component", "rotation"))}
	if cfg.SaturationThreshold > 0 {
		rotationOpts = append(rotationOpts, rotation.WithSaturation(cfg.SaturationThreshold))
	}
	engine := rotation.NewEngine(memberStore, cfg.Capacity, calc, finder, rotationOpts...)

	genOpts := []generator.Option{
		generator.WithLogger(logger.With("component", "generator")),
		generator.WithLimit(cfg.MaxOccurrences),
	}
	var sink handler.ScoreSink
	var schedSink scheduler.FairnessSink
	var snapshotCallback snapshot.StatusCallback
	if cfg.Metrics != nil {
		genOpts = append(genOpts, generator.WithMetrics(cfg.Metrics))
		sink = cfg.Metrics
		schedSink = cfg.Metrics
		snapshotCallback = cfg.Metrics.SnapshotStatusChanged
	}
	gen := generator.New(templateStore, generationStore, engine, genOpts...)
	scorer := fairness.NewScorer(memberStore, cfg.Capacity, calc)

	// With the feed on, API and scheduled runs both go through the publisher.
	var hub *feed.Hub
	var genEngine handler.Engine = gen
	if cfg.Feed {
		hub = feed.NewHub(logger.With("component", "feed"))
		genEngine = feed.NewPublisher(gen, templateStore, hub)
	}

	sched := scheduler.New(familyStore, genEngine, scorer, schedSink, cfg.Scheduler, logger.With("component", "scheduler"))
	snapshots := snapshot.NewManager(cfg.Snapshot, db, store.NewSnapshotStore(db), snapshotCallback, logger.With("component", "snapshot"))

	return &Server{
		db:          db,
		families:    familyStore,
		generator:   gen,
		scorer:      scorer,
		scheduler:   sched,
		snapshots:   snapshots,
		hub:         hub,
		generationH: handler.NewGenerationHandler(familyStore, templateStore, genEngine, cfg.HorizonDays, logger.With("component", "generation")),
		fairnessH:   handler.NewFairnessHandler(familyStore, scorer, sink, logger.With("component", "fairness")),
		occurrenceH: handler.NewOccurrenceHandler(familyStore, occurrenceStore, logger.With("component", "occurrence")),
		slotsH:      handler.NewAvailabilityHandler(familyStore, memberStore, finder, logger.With("component", "availability")),
		templateH:   handler.NewTemplateHandler(familyStore, templateStore, logger.With("component", "template")),
		snapshotH:   handler.NewSnapshotHandler(snapshots, logger.With("component", "snapshot")),
		rateLimiter: middleware.NewRateLimiter(),
		gatherer:    cfg.Gatherer,
		limit:       cfg.GenerateLimit,
		logger:      logger,
	}
}

// Scheduler returns the periodic generation job. The caller starts it.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Generator returns the occurrence generator.
func (s *Server) Generator() *generator.Generator {
	return s.generator
}

// Snapshots returns the snapshot manager. The caller starts it.
func (s *Server) Snapshots() *snapshot.Manager {
	return s.snapshots
}

// Hub returns the change feed hub, or nil when the feed is disabled.
func (s *Server) Hub() *feed.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))

	r.Get("/health", s.healthHandler)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/families/{id}", func(r chi.Router) {
			r.With(middleware.RateLimit(s.rateLimiter, "generate", s.limit, time.Minute)).
				Post("/generate", s.generationH.Generate)
			r.Get("/fairness", s.fairnessH.Report)
			r.Get("/occurrences", s.occurrenceH.List)
			r.Get("/templates", s.templateH.List)
			if s.hub != nil {
				r.Get("/feed", feed.Handler(s.hub, s.logger.With("component", "feed")))
			}
		})

		r.Route("/templates/{id}", func(r chi.Router) {
			r.Get("/preview", s.generationH.Preview)
			r.Post("/skip", s.generationH.Skip)
			r.Post("/complete", s.generationH.Complete)
			r.Put("/recurrence", s.templateH.UpdateRecurrence)
		})

		r.Get("/members/{id}/slots", s.slotsH.Slots)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.snapshotH.List)
			r.With(middleware.RateLimit(s.rateLimiter, "snapshot", 2, time.Minute)).
				Post("/", s.snapshotH.Create)
			r.Post("/{id}/verify", s.snapshotH.Verify)
		})
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		resp["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else if v, err := database.SchemaVersion(r.Context(), s.db); err == nil {
		resp["schema_version"] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
