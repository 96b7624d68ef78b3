// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel assembles and runs the AleutianPulse burnout sentinel.
//
// The service wires the full assessment pipeline (feature engineering,
// baseline building, anomaly and change-point detection, stability
// assessment, forecasting, and the intervention decision engine) behind
// a gin HTTP API, a websocket live feed, and a streaming scheduler.
//
// # Optional Dependencies
//
// InfluxDB export, Slack alert delivery, GCS report archival, and OTLP
// tracing are all opt-in through configuration. A configured-but-down
// optional dependency degrades with a warning; it never prevents the
// sentinel from starting.
//
// # Enterprise Integration
//
// Options carries the injection seams closed-source deployments use:
// a custom alert transport, an emotion signal provider, and a
// replacement forecast sequence model.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := sentinel.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package sentinel

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianPulse/pkg/logging"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/alerts"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/anomaly"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/baseline"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/changepoint"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/decision"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/features"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/forecast"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/middleware"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/pipeline"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/reports"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/signals"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/stability"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/storage/badger"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/storage/influx"
)

// =============================================================================
// Constants
// =============================================================================

// Version is the sentinel release version reported by /health.
const Version = "0.3.0"

const (
	serviceName = "sentinel-service"

	optionalDepTimeout = 5 * time.Second
	limiterIdleTimeout = 10 * time.Minute
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the sentinel lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and is
// called at most once per instance.
type Service interface {
	// Run starts the scheduler and the HTTP server and blocks until the
	// server stops. Resources are released before Run returns.
	Run() error

	// Router returns the configured gin engine, primarily so integration
	// tests can drive the HTTP surface without a listener.
	Router() *gin.Engine
}

// =============================================================================
// Options
// =============================================================================

// Options carries the optional injection seams. All fields may be zero;
// nil Options behaves like the zero value.
type Options struct {
	// Notifier overrides the config-selected alert transport. Nil keeps
	// the Slack-or-log transport chosen from the configuration.
	Notifier alerts.Notifier

	// Emotion supplies external emotion signals to deployments that have
	// an affect-sensing integration. Nil means signals.StaticProvider:
	// no signal for anyone, no score fusion.
	Emotion signals.Provider

	// SequenceModel replaces the registered damped-Holt sequence model in
	// the forecasting ensemble.
	SequenceModel forecast.SequenceModel

	// ConfigPath, when set, is watched for edits so threshold changes
	// apply without a restart.
	ConfigPath string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Thread Safety
//
// All fields are set during New and read-only afterwards; the components
// themselves are individually safe for concurrent use.
type service struct {
	cfg  config.Config
	opts Options

	logger *logging.Logger
	holder *config.Holder

	db      *badger.DB
	store   *badger.Store
	watcher *config.Watcher
	influx  *influx.Exporter

	notifier alerts.Notifier
	decider  *decision.Engine
	reports  *reports.Generator
	archiver *reports.GCSArchiver

	hub       *handlers.Hub
	runner    *pipeline.Runner
	scheduler *pipeline.Scheduler

	router        *gin.Engine
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New assembles a ready-to-run sentinel from configuration.
//
// # Description
//
// Initialization order matters: logging first so everything after it can
// report, then tracing, storage, the optional external dependencies
// (Influx, Slack, GCS, each degrading with a warning when unreachable),
// then the pipeline engines, the scheduler, and finally the router. A
// storage failure is fatal; the sentinel is useless without its store.
//
// # Inputs
//
//   - cfg: Full service configuration; zero fields fall back to the
//     embedded defaults.
//   - opts: Optional injection seams. May be nil.
//
// # Outputs
//
//   - Service: Ready for Run().
//   - error: Non-nil when storage, alerting, or tracing cannot be set up.
func New(cfg config.Config, opts *Options) (Service, error) {
	s := &service{cfg: applyConfigDefaults(cfg)}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.Emotion == nil {
		s.opts.Emotion = signals.StaticProvider{}
	}

	s.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(s.cfg.Logging.Level),
		LogDir:  s.cfg.Logging.Dir,
		Service: "sentinel",
		JSON:    s.cfg.Logging.JSON,
	})
	log := s.logger.Slog()

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	s.holder = config.NewHolder(s.cfg.Thresholds)
	if s.opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(s.opts.ConfigPath, s.holder, log)
		if err != nil {
			log.Warn("Threshold hot reload disabled", "path", s.opts.ConfigPath, "error", err)
		} else {
			s.watcher = watcher
		}
	}

	s.notifier = s.opts.Notifier
	if s.notifier == nil {
		notifier, err := alerts.ForConfig(s.cfg.Slack, log)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("initialize alert transport: %w", err)
		}
		s.notifier = notifier
	}

	s.initInflux()
	s.initArchiver()
	s.initPipeline()
	s.initRouter()

	log.Info("Sentinel assembled",
		"version", Version,
		"badger_dir", s.cfg.Storage.BadgerDir,
		"in_memory", s.cfg.Storage.InMemory,
		"influx", s.cfg.Influx.Enabled(),
		"slack", s.cfg.Slack.Enabled(),
		"gcs", s.cfg.Reports.GCSEnabled(),
		"emotion_provider", fmt.Sprintf("%T", s.opts.Emotion),
	)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the config watcher, the streaming scheduler, and the HTTP
// server, blocking until the server stops. All resources are released
// before Run returns.
func (s *service) Run() error {
	defer s.cleanup()

	if s.watcher != nil {
		s.watcher.Start(context.Background())
	}
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.logger.Info("Starting sentinel server", "addr", s.cfg.Server.Addr)
	return s.router.Run(s.cfg.Server.Addr)
}

// Router returns the configured gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults backfills zero-valued fields from the embedded
// defaults so a hand-built Config behaves like a loaded one.
func applyConfigDefaults(cfg config.Config) config.Config {
	def := config.Default()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.AssessRatePerMinute == 0 {
		cfg.Server.AssessRatePerMinute = def.Server.AssessRatePerMinute
	}
	if cfg.Server.AssessRateBurst == 0 {
		cfg.Server.AssessRateBurst = def.Server.AssessRateBurst
	}
	if cfg.Storage.BadgerDir == "" && !cfg.Storage.InMemory {
		cfg.Storage.BadgerDir = def.Storage.BadgerDir
	}
	if cfg.Storage.GCInterval == 0 {
		cfg.Storage.GCInterval = def.Storage.GCInterval
	}
	if cfg.Pipeline.StreamInterval == 0 {
		cfg.Pipeline.StreamInterval = def.Pipeline.StreamInterval
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = def.Pipeline.Workers
	}
	if cfg.Pipeline.StabilityWindowDays == 0 {
		cfg.Pipeline.StabilityWindowDays = def.Pipeline.StabilityWindowDays
	}
	if cfg.Pipeline.LookbackDays == 0 {
		cfg.Pipeline.LookbackDays = def.Pipeline.LookbackDays
	}
	if cfg.Pipeline.DigestCron == "" {
		cfg.Pipeline.DigestCron = def.Pipeline.DigestCron
	}
	if cfg.Pipeline.RebuildCron == "" {
		cfg.Pipeline.RebuildCron = def.Pipeline.RebuildCron
	}
	if cfg.Thresholds == (config.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.Forecast.HorizonDays == 0 {
		cfg.Forecast.HorizonDays = def.Forecast.HorizonDays
	}
	if cfg.Forecast.SequenceLength == 0 {
		cfg.Forecast.SequenceLength = def.Forecast.SequenceLength
	}
	if cfg.Forecast.Contamination == 0 {
		cfg.Forecast.Contamination = def.Forecast.Contamination
	}
	if cfg.Intervention.BufferDurationMinutes == 0 {
		cfg.Intervention.BufferDurationMinutes = def.Intervention.BufferDurationMinutes
	}
	if cfg.Intervention.MaxDaily == 0 {
		cfg.Intervention.MaxDaily = def.Intervention.MaxDaily
	}
	if cfg.Reports.OutputDir == "" {
		cfg.Reports.OutputDir = def.Reports.OutputDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	return cfg
}

// initTracer sets up OpenTelemetry tracing.
//
// An OTLP endpoint takes precedence; the stdout exporter is a local
// debugging aid. With neither configured the global no-op provider stays
// in place and spans cost nearly nothing.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	switch {
	case s.cfg.Telemetry.OTLPEndpoint != "":
		conn, err := grpc.NewClient(s.cfg.Telemetry.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("create gRPC connection: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
	case s.cfg.Telemetry.StdoutTrace:
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
	default:
		return nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, optionalDepTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			s.logger.Error("Tracer shutdown failed", "error", err)
		}
	}
	return cleanup, nil
}

// initStore opens BadgerDB (value-log GC included) and builds the store.
func (s *service) initStore() error {
	log := s.logger.Slog()

	var bcfg badger.Config
	if s.cfg.Storage.InMemory {
		bcfg = badger.InMemoryConfig()
	} else {
		bcfg = badger.DefaultConfig(config.ExpandPath(s.cfg.Storage.BadgerDir))
		bcfg.GCInterval = s.cfg.Storage.GCInterval
	}
	bcfg.Logger = log

	db, err := badger.OpenDB(bcfg)
	if err != nil {
		return err
	}
	s.db = db
	s.store = badger.NewStore(db, log)
	return nil
}

// initInflux connects the optional time-series exporter. A failed health
// check is a warning: the exporter stays wired and recovers when the
// server does.
func (s *service) initInflux() {
	if !s.cfg.Influx.Enabled() {
		return
	}
	log := s.logger.Slog()

	exporter, err := influx.NewExporter(s.cfg.Influx, log)
	if err != nil {
		log.Warn("Influx export disabled", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), optionalDepTimeout)
	defer cancel()
	if err := exporter.Ping(ctx); err != nil {
		log.Warn("Influx unreachable at startup, export will retry per write", "error", err)
	}
	s.influx = exporter
}

// initArchiver connects the optional GCS report archiver.
func (s *service) initArchiver() {
	if !s.cfg.Reports.GCSEnabled() {
		return
	}
	log := s.logger.Slog()

	ctx, cancel := context.WithTimeout(context.Background(), optionalDepTimeout)
	defer cancel()
	archiver, err := reports.NewGCSArchiver(ctx, s.cfg.Reports, log)
	if err != nil {
		log.Warn("GCS report archival disabled", "error", err)
		return
	}
	s.archiver = archiver
}

// initPipeline wires the assessment pipeline: engines, decision engine,
// report generator, live-feed hub, runner, and scheduler.
func (s *service) initPipeline() {
	log := s.logger.Slog()

	featureEngine := features.NewEngine(log)
	baselineBuilder := baseline.NewBuilder(s.store, log)
	anomalyDetector := anomaly.NewDetector(s.cfg.Forecast.Contamination, log)
	changeDetector := changepoint.NewDetector(log)
	assessor := stability.NewAssessor(anomalyDetector, changeDetector, s.holder, s.opts.Emotion, s.store, log)

	model := s.opts.SequenceModel
	if model == nil {
		// The registry resolves at assembly so a bad model name fails
		// startup; DefaultRegistry always carries the damped-Holt model.
		resolved, err := forecast.DefaultRegistry().Resolve(forecast.DefaultModelName)
		if err != nil {
			panic(fmt.Sprintf("sentinel: default sequence model missing: %v", err))
		}
		model = resolved
	}
	forecaster := forecast.NewEngine(
		s.store,
		model,
		s.cfg.Forecast.HorizonDays,
		s.cfg.Forecast.SequenceLength,
		s.cfg.Pipeline.LookbackDays,
		log,
	)

	auditLog := badger.NewAuditLogger(s.store)
	s.decider = decision.NewEngine(s.store, s.notifier, s.holder, s.cfg.Intervention, auditLog, log)
	s.reports = reports.NewGenerator(s.store, s.cfg.Reports, s.archiverOrNil(), log)
	s.hub = handlers.NewHub(log)

	runnerOpts := pipeline.RunnerOptions{
		Store:       s.store,
		Features:    featureEngine,
		Baseline:    baselineBuilder,
		Assessor:    assessor,
		Forecaster:  forecaster,
		Decider:     s.decider,
		Broadcaster: s.hub,
		WindowDays:  s.cfg.Pipeline.StabilityWindowDays,
		Log:         log,
	}
	if s.influx != nil {
		runnerOpts.Exporter = s.influx
	}
	s.runner = pipeline.NewRunner(runnerOpts)

	s.scheduler = pipeline.NewScheduler(pipeline.SchedulerOptions{
		Runner:      s.runner,
		Store:       s.store,
		Baseline:    baselineBuilder,
		Notifier:    s.notifier,
		Reports:     s.reports,
		Interval:    s.cfg.Pipeline.StreamInterval,
		Workers:     s.cfg.Pipeline.Workers,
		DigestSpec:  s.cfg.Pipeline.DigestCron,
		RebuildSpec: s.cfg.Pipeline.RebuildCron,
		WindowDays:  s.cfg.Pipeline.StabilityWindowDays,
		Log:         log,
	})
}

// archiverOrNil avoids handing the generator a typed-nil Archiver.
func (s *service) archiverOrNil() reports.Archiver {
	if s.archiver == nil {
		return nil
	}
	return s.archiver
}

// initRouter builds the gin engine and registers every route.
func (s *service) initRouter() {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewPerUserLimiter(
		s.cfg.Server.AssessRatePerMinute,
		s.cfg.Server.AssessRateBurst,
		limiterIdleTimeout,
	)

	api := router.Group("/api/v1")
	api.GET("/health", handlers.Health(Version))

	api.POST("/assess/:user_id", limiter.Middleware(), handlers.AssessUser(s.runner))
	api.GET("/stability/:user_id/current", handlers.CurrentStability(s.store))
	api.GET("/stability/:user_id/history", handlers.StabilityHistory(s.store))
	api.GET("/forecast/:user_id/current", handlers.CurrentForecast(s.store))
	api.GET("/interventions/:user_id/history", handlers.InterventionHistory(s.store))
	api.POST("/interventions/:id/outcome", handlers.RecordInterventionOutcome(s.store, s.decider))

	api.POST("/checkins", handlers.CreateCheckIn(s.store))
	api.POST("/events", handlers.IngestEvents(s.store))
	api.POST("/users", handlers.CreateUser(s.store))
	api.GET("/users", handlers.ListUsers(s.store))
	api.GET("/stats", handlers.Stats(s.store))
	api.GET("/stream", handlers.Stream(s.hub))

	s.router = router
}

// cleanup releases everything New acquired, tolerating partially
// constructed services so a failed New can call it too.
func (s *service) cleanup() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("Config watcher stop failed", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	if s.archiver != nil {
		if err := s.archiver.Close(); err != nil {
			s.logger.Warn("GCS archiver close failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("Database close failed", "error", err)
		}
	}
	alerts.PurgeSecrets()
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
