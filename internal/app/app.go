package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/config"
	"github.com/RubachokBoss/plagiarism-ledger/internal/database"
	"github.com/RubachokBoss/plagiarism-ledger/internal/delivery/httpd"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/repository"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/integration"
	"github.com/RubachokBoss/plagiarism-ledger/internal/worker"
	"github.com/RubachokBoss/plagiarism-ledger/internal/worker/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Mode decides whether a process owns the ledger. Exactly one serving
// process owns it: only that process loads, appends to, mirrors and saves
// the chain. Standalone workers score checks and forward record requests to
// the owner over RabbitMQ.
type Mode int

const (
	ModeServe Mode = iota
	ModeWorker
)

type App struct {
	mode          Mode
	server        *http.Server
	logger        zerolog.Logger
	config        *config.Config
	db            *sql.DB
	ledgerService service.LedgerService
	checkWorker   worker.CheckWorker
	recordWorker  worker.RecordWorker
	rabbitMQRepo  repository.RabbitMQRepository
}

// New builds the serving process, which owns the ledger.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	return newApp(ModeServe, cfg, log)
}

// NewWorker builds a standalone worker. It never touches the ledger file or
// the database mirror.
func NewWorker(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if !cfg.RabbitMQ.Enabled {
		return nil, errors.New("worker mode requires rabbitmq.enabled")
	}
	return newApp(ModeWorker, cfg, log)
}

func newApp(mode Mode, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		mode:   mode,
		logger: log,
		config: cfg,
	}

	if err := a.build(); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) ownsLedger() bool {
	return a.mode == ModeServe
}

func (a *App) build() error {
	cfg := a.config
	log := a.logger

	classifier, err := analyzer.NewVerdictClassifier(analyzer.Thresholds{
		Safe: cfg.Analysis.SafeThreshold,
		High: cfg.Analysis.HighThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to create verdict classifier: %w", err)
	}

	defaultAlg, known := analyzer.ParseAlgorithm(cfg.Analysis.DefaultAlgorithm)
	if !known {
		log.Warn().
			Str("algorithm", cfg.Analysis.DefaultAlgorithm).
			Str("fallback", defaultAlg.String()).
			Msg("Unknown default algorithm")
	}

	engine := analyzer.NewSimilarityEngine(log)
	checker := analyzer.NewPlagiarismChecker(engine, classifier, defaultAlg, log)

	format, err := codec.ParseFormat(cfg.Ledger.Format)
	if err != nil {
		return err
	}
	ledgerCodec, err := codec.New(format)
	if err != nil {
		return err
	}
	fileStore := repository.NewFileStore(cfg.Ledger.Path, log)

	var deps service.Dependencies

	if cfg.Database.Enabled && a.ownsLedger() {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		deps.EntryRepo = repository.NewEntryRepository(repository.NewSQLRepository(db, cfg.Database.Driver, log))
		log.Info().Str("driver", cfg.Database.Driver).Msg("Ledger mirror enabled")
	}

	if cfg.MinIO.Enabled && a.ownsLedger() {
		snapshots, err := repository.NewMinIOSnapshotRepository(
			cfg.MinIO.Endpoint,
			cfg.MinIO.AccessKeyID,
			cfg.MinIO.SecretAccessKey,
			cfg.MinIO.BucketName,
			cfg.MinIO.Region,
			cfg.MinIO.ObjectPrefix,
			cfg.MinIO.UseSSL,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create snapshot storage: %w", err)
		}
		deps.Snapshots = snapshots
	}

	if cfg.SourceDiscovery.Enabled {
		sd := cfg.SourceDiscovery
		deps.SourceFinder = integration.NewURLSourceFinder(engine, integration.SourceFinderConfig{
			MinConfidence: sd.MinConfidence,
			MaxCandidates: sd.MaxCandidates,
			MaxBodyBytes:  sd.MaxBodyBytes,
			Timeout:       sd.Timeout,
			RetryCount:    sd.RetryCount,
			RetryDelay:    sd.RetryDelay,
			Algorithm:     defaultAlg,

			AllowPrivateHosts: sd.AllowPrivateHosts,
		}, log)
	}

	var (
		publisher      queue.RabbitMQPublisher
		checkConsumer  queue.RabbitMQConsumer
		recordConsumer queue.RabbitMQConsumer
	)
	if cfg.RabbitMQ.Enabled {
		rmq := cfg.RabbitMQ
		rabbitMQRepo, err := repository.NewRabbitMQRepository(rmq.URL, log)
		if err != nil {
			return err
		}
		a.rabbitMQRepo = rabbitMQRepo

		bindings := []struct{ queue, key string }{
			{rmq.CheckQueue, rmq.CheckRoutingKey},
			{rmq.AppendedQueue, rmq.AppendedRoutingKey},
			{rmq.RecordQueue, rmq.RecordRoutingKey},
		}
		for _, b := range bindings {
			if err := rabbitMQRepo.SetupQueue(rmq.Exchange, b.queue, b.key); err != nil {
				return err
			}
		}

		publisher = queue.NewRabbitMQPublisher(rabbitMQRepo.Channel(), rmq.Exchange, queue.RoutingKeys{
			EntryAppended:   rmq.AppendedRoutingKey,
			CheckRequested:  rmq.CheckRoutingKey,
			RecordRequested: rmq.RecordRoutingKey,
		}, log)
		checkConsumer = queue.NewRabbitMQConsumer(rabbitMQRepo.Channel(), rmq.CheckQueue, rmq.ConsumerTag, rmq.PrefetchCount, log)
		if a.ownsLedger() {
			recordConsumer = queue.NewRabbitMQConsumer(rabbitMQRepo.Channel(), rmq.RecordQueue, rmq.ConsumerTag+"-record", rmq.PrefetchCount, log)
			deps.Publisher = publisher
		}
	}

	a.ledgerService = service.NewLedgerService(
		ledger.New(),
		checker,
		ledgerCodec,
		fileStore,
		deps,
		log,
		service.LedgerConfig{
			DefaultAlgorithm: defaultAlg,
			AutoSave:         cfg.Ledger.AutoSave && a.ownsLedger(),
		},
	)

	if a.ownsLedger() {
		loaded := false
		if cfg.Ledger.LoadOnStart {
			if loaded, err = a.loadLedger(); err != nil {
				return err
			}
		}
		if !loaded {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.Timeout)
			err := a.ledgerService.SyncMirror(ctx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("Failed to seed ledger mirror")
			}
		}
	}

	if checkConsumer != nil {
		var checks worker.Checker = a.ledgerService
		if !a.ownsLedger() {
			checks = worker.NewRecordForwarder(a.ledgerService, publisher, log)
		}
		a.checkWorker = worker.NewCheckWorker(
			worker.NewWorkerPool(cfg.Analysis.MaxWorkers, log),
			checkConsumer,
			checks,
			log,
		)
	}
	if recordConsumer != nil {
		a.recordWorker = worker.NewRecordWorker(recordConsumer, a.ledgerService, log)
	}

	if !a.ownsLedger() {
		return nil
	}

	var (
		checkPublisher httpd.CheckPublisher
		workerStats    httpd.StatsProvider
	)
	if a.checkWorker != nil {
		checkPublisher = publisher
		workerStats = ownerStats{check: a.checkWorker, record: a.recordWorker}
	}

	handler := httpd.NewHandler(
		a.ledgerService,
		service.NewExportService(classifier.Thresholds()),
		checkPublisher,
		workerStats,
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpd.RequestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return nil
}

// loadLedger installs the ledger file if there is one. A missing file starts
// a fresh chain; an invalid one aborts startup so it is never overwritten.
func (a *App) loadLedger() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Analysis.Timeout)
	defer cancel()

	result, err := a.ledgerService.Load(ctx)
	switch {
	case errors.Is(err, service.ErrLedgerNotFound):
		a.logger.Info().Str("path", a.config.Ledger.Path).Msg("No ledger file, starting a new chain")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to load ledger on start: %w", err)
	}

	a.logger.Info().
		Int("entries", result.Entries).
		Int("skipped_lines", len(result.Skipped)).
		Msg("Ledger loaded")
	return true, nil
}

// Handler is nil for a standalone worker.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server.Handler
}

func (a *App) LedgerService() service.LedgerService {
	return a.ledgerService
}

// Run starts the queue workers, when messaging is enabled, and serves HTTP
// until Shutdown is called.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("serving requires an application built with New")
	}

	if err := a.startWorkers(ctx); err != nil {
		return err
	}

	a.logger.Info().Msgf("Starting plagiarism ledger on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunWorker consumes check requests without serving HTTP and blocks until
// ctx is done or the delivery channel closes.
func (a *App) RunWorker(ctx context.Context) error {
	if a.checkWorker == nil {
		return errors.New("worker mode requires rabbitmq.enabled")
	}

	if err := a.startWorkers(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.checkWorker.Done():
	}
	return nil
}

func (a *App) startWorkers(ctx context.Context) error {
	if a.checkWorker != nil {
		if err := a.checkWorker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start check worker")
			return err
		}
	}
	if a.recordWorker != nil {
		if err := a.recordWorker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start record worker")
			return err
		}
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down plagiarism ledger...")

	var serverErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
			serverErr = err
		}
	}

	if a.checkWorker != nil {
		if err := a.checkWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop check worker")
		}
	}
	if a.recordWorker != nil {
		if err := a.recordWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop record worker")
		}
	}

	if a.ownsLedger() && a.config.Ledger.AutoSave && a.ledgerService != nil {
		if _, err := a.ledgerService.Save(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to save ledger on shutdown")
		}
	}

	a.closeResources()

	a.logger.Info().Msg("Plagiarism ledger stopped")
	return serverErr
}

func (a *App) closeResources() {
	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
		a.rabbitMQRepo = nil
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
		a.db = nil
	}
}

// ownerStats adds the record worker's counters to the check worker's.
type ownerStats struct {
	check  worker.CheckWorker
	record worker.RecordWorker
}

func (s ownerStats) GetStats() worker.WorkerStats {
	stats := s.check.GetStats()
	if s.record != nil {
		stats.Forwarded = s.record.GetStats()
	}
	return stats
}
