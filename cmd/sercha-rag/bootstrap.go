package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/extract"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/filestore"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-rag/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-rag/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-rag/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vespa"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
	"github.com/custodia-labs/sercha-rag/internal/runtime"
	"github.com/custodia-labs/sercha-rag/internal/watcher"
	"github.com/custodia-labs/sercha-rag/internal/worker"
)

// infra holds the connections and stores selected by configuration.
type infra struct {
	db          *postgres.DB
	redisClient *redis.Client
	sqliteStore *sqlite.Store

	index     driven.VectorIndex
	documents driven.IndexedDocumentStore
	queryLog  driven.QueryLogStore
	scheduled driven.SchedulerStore
	lock      driven.DistributedLock
	queue     driven.TaskQueue

	closers []func() error
}

func (in *infra) onClose(fn func() error) {
	in.closers = append(in.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (in *infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}

// bootstrap wires adapters and services from configuration.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts cli.BootstrapOptions) (*cli.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	in := &infra{}
	b, err := wire(ctx, cfg, logger, opts, in)
	if err != nil {
		if cerr := in.Close(); cerr != nil {
			logger.Warn("cleanup after failed bootstrap", "error", cerr)
		}
		return nil, err
	}
	return b, nil
}

func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts cli.BootstrapOptions, in *infra) (*cli.Backend, error) {
	if err := connectInfra(ctx, cfg, logger, in); err != nil {
		return nil, err
	}

	// ===== Runtime services =====
	rt := runtime.NewServices(domain.NewRuntimeConfig(cfg.Storage.VectorBackend, cfg.Storage.BookkeepingBackend))
	in.onClose(rt.Close)

	factory := ai.NewFactory()
	embedding, err := factory.CreateEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if err := rt.ValidateAndSetEmbedding(ctx, embedding); err != nil {
		return nil, err
	}
	reranker, err := factory.CreateReranker(&cfg.Reranker)
	if err != nil {
		return nil, err
	}
	if reranker != nil {
		rt.SetReranker(reranker)
	}
	rt.Config().SetRerankByDefault(cfg.Reranker.Enabled)
	rt.Config().SetQueryLogAvailable(in.queryLog != nil)

	logger.Info("runtime configured",
		"vector_backend", cfg.Storage.VectorBackend,
		"bookkeeping_backend", cfg.Storage.BookkeepingBackend,
		"embedding", cfg.Embedding.Provider,
		"dimensions", cfg.Embedding.Dimensions,
		"reranker", reranker != nil,
		"queue", in.queue != nil,
	)

	// ===== Indexing pipeline =====
	extractors := extract.DefaultRegistry(extract.Config{
		OCRLanguage: cfg.Retrieval.OCRLanguage,
		Logger:      logger,
	})
	pipeline, err := postprocessors.NewDefaultPipeline(postprocessors.ChunkConfig{
		MaxChars: cfg.Retrieval.ChunkMaxChars,
		Overlap:  cfg.Retrieval.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	files, err := filestore.New(filestore.Config{
		Root:       cfg.Storage.DataDir,
		Extensions: extractors.Extensions(),
	})
	if err != nil {
		return nil, err
	}

	linker := services.FileLinker{BaseURL: cfg.Server.PublicBaseURL, TTL: cfg.Links.TTL.Duration}
	var signer *auth.LinkSigner
	if cfg.Links.Secret != "" {
		signer, err = auth.NewLinkSigner(cfg.Links.Secret)
		if err != nil {
			return nil, err
		}
		linker.Signer = signer
	}

	// ===== Services =====
	embedder := services.NewEmbedder(services.EmbedderConfig{
		Services:  rt,
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
	})
	indexer := services.NewIndexer(services.IndexerConfig{
		Files:      files,
		Extractors: extractors,
		Pipeline:   pipeline,
		Embedder:   embedder,
		Index:      in.index,
		Documents:  in.documents,
		Lock:       in.lock,
		Progress:   opts.Progress,
		Logger:     logger,
	})
	tasks := services.NewTaskService(services.TaskServiceConfig{
		Queue:   in.queue,
		Indexer: indexer,
		Logger:  logger,
	})
	documents := services.NewDocumentService(services.DocumentServiceConfig{
		Files:      files,
		Extractors: extractors,
		Index:      in.index,
		Documents:  in.documents,
		QueryLog:   in.queryLog,
		Tasks:      tasks,
		Logger:     logger,
	})
	retriever := services.NewRetriever(services.RetrieverConfig{
		Index:    in.index,
		Embedder: embedder,
		Services: rt,
		Logger:   logger,
	})
	search := services.NewSearchService(services.SearchServiceConfig{
		Retriever:  retriever,
		QueryLog:   in.queryLog,
		Linker:     linker,
		TopK:       cfg.Retrieval.TopK,
		CandidateK: cfg.Retrieval.CandidateK,
		Logger:     logger,
	})
	galaxy := services.NewGalaxyService(services.GalaxyServiceConfig{
		Index:    in.index,
		Embedder: embedder,
		QueryLog: in.queryLog,
		Logger:   logger,
	})
	chat := services.NewChatService(services.ChatServiceConfig{
		Retriever:  retriever,
		Summarizer: ai.NewFrequencySummarizer(),
		Linker:     linker,
		Logger:     logger,
	})

	b := &cli.Backend{
		Search:    search,
		Documents: documents,
		Indexer:   indexer,
		Tasks:     tasks,
		Close:     in.Close,
	}

	b.Serve = func(ctx context.Context) error {
		return serve(ctx, cfg, logger, in, runner{
			indexer: indexer,
			tasks:   tasks,
			http: http.Services{
				Search:    search,
				Galaxy:    galaxy,
				Chat:      chat,
				Documents: documents,
				Indexer:   indexer,
				Tasks:     tasks,
				Checks:    readinessChecks(in, rt),
			},
			signer: signer,
		})
	}
	return b, nil
}

// connectInfra opens the databases and selects stores, the lock and the queue.
func connectInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger, in *infra) error {
	var err error

	// ===== PostgreSQL =====
	if cfg.NeedsPostgres() {
		in.db, err = postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Storage.DatabaseURL,
			MaxOpenConns:    cfg.Storage.DBMaxOpenConns,
			MaxIdleConns:    cfg.Storage.DBMaxIdleConns,
			ConnMaxLifetime: cfg.Storage.DBConnMaxLifetime.Duration,
			ConnMaxIdleTime: cfg.Storage.DBConnMaxLifetime.Duration,
		})
		if err != nil {
			return err
		}
		in.onClose(in.db.Close)
		if err := in.db.InitSchema(ctx); err != nil {
			return err
		}
		logger.Info("postgres connected")
	}

	// ===== Redis (optional) =====
	if cfg.Storage.RedisURL != "" {
		in.redisClient, err = redisadapter.Connect(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return err
		}
		in.onClose(in.redisClient.Close)
		logger.Info("redis connected")
	}

	// ===== Vector index =====
	dims := cfg.Embedding.Dimensions
	switch cfg.Storage.VectorBackend {
	case config.BackendPostgres:
		in.index, err = postgres.NewVectorIndex(ctx, in.db, postgres.VectorIndexConfig{
			Collection: cfg.Storage.Collection,
			Dimensions: dims,
			Model:      cfg.Embedding.Model,
		})
	case config.BackendVespa:
		in.index, err = vespa.NewVectorIndex(vespa.DefaultConfig(cfg.Storage.VespaURL, dims))
		if err == nil {
			if herr := in.index.HealthCheck(ctx); herr != nil {
				logger.Warn("vespa health check failed, search may not work", "error", herr)
			}
		}
	default:
		in.index, err = memory.NewVectorIndex(dims)
	}
	if err != nil {
		return err
	}
	in.onClose(in.index.Close)

	// ===== Bookkeeping =====
	switch cfg.Storage.BookkeepingBackend {
	case config.BackendSQLite:
		in.sqliteStore, err = sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		in.onClose(in.sqliteStore.Close)
		in.documents = in.sqliteStore.DocumentStore()
		in.queryLog = in.sqliteStore.QueryLog()
		in.scheduled = in.sqliteStore.SchedulerStore()
	case config.BackendPostgres:
		in.documents = postgres.NewDocumentStore(in.db)
		in.queryLog = postgres.NewQueryLogStore(in.db)
		in.scheduled = postgres.NewSchedulerStore(in.db)
	default:
		in.documents = memory.NewDocumentStore()
		in.queryLog = memory.NewQueryLog(cfg.Storage.QueryLogCapacity)
		in.scheduled = memory.NewSchedulerStore()
	}
	// The search log is shared across replicas when Redis is available
	if in.redisClient != nil {
		in.queryLog = redisadapter.NewQueryLog(in.redisClient, cfg.Storage.QueryLogCapacity)
	}

	// ===== Lock and task queue (Redis if available, otherwise PostgreSQL) =====
	switch {
	case in.redisClient != nil:
		in.lock = redisadapter.NewLock(in.redisClient)
		in.queue, err = redisqueue.NewQueue(ctx, in.redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			return err
		}
		logger.Info("using redis task queue and lock")
	case in.db != nil:
		in.lock = postgres.NewAdvisoryLock(in.db)
		in.queue = postgresqueue.NewQueue(in.db.DB)
		logger.Info("using postgres task queue and advisory lock")
	default:
		logger.Info("no task queue configured, indexing tasks run inline")
	}
	if in.queue != nil {
		in.onClose(in.queue.Close)
	}
	return nil
}

func readinessChecks(in *infra, rt *runtime.Services) map[string]http.Pinger {
	checks := map[string]http.Pinger{
		"index": http.PingFunc(in.index.HealthCheck),
		"embedder": http.PingFunc(func(ctx context.Context) error {
			svc := rt.EmbeddingService()
			if svc == nil {
				return domain.ErrEmbedding
			}
			return svc.HealthCheck(ctx)
		}),
	}
	if in.queue != nil {
		checks["queue"] = in.queue
	}
	if in.db != nil {
		checks["postgres"] = in.db
	}
	if in.sqliteStore != nil {
		checks["sqlite"] = in.sqliteStore
	}
	if in.lock != nil {
		checks["lock"] = in.lock
	}
	return checks
}

type runner struct {
	indexer *services.Indexer
	tasks   driving.TaskService
	http    http.Services
	signer  *auth.LinkSigner
}

// serve runs the HTTP API and the worker side selected by the run mode
// until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, in *infra, r runner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("component failed", "component", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	if cfg.RunsWorker() {
		if in.queue != nil {
			scheduler := services.NewScheduler(services.SchedulerConfig{
				Store:        in.scheduled,
				TaskQueue:    in.queue,
				Lock:         in.lock,
				Logger:       logger,
				LockRequired: cfg.Worker.LockRequired,
			})
			if cfg.Worker.SweepInterval.Duration > 0 {
				if err := scheduler.EnsureScheduledTask(ctx, domain.DefaultSweepSchedule(cfg.Worker.SweepInterval.Duration)); err != nil {
					return err
				}
			}

			w := worker.NewWorker(worker.WorkerConfig{
				TaskQueue:      in.queue,
				Indexer:        r.indexer,
				Scheduler:      scheduler,
				Logger:         logger,
				Concurrency:    cfg.Worker.Concurrency,
				DequeueTimeout: cfg.Worker.DequeueTimeout,
			})
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			if r.http.Checks != nil {
				r.http.Checks["worker"] = w
			}
		}

		if cfg.Worker.WatchUploads {
			wt, err := watcher.New(watcher.Config{
				Root:     cfg.Storage.DataDir,
				Tasks:    r.tasks,
				Debounce: cfg.Worker.WatchDebounce.Duration,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			run("watcher", wt.Run)
		}
	}

	if cfg.RunsAPI() {
		svc := r.http
		if r.signer != nil {
			svc.LinkSigner = r.signer
		}
		server := http.NewServer(http.Config{
			Host:        "0.0.0.0",
			Port:        cfg.Server.Port,
			Version:     version,
			CORSOrigins: cfg.Server.CORSOrigins,
			DefaultTopK: cfg.Retrieval.TopK,
			Logger:      logger,
		}, svc)
		run("http", server.Start)
	}

	<-ctx.Done()
	wg.Wait()
	return errors.Join(errs...)
}
