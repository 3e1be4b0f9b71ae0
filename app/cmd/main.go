package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"copywriter/app/config"
	"copywriter/app/usecase"
	"copywriter/internal/copywriting"
	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/catalog"
	"copywriter/internal/infrastructure/llm"
	"copywriter/internal/infrastructure/metrics"
	"copywriter/internal/infrastructure/store/filesystem"
	"copywriter/internal/infrastructure/store/memory"
	mongorepo "copywriter/internal/infrastructure/store/mongodb"
	"copywriter/internal/infrastructure/store/sqlite"
	"copywriter/internal/infrastructure/transport"
	"copywriter/internal/tui"
)

type cliFlags struct {
	configPath string
	idea       string
	audience   string
	age        string
	format     string
	goal       string
	stream     bool
	tui        bool
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", os.Getenv("COPYWRITER_CONFIG"), "path to YAML config")
	flag.StringVar(&f.idea, "idea", "", "content idea; runs one workflow and prints the summary instead of serving")
	flag.StringVar(&f.audience, "audience", "", "target audience")
	flag.StringVar(&f.age, "age", "25-34", "age bracket")
	flag.StringVar(&f.format, "format", "Social Media Post", "content format")
	flag.StringVar(&f.goal, "goal", "Awareness", "marketing goal")
	flag.BoolVar(&f.stream, "stream", false, "print model tokens to stderr in one-shot mode")
	flag.BoolVar(&f.tui, "tui", false, "collect a brief interactively in the terminal and run it")
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	switch {
	case f.tui:
		// the terminal belongs to the UI
		logger = newLogger(cfg.Log, io.Discard)
	case f.idea != "":
		// keep stdout clean for the summary
		logger = newLogger(cfg.Log, os.Stderr)
	}

	cat, err := catalog.Load(cfg.Workflow.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}

	llmClient, err := llm.New(cfg.LLM.Settings(), logger)
	if err != nil {
		logger.Error("llm client init failed", "err", err)
		os.Exit(1)
	}

	workflow, err := copywriting.NewReloadable(llmClient, cat,
		copywriting.WithLogger(logger),
		copywriting.WithInvokeTimeout(cfg.Workflow.InvokeTimeout),
		copywriting.WithRevisionFeedback(cfg.Workflow.RevisionFeedback),
	)
	if err != nil {
		logger.Error("workflow init failed", "err", err)
		os.Exit(1)
	}

	if f.tui {
		if _, err := tea.NewProgram(tui.NewApp(workflow), tea.WithAltScreen()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if f.idea != "" {
		if err := runOnce(workflow.Workflow(), f, os.Stdout, os.Stderr); err != nil {
			logger.Error("run failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg, workflow, logger); err != nil {
		logger.Error("service failed", "err", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// runOnce executes a single brief in-process and writes the summary as JSON.
func runOnce(workflow *copywriting.Workflow, f cliFlags, out, tokens io.Writer) error {
	req := entity.ProjectRequest{
		ContentIdea:    f.idea,
		TargetAudience: f.audience,
		Age:            f.age,
		Format:         f.format,
		Goal:           f.goal,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var obs copywriting.Observer = copywriting.ObserverFunc(func(entity.Event) {})
	if f.stream {
		obs = copywriting.ObserverFunc(func(e entity.Event) {
			switch e.Type {
			case entity.EventLLMStarted:
				fmt.Fprintf(tokens, "\n--- %s %s ---\n", e.Node, e.Formula)
			case entity.EventLLMToken:
				fmt.Fprint(tokens, e.Text)
			}
		})
	}

	final, err := workflow.RunObserved(ctx, req, obs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(final.FinalSummary)
}

func serve(cfg *config.Config, workflow *copywriting.Reloadable, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories
	runRepo, closeRepo, err := openRunRepo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	reportRepo, err := filesystem.NewReportRepository(cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("init report repo: %w", err)
	}

	// Usecases / services
	hub := transport.NewHub(256, logger)
	worker := usecase.NewRunWorker(
		runRepo,
		reportRepo,
		workflow,
		hub,
		cfg.Workflow.PollInterval,
		cfg.Workflow.RunTimeout,
		logger,
	)
	runSvc := usecase.NewRunService(runRepo, reportRepo, worker, logger)
	reportSvc := usecase.NewReportService(reportRepo)

	// Transport (HTTP handlers)
	handler := transport.NewCopywriterHandler(runSvc, reportSvc, workflow, hub, logger)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.CombinedLoggingHandler(os.Stderr, corsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var watcher *catalog.Watcher
	if cfg.Workflow.WatchCatalog {
		watcher, err = catalog.NewWatcher(cfg.Workflow.CatalogPath, 0, workflow.Reload, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Start(gctx)
		<-gctx.Done()
		worker.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr)
		g.Go(func() error {
			logger.Info("starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// Shutdown sequence
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// openRunRepo picks MongoDB, then SQLite, then memory, depending on what is configured.
func openRunRepo(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.RunRepository, func(), error) {
	switch {
	case cfg.Mongo.URI != "":
		return openMongo(ctx, cfg.Mongo, logger)
	case cfg.SQLite.Path != "":
		repo, err := sqlite.NewRunRepo(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("runs stored in sqlite", "path", cfg.SQLite.Path)
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Error("sqlite close error", "err", err)
			}
		}, nil
	default:
		logger.Warn("no run store configured, runs are kept in memory")
		return memory.NewRunRepo(), func() {}, nil
	}
}

func openMongo(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (repository.RunRepository, func(), error) {
	mongoCtx, mongoCancel := context.WithTimeout(ctx, cfg.Timeout)
	defer mongoCancel()

	client, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("disconnecting mongo")
		if err := client.Disconnect(dctx); err != nil {
			logger.Error("mongo disconnect error", "err", err)
		}
	}

	if err := client.Ping(mongoCtx, nil); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to mongo", "database", cfg.Database)

	repo, err := mongorepo.NewRunRepo(mongoCtx, client.Database(cfg.Database), logger)
	if err != nil {
		disconnect()
		return nil, nil, err
	}
	return repo, disconnect, nil
}
