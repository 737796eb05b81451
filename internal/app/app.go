// Package app wires every component into a runnable process, grounded on
// the teacher's internal/app.App lifecycle (New/Start/Run/Close).
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/ridgeline-labs/review-orchestrator/internal/config"
	"github.com/ridgeline-labs/review-orchestrator/internal/feedback"
	httpapi "github.com/ridgeline-labs/review-orchestrator/internal/http"
	"github.com/ridgeline-labs/review-orchestrator/internal/http/handlers"
	"github.com/ridgeline-labs/review-orchestrator/internal/http/middleware"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	"github.com/ridgeline-labs/review-orchestrator/internal/orchestrator"
	"github.com/ridgeline-labs/review-orchestrator/internal/progress"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
	"github.com/ridgeline-labs/review-orchestrator/internal/store"

	"gorm.io/gorm"
)

// App holds the process's long-lived components, following the teacher's
// pattern of a single struct the command entrypoint starts and closes.
type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Cfg    config.Config
	Server *httpapi.Server

	engine *orchestrator.Engine
	bus    progress.Bus
	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading configuration")
	cfg := config.Load(log)

	db, err := store.Open(cfg, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	jobStore := store.New(db, log)

	llmGateway, err := llm.New(llm.Options{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init llm gateway: %w", err)
	}

	retrievalGateway, err := retrieval.New(retrieval.Options{
		BaseURL: cfg.RetrievalBaseURL,
		Timeout: cfg.RetrievalTimeout,
	})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init retrieval gateway: %w", err)
	}

	hub := progress.NewHub(log)
	inbox := feedback.New()

	// A Redis bus is optional: a single-replica deployment serves SSE
	// straight off the in-process Hub, matching the teacher's SSEHub used
	// standalone. Set REDIS_ADDR to fan events out across replicas.
	var bus progress.Bus
	if cfg.RedisAddr != "" {
		rb, err := progress.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		bus = rb
	}

	engine := &orchestrator.Engine{
		Store:            jobStore,
		Inbox:            inbox,
		Hub:              hub,
		Bus:              bus,
		LLM:              llmGateway,
		Retrieval:        retrievalGateway,
		Log:              log,
		PromptCharBudget: cfg.PromptCharBudget,
		RetrievalK:       cfg.RetrievalK,
		HitlAwaitTimeout: cfg.HitlAwaitTimeout,
	}

	jobsHandler := handlers.NewJobsHandler(jobStore, engine, inbox, hub, llmGateway, log)
	adminHandler := handlers.NewAdminHandler(jobStore, log)
	auth := middleware.NewAuth(log, cfg.ServiceToken)

	server := httpapi.NewServer(httpapi.RouterConfig{
		Log:   log,
		Auth:  auth,
		Jobs:  jobsHandler,
		Admin: adminHandler,
	})

	return &App{
		Log:    log,
		DB:     db,
		Cfg:    cfg,
		Server: server,
		engine: engine,
		bus:    bus,
	}, nil
}

// Start begins background work that must outlive any single request: the
// Redis forwarder relaying events published on another replica into this
// process's Hub, if one is configured.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.engine.Hub.Publish); err != nil {
			a.Log.Error("failed to start progress bus forwarder", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
