// Command analystd runs the conversational analytics orchestration
// service: it wires the Tool Adapters, LLM Client Abstraction, Agent
// Topologies, Orchestrator, History Store, and Conversation Cache behind
// a single HTTP server, then serves until SIGINT/SIGTERM.
//
// Usage:
//
//	analystd
//
// All configuration is read from the environment (pkg/config), matching
// the teacher's zero-config philosophy but without its kong-based CLI
// flag surface, since this service has no interactive subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kadirpekel/analystd/pkg/config"
	"github.com/kadirpekel/analystd/pkg/demo"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/history"
	"github.com/kadirpekel/analystd/pkg/logger"
	"github.com/kadirpekel/analystd/pkg/model"
	"github.com/kadirpekel/analystd/pkg/model/chat"
	"github.com/kadirpekel/analystd/pkg/model/responses"
	"github.com/kadirpekel/analystd/pkg/observability"
	"github.com/kadirpekel/analystd/pkg/orchestrator"
	"github.com/kadirpekel/analystd/pkg/server"
	"github.com/kadirpekel/analystd/pkg/threadcache"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/tool/doctool"
	"github.com/kadirpekel/analystd/pkg/tool/rpctool"
	"github.com/kadirpekel/analystd/pkg/tool/sqltool"
	"github.com/kadirpekel/analystd/pkg/tool/webtool"
	"github.com/kadirpekel/analystd/pkg/topology"
)

func main() {
	_ = godotenv.Load()

	logger.Init(logger.ParseLevel(getenv("LOG_LEVEL", "info")), os.Stderr)
	log := logger.Get()

	if err := run(log); err != nil {
		log.Error("analystd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	tracerProvider, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      getenv("OTEL_ENABLED", "false") == "true",
		ServiceName:  "analystd",
		SamplingRate: 1.0,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if shutdowner, ok := tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdowner.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}
	}()

	dbPool := config.NewDBPool()
	defer func() {
		if err := dbPool.Close(); err != nil {
			log.Warn("error closing database pools", "error", err)
		}
	}()

	if cfg.DemoMode {
		return runDemo(ctx, log, cfg, dbPool)
	}
	return runLive(ctx, log, cfg, dbPool)
}

// runLive wires every real Tool Adapter the environment has configured,
// the real LLM Client Abstraction, and a real thread cache.
func runLive(ctx context.Context, log *slog.Logger, cfg *config.Config, dbPool *config.DBPool) error {
	catalog, err := buildCatalog(ctx, log, cfg, dbPool)
	if err != nil {
		return fmt.Errorf("build tool catalog: %w", err)
	}

	responsesClient, chatClient, err := buildModelClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build model clients: %w", err)
	}
	defer func() {
		if responsesClient != nil {
			_ = responsesClient.Close()
		}
		if chatClient != nil {
			_ = chatClient.Close()
		}
	}()

	resolve := func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error) {
		switch shape {
		case topology.ResponsesStyle:
			if responsesClient == nil {
				return nil, fmt.Errorf("responses-style client is not configured")
			}
			return responsesClient, nil
		case topology.ChatStyle:
			if chatClient == nil {
				return nil, fmt.Errorf("chat-style client is not configured")
			}
			return chatClient, nil
		default:
			return nil, fmt.Errorf("unknown client shape %q", shape)
		}
	}

	// Assign only a non-nil concrete client, so a missing shape stays a
	// nil interface rather than a typed nil the title generator would call.
	var titleClient model.Client
	switch {
	case responsesClient != nil:
		titleClient = responsesClient
	case chatClient != nil:
		titleClient = chatClient
	}

	historyStore, err := buildHistoryStore(cfg, dbPool, titleClient)
	if err != nil {
		return fmt.Errorf("build history store: %w", err)
	}

	threads := threadcache.New(threadcache.Config{
		IdleTTL: 30 * time.Minute,
	})

	orch := orchestrator.New(orchestrator.Config{
		Catalog:           catalog,
		Threads:           threads,
		History:           historyRecorder(historyStore),
		Resolve:           resolve,
		KeepaliveInterval: cfg.KeepaliveInterval,
	})

	return serve(ctx, log, server.Config{
		Orchestrator: orch,
		History:      historyService(historyStore),
		DefaultMode:  cfg.AgentMode,
	})
}

// runDemo wires the demo Client and demo tool Catalog in place of live
// credentials. History persistence still runs for real, per spec.md
// §4.9's "history persistence is still exercised" requirement.
func runDemo(ctx context.Context, log *slog.Logger, cfg *config.Config, dbPool *config.DBPool) error {
	log.Info("starting in demo mode: no live model or tool credentials are required")

	catalog := demo.BuildCatalog()
	demoClient := demo.New()

	resolve := func(shape topology.ClientShape, choice domain.ModelChoice) (model.Client, error) {
		return demoClient, nil
	}

	historyStore, err := buildHistoryStore(cfg, dbPool, demoClient)
	if err != nil {
		return fmt.Errorf("build history store: %w", err)
	}

	threads := threadcache.New(threadcache.Config{IdleTTL: 30 * time.Minute})

	orch := orchestrator.New(orchestrator.Config{
		Catalog:           catalog,
		Threads:           threads,
		History:           historyRecorder(historyStore),
		Resolve:           resolve,
		KeepaliveInterval: cfg.KeepaliveInterval,
	})

	return serve(ctx, log, server.Config{
		Orchestrator: orch,
		History:      historyService(historyStore),
		DefaultMode:  cfg.AgentMode,
	})
}

// buildCatalog registers one Tool Adapter per configured upstream. A
// tool whose required env vars are absent is simply never registered —
// the resulting topology's EntryAllowedTools lists will not name it, so
// the model is never told it exists.
func buildCatalog(ctx context.Context, log *slog.Logger, cfg *config.Config, dbPool *config.DBPool) (*tool.Catalog, error) {
	catalog := tool.NewCatalog()

	if cfg.SQL != nil {
		db, err := dbPool.Get(cfg.SQL)
		if err != nil {
			return nil, fmt.Errorf("connect sql tool database: %w", err)
		}
		catalog.Register(sqltool.New(db))
	} else {
		log.Info("sql tool disabled: SQL_SERVER/SQL_DATABASE/SQL_CONNECTION_STRING not set")
	}

	if cfg.DocSearchEndpoint != "" {
		catalog.Register(doctool.New(doctool.Config{
			Endpoint:      cfg.DocSearchEndpoint,
			KnowledgeBase: cfg.DocKnowledgeBase,
			DefaultEffort: cfg.DocDefaultEffort,
		}))
	} else {
		log.Info("doc search tool disabled: DOC_SEARCH_ENDPOINT not set")
	}

	if cfg.ProjectEndpoint != "" {
		catalog.Register(webtool.New(webtool.Config{
			ConnectionName:  cfg.WebConnectionName,
			ProjectEndpoint: cfg.ProjectEndpoint,
		}))
	} else {
		log.Info("web search tool disabled: PROJECT_ENDPOINT not set")
	}

	if cfg.RPCEnabled && cfg.RPCAnalyticsURL != "" {
		registry := rpctool.NewRegistry(cfg.RPCAnalyticsURL)
		adapters, err := registry.Adapters(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch rpc analytics tool catalog: %w", err)
		}
		for _, a := range adapters {
			catalog.Register(a)
		}
	} else {
		log.Info("rpc analytics tools disabled: RPC_ENABLED/RPC_ANALYTICS_URL not set")
	}

	return catalog, nil
}

// buildModelClients constructs whichever of the two client shapes the
// environment supports. A deployment lacking one shape's configuration
// runs only the topologies that need the other (e.g. sql_only and
// multi_tool with no chat-style credentials still work; handoff and
// magentic would fail to resolve and return an error on that turn).
func buildModelClients(ctx context.Context, cfg *config.Config) (*responses.Client, *chat.Client, error) {
	var (
		responsesClient *responses.Client
		chatClient      *chat.Client
	)

	if cfg.UsesResponsesClient() {
		c, err := responses.New(responses.Options{
			BaseURL:    cfg.LLMBaseURLResponses,
			APIVersion: cfg.LLMAPIVersion,
			APIKey:     getenv("LLM_API_KEY", ""),
			Deployment: cfg.ModelPrimary,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build responses client: %w", err)
		}
		responsesClient = c
	}

	if deployment := cfg.ModelSecondary; deployment != "" {
		c, err := chat.New(ctx, chat.Options{
			BaseURL:         getenv("LLM_BASE_URL_CHAT", ""),
			APIKey:          getenv("LLM_API_KEY", ""),
			Deployment:      deployment,
			AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
			GeminiAPIKey:    getenv("GEMINI_API_KEY", ""),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build chat client: %w", err)
		}
		chatClient = c
	}

	return responsesClient, chatClient, nil
}

func buildHistoryStore(cfg *config.Config, dbPool *config.DBPool, titleClient model.Client) (*history.Store, error) {
	if !cfg.HistoryEnabled || cfg.History == nil {
		return nil, nil
	}
	db, err := dbPool.Get(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	return history.New(history.Config{
		DB:      db,
		Dialect: cfg.History.DriverName(),
		Titler:  history.NewTitleGeneratorFromClient(titleClient),
	})
}

// historyRecorder and historyService adapt a possibly-nil *history.Store
// to their consuming interfaces without the orchestrator/server packages
// needing to know about the concrete type at all. A nil *history.Store
// must become a nil interface value, not a non-nil interface wrapping a
// nil pointer, since both consumers treat "no history configured" as
// nil-check-and-skip.
func historyRecorder(s *history.Store) orchestrator.HistoryRecorder {
	if s == nil {
		return nil
	}
	return s
}

func historyService(s *history.Store) server.HistoryService {
	if s == nil {
		return nil
	}
	return s
}

func serve(ctx context.Context, log *slog.Logger, cfg server.Config) error {
	srv := server.New(cfg)
	addr := ":" + getenv("PORT", "8080")

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("analystd listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
