package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"manifold/internal/agent"
	"manifold/internal/agent/prompts"
	"manifold/internal/config"
	"manifold/internal/httpapi"
	"manifold/internal/httptool"
	"manifold/internal/llm/providers"
	"manifold/internal/mcpclient"
	"manifold/internal/memory"
	"manifold/internal/observability"
	"manifold/internal/sensitive"
	"manifold/internal/tools"
)

func main() {
	// Load environment from .env (or fallback to example.env) so local
	// development can run without exporting variables manually. The logger
	// below uses a fixed path and level and does not read the environment.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	observability.InitLogger("agentd.log", "info")

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	provider, err := providers.Build(*cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build llm provider")
	}

	var memStore memory.Store
	var sensitiveProc *sensitive.Processor
	var agentContextStore memory.ContextStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		memStore = memory.NewRedisStore(rdb, 0)
		sensitiveProc = sensitive.New(sensitive.NewRedisStore(rdb), sensitive.DefaultTTL)
		agentContextStore = memory.NewRedisContextStore(rdb)
	} else {
		log.Warn().Msg("no redis address configured; falling back to in-process memory and sensitive-data stores")
		memStore = memory.NewInMemoryStore()
		sensitiveProc = sensitive.New(sensitive.NewInMemoryStore(), sensitive.DefaultTTL)
		agentContextStore = memory.NewInMemoryContextStore()
	}

	registry := tools.NewRegistry()
	tools.RegisterHTTPFromConfig(registry, cfg.HTTPTools)

	mcpMgr := mcpclient.NewManager()
	if err := mcpMgr.RegisterFromConfig(ctx, registry, cfg.MCP); err != nil {
		log.Warn().Err(err).Msg("mcp registration encountered errors")
	}
	defer mcpMgr.Close()

	invoker := httptool.NewInvoker(httpClient, sensitiveProc)
	dispatcher := tools.NewDispatcher(registry, invoker)

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.DefaultSystemPrompt("manifold")
	}

	exec := &agent.Executor{
		Spec: agent.Spec{
			Name:         "default",
			Mode:         agent.Mode(cfg.Agent.Mode),
			ModelRef:     cfg.Agent.ModelRef,
			SystemPrompt: systemPrompt,
			MaxLoops:     cfg.Agent.MaxSteps,
			StopWords:    cfg.Agent.StopWords,
			ToolNames:    cfg.Agent.ToolNames,
			DemuxWindow:  cfg.Agent.DemuxWindow,
			DeepThinkURL: cfg.Agent.DeepThinkURL,
		},
		Provider:     provider,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Store:        memStore,
		Sensitive:    sensitiveProc,
		AgentContext: agentContextStore,
		HTTPClient:   httpClient,
		HistoryK:     cfg.Agent.HistoryK,
	}
	if cfg.Agent.SummaryEnabled {
		exec.Summarizer = &memory.Summarizer{Provider: provider}
		exec.SummaryThreshold = cfg.Agent.SummaryThreshold
		exec.SummaryKeepLast = cfg.Agent.SummaryKeepLast
	}

	agents := map[string]*httpapi.AgentHandle{
		"default": {Executor: exec},
	}

	srv := httpapi.NewServer(agents)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.Port == 0 {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("agentd listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
