package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/forgekit/agentcore/internal/agent"
	"github.com/forgekit/agentcore/internal/codeintel"
	"github.com/forgekit/agentcore/internal/config"
	"github.com/forgekit/agentcore/internal/executor"
	"github.com/forgekit/agentcore/internal/fallback"
	"github.com/forgekit/agentcore/internal/idempotency"
	"github.com/forgekit/agentcore/internal/mcp"
	"github.com/forgekit/agentcore/internal/metrics"
	"github.com/forgekit/agentcore/internal/orchestrator"
	"github.com/forgekit/agentcore/internal/planner"
	"github.com/forgekit/agentcore/internal/providers"
	"github.com/forgekit/agentcore/internal/store"
	"github.com/forgekit/agentcore/internal/tools"
	"github.com/forgekit/agentcore/internal/tracing"
)

// systemPrompt is the immutable message at history index 0 for every
// session this CLI drives.
const systemPrompt = `You are a careful autonomous coding agent. You have access to tools for reading, editing, and creating files, running shell commands, and searching the workspace. Use them to satisfy the user's request, verifying your changes before declaring success.`

// stack bundles every wired subsystem the Orchestrator composes, plus the
// pieces (session log, tracing, mcp manager) that need an explicit
// shutdown path.
type stack struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	plan    *planner.Planner
	tracker *idempotency.Tracker
	coll    *metrics.Collector
	tr      *tracing.Collector
	mcpMgr  *mcp.Manager
	session *store.SessionLog
	pg      *store.PgMirror
	watcher *config.Watcher
}

func (s *stack) Close() {
	if s.mcpMgr != nil {
		s.mcpMgr.Stop()
	}
	if s.session != nil {
		_ = s.session.Close()
	}
	if s.coll != nil {
		s.coll.PrintSummary()
		_ = s.coll.Close()
	}
	if s.pg != nil {
		_ = s.pg.Close()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.tr != nil {
		_ = s.tr.Shutdown(context.Background())
	}
}

// buildStack loads config and wires every C1-C10 component into one
// Orchestrator, following the teacher's bootstrap shape: provider, then
// tools, then the supporting subsystems, then the agent loop, then the
// planner/executor pair, then the façade on top.
func buildStack(ctx context.Context, confirm orchestrator.Confirmer) (*stack, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewReadFileTool(workspace, cfg.Agent.RestrictToWorkspace))
	registry.Register(tools.NewCreateFileTool(workspace, cfg.Agent.RestrictToWorkspace))
	registry.Register(tools.NewEditFileTool(workspace, cfg.Agent.RestrictToWorkspace))
	registry.Register(tools.NewDeleteFileTool(workspace, cfg.Agent.RestrictToWorkspace))
	registry.Register(tools.NewExecTool(workspace, cfg.Agent.RestrictToWorkspace))

	policy := tools.NewPolicyEngine(tools.ToolPolicy{
		Profile:   cfg.Tools.Policy.Profile,
		Allow:     cfg.Tools.Policy.Allow,
		Deny:      cfg.Tools.Policy.Deny,
		AlsoAllow: cfg.Tools.Policy.AlsoAllow,
	})

	tracker := idempotency.NewTracker()

	metricsDir := config.ExpandHome(cfg.Session.MetricsDir)
	if metricsDir == "" {
		metricsDir = filepath.Join(os.TempDir(), "agentcore-logs")
	}
	coll, err := metrics.NewCollector(metricsDir)
	if err != nil {
		return nil, fmt.Errorf("build metrics collector: %w", err)
	}

	mcpMgr := mcp.NewManager(registry, mcp.WithConfigs(cfg.MCPServers))
	if err := mcpMgr.Start(ctx); err != nil {
		slog.Warn("mcp.start_failed", "error", err)
	}

	fb := fallback.NewEngine(registry, nil)

	tr, err := tracing.NewCollector(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("build tracing collector: %w", err)
	}

	loop := agent.New(cfg.Agent, provider, registry, policy, tracker, coll, fb, tr, systemPrompt)

	index := codeintel.NewIndex()
	if err := index.ScanWorkspace(workspace); err != nil {
		slog.Warn("codeintel.scan_failed", "workspace", workspace, "error", err)
	}
	pl := planner.NewPlanner(index)
	for _, t := range mcpMgr.ToolNames() {
		pl.RegisterTool(t)
	}

	ex := executor.NewExecutor(registry, executor.Config{
		AutoRollbackOnFailure: true,
		ParallelExecution:     false,
		MaxParallelSteps:      2,
	}, nil)

	orch := orchestrator.New(loop, pl, ex, tracker, confirm, cfg.Agent.MaxIdenticalRequests, cfg.Agent.LoopDetectionWindow)

	sessionPath := config.ExpandHome(cfg.Session.LogPath)
	var sessionLog *store.SessionLog
	if sessionPath != "" {
		sessionLog, err = store.OpenSessionLog(sessionPath)
		if err != nil {
			slog.Warn("session.open_failed", "path", sessionPath, "error", err)
		}
	}

	var pg *store.PgMirror
	if cfg.Database.Enabled && cfg.Database.PostgresDSN != "" {
		pg, err = store.OpenPgMirror(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Warn("store.pg_open_failed", "error", err)
			pg = nil
		}
	}

	var watcher *config.Watcher
	if cfgPath := resolveConfigPath(); cfgPath != "" {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			watcher, err = config.NewWatcher(cfgPath, cfg, func(next *config.Config) {
				if reloadErr := mcpMgr.Reload(ctx, next.MCPServers); reloadErr != nil {
					slog.Warn("mcp.reload_failed", "error", reloadErr)
				}
			})
			if err != nil {
				slog.Debug("config.watch_unavailable", "path", cfgPath, "error", err)
				watcher = nil
			}
		}
	}

	return &stack{
		cfg: cfg, orch: orch, plan: pl, tracker: tracker, coll: coll, tr: tr,
		mcpMgr: mcpMgr, session: sessionLog, pg: pg, watcher: watcher,
	}, nil
}

func buildProvider(cfg *config.Config) (providers.Provider, error) {
	switch cfg.Agent.Provider {
	case "", "anthropic":
		if cfg.Providers.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("no Anthropic API key configured (set AGENTCORE_ANTHROPIC_API_KEY)")
		}
		opts := []providers.AnthropicOption{}
		if cfg.Agent.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(cfg.Agent.Model))
		}
		if cfg.Providers.Anthropic.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.APIBase))
		}
		return providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, opts...), nil
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("no OpenAI API key configured (set AGENTCORE_OPENAI_API_KEY)")
		}
		return providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Agent.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Agent.Provider)
	}
}
