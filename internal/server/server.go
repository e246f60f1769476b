// Package server wires together the capability bundle every running
// agent session depends on: provider pool, policy checker, tool
// registry, snapshot store, notification sink, hook manager, and
// storage. Earlier designs bundled the gateway, cron scheduler,
// workspace manager, and every other optional subsystem into one struct
// instantiated once per process; this is narrowed down to a
// capability-record shape instead: a small struct of interfaces the
// orchestrator consumes, not a grab-bag of every feature module that
// ever existed.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"agentcore/internal/acp"
	"agentcore/internal/config"
	"agentcore/internal/filecore"
	"agentcore/internal/hooks"
	hooksbuiltin "agentcore/internal/hooks/builtin"
	"agentcore/internal/mcp/client"
	"agentcore/internal/policy"
	"agentcore/internal/prompt"
	"agentcore/internal/provider"
	"agentcore/internal/provider/copilot"
	"agentcore/internal/provider/glm"
	"agentcore/internal/provider/minimax"
	"agentcore/internal/provider/ollama"
	"agentcore/internal/provider/vllm"
	"agentcore/internal/runner"
	"agentcore/internal/runtime"
	"agentcore/internal/scheduler"
	"agentcore/internal/skills"
	"agentcore/internal/storage"
	"agentcore/internal/tools"
	toolsbuiltin "agentcore/internal/tools/builtin"
)

// Services is the capability bundle wired once at startup and shared by
// every session's orchestrator: the concrete things a turn needs to read
// state, call a model, check policy, run tools, and report back to
// whatever client is driving the session over ACP.
type Services struct {
	Provider  provider.Provider
	Policy    policy.PolicyChecker
	Tools     *tools.Registry
	Snapshots storage.SnapshotStore
	Sink      acp.NotificationSink
	Hooks     *hooks.Manager
	Storage   *storage.DB

	Runtime *runtime.Store
	MCP     *client.Manager
	Skills  *skills.Manager

	// Sessions and Run own the turn loop itself: Sessions caches the
	// durable conversation row + message history per session id, and Run
	// is the orchestrator entry point (internal/server/agent.go's
	// Agent.Prompt drives it) that builds/streams/tools/loops until
	// EndTurn, Cancelled, or an interrupt fires.
	Sessions *scheduler.SessionManager
	Run      *runner.Runner

	cfg    *config.Config
	logger zerolog.Logger

	mu      sync.RWMutex
	running bool
}

// New builds the capability bundle from cfg. The returned Services has
// no Sink yet — that's attached once an acp.Server is constructed around
// it (SetSink), since the sink depends on whichever transport connection
// the client used to attach.
func New(cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("server: open storage: %w", err)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: build provider: %w", err)
	}

	fileEngine := filecore.NewEngine(db)

	toolRegistry := tools.NewRegistry()
	skillManager := skills.NewManager(skills.ManagerConfig{})

	if err := toolsbuiltin.RegisterFileTools(toolRegistry, fileEngine); err != nil {
		return nil, fmt.Errorf("server: register file tools: %w", err)
	}
	if err := toolsbuiltin.RegisterShellTools(toolRegistry); err != nil {
		return nil, fmt.Errorf("server: register shell tools: %w", err)
	}
	if err := toolsbuiltin.RegisterSearchTools(toolRegistry); err != nil {
		return nil, fmt.Errorf("server: register search tools: %w", err)
	}
	if err := toolsbuiltin.RegisterWorkflowTools(toolRegistry); err != nil {
		return nil, fmt.Errorf("server: register workflow tools: %w", err)
	}
	if err := toolsbuiltin.RegisterSkillTools(toolRegistry, skillManager); err != nil {
		return nil, fmt.Errorf("server: register skill tools: %w", err)
	}

	mcpManager := client.NewManager(nil)
	if err := toolsbuiltin.RegisterMCPTools(toolRegistry, mcpManager); err != nil {
		return nil, fmt.Errorf("server: register mcp tools: %w", err)
	}

	policyChecker := policy.NewPolicyExecutor(policy.DefaultToolPolicy())

	hookManager := hooks.NewManager()
	if err := hooksbuiltin.RegisterLoggingHooks(hookManager, hooksbuiltin.LoggingConfig{Logger: &logger}); err != nil {
		return nil, fmt.Errorf("server: register logging hooks: %w", err)
	}
	if err := hooksbuiltin.RegisterAuditHooks(hookManager, hooksbuiltin.AuditConfig{
		Store: hooksbuiltin.NewLogAuditStore(&logger),
	}); err != nil {
		return nil, fmt.Errorf("server: register audit hooks: %w", err)
	}

	sessions := scheduler.NewSessionManager(db, 100)

	runnerCfg := runner.DefaultConfig()
	run := runner.NewRunner(prov, toolRegistry, sessions, runnerCfg)
	run.SetHookManager(hookManager)
	run.SetPolicyExecutor(policyChecker)
	run.SetSkillManager(skillManager)
	run.SetMCPManager(mcpManager)

	// Turn budget limits: request cap, consecutive tool-failure cap, and
	// token budget, relayed to the client as a continue/stop choice when
	// one fires (internal/server/agent.go wires the permission callback).
	limits := hooksbuiltin.NewLimits(hooksbuiltin.LimitsConfig{
		MaxRequestsPerTurn:         cfg.Limits.MaxRequestsPerTurn,
		MaxConsecutiveToolFailures: cfg.Limits.MaxConsecutiveToolFailures,
		MaxTotalTokens:             cfg.Limits.MaxTotalTokens,
	})
	run.SetLifecycle(limits.Hook(), limits.Reset)

	promptCfg := prompt.DefaultPromptConfig()
	run.SetSystemPrompt(prompt.NewSystemPromptBuilder(promptCfg, toolRegistry))

	return &Services{
		Provider:  prov,
		Policy:    policyChecker,
		Tools:     toolRegistry,
		Snapshots: db,
		Hooks:     hookManager,
		Storage:   db,
		Runtime:   runtime.NewStore(),
		MCP:       mcpManager,
		Skills:    skillManager,
		Sessions:  sessions,
		Run:       run,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// SetSink attaches the notification sink for the currently connected ACP
// client. Call it once a transport connection has produced an acp.Server.
func (s *Services) SetSink(sink acp.NotificationSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sink = sink
}

// Logger returns the configured logger.
func (s *Services) Logger() zerolog.Logger { return s.logger }

// Config returns the loaded configuration.
func (s *Services) Config() *config.Config { return s.cfg }

// Close releases resources owned by the bundle (storage handle, MCP
// client connections).
func (s *Services) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MCP != nil {
		s.MCP.CloseAll()
	}
	if s.Storage != nil {
		return s.Storage.Close()
	}
	return nil
}

// IsRunning reports whether the bundle has been marked started via
// MarkRunning. cmd/agentcore uses this for a liveness probe.
func (s *Services) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// MarkRunning flips the running flag once the ACP listener is accepting
// connections.
func (s *Services) MarkRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Name {
	case "ollama":
		return ollama.NewOllamaProvider(ollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
		}), nil
	case "glm":
		return glm.NewGLMProvider(glm.Config{
			APIKey: cfg.GLM.APIKey,
			Model:  cfg.GLM.Model,
		}), nil
	case "minimax":
		return minimax.NewMinimaxProvider(minimax.Config{
			APIKey: cfg.Minimax.APIKey,
			Model:  cfg.Minimax.Model,
		}), nil
	case "vllm":
		return vllm.NewVLLMProvider(vllm.Config{
			BaseURL: cfg.VLLM.BaseURL,
			Model:   cfg.VLLM.Model,
		}), nil
	case "copilot", "":
		return copilot.NewCopilotProvider(cfg.Copilot.GithubToken, cfg.Copilot.Model, cfg.Copilot.MaxTokens), nil
	default:
		return nil, fmt.Errorf("server: unknown provider %q", cfg.Provider.Name)
	}
}
