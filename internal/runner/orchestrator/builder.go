package orchestrator

import (
	"agentcore/internal/compaction"
	internalContext "agentcore/internal/context"
	"agentcore/internal/hooks"
	"agentcore/internal/mcp/client"
	"agentcore/internal/prompt"
	"agentcore/internal/provider"
	"agentcore/internal/runner/message"
	"agentcore/internal/scheduler"
	"agentcore/internal/skills"
	"agentcore/internal/tools"
)

// BuilderOptions 用于构建 Orchestrator 的选项
type BuilderOptions struct {
	Sessions       *scheduler.SessionManager
	Registry       *tools.Registry
	Config         Config
	Compactor      *compaction.Compactor
	SystemPrompt   *prompt.SystemPromptBuilder
	SkillManager   *skills.Manager
	HookManager    *hooks.Manager
	MCPManager     *client.Manager
	ContextManager *internalContext.Manager
	ToolExecutor   ToolExecutorFunc

	// Lifecycle 观察链（可中断循环），LifecycleReset 在批准继续后清除计数器
	Lifecycle      *hooks.Hook
	LifecycleReset func(kind string)
	// Permission 将中断转发给客户端确认
	Permission PermissionRequester

	WorkspaceResolver func(sessionID string) string
}

// OrchestratorBuilder 构建器用于创建 Orchestrator
type OrchestratorBuilder struct {
	opts BuilderOptions
}

// NewBuilder 创建新的构建器
func NewBuilder(opts BuilderOptions) *OrchestratorBuilder {
	return &OrchestratorBuilder{opts: opts}
}

// Build 根据 provider 类型构建合适的 orchestrator
func (b *OrchestratorBuilder) Build(prov provider.Provider) Orchestrator {
	// 创建基础 orchestrator
	base := NewBaseOrchestrator(b.opts.Sessions, b.opts.Registry, b.opts.Config)
	
	// 设置可选组件
	if b.opts.Compactor != nil {
		base.SetCompactor(b.opts.Compactor)
	}
	if b.opts.SystemPrompt != nil {
		base.SetSystemPrompt(b.opts.SystemPrompt)
	}
	if b.opts.SkillManager != nil {
		base.SetSkillManager(b.opts.SkillManager)
	}
	if b.opts.HookManager != nil {
		base.SetHookManager(b.opts.HookManager)
	}
	if b.opts.MCPManager != nil {
		base.SetMCPManager(b.opts.MCPManager)
	}
	if b.opts.ContextManager != nil {
		base.SetContextManager(b.opts.ContextManager)
	}
	if b.opts.ToolExecutor != nil {
		base.SetToolExecutor(b.opts.ToolExecutor)
	}
	if b.opts.Lifecycle != nil {
		base.SetLifecycle(b.opts.Lifecycle, b.opts.LifecycleReset)
	}
	if b.opts.Permission != nil {
		base.SetPermissionRequester(b.opts.Permission)
	}
	if b.opts.WorkspaceResolver != nil {
		base.SetWorkspaceResolver(b.opts.WorkspaceResolver)
	}

	// 根据 provider 类型选择合适的 orchestrator
	if acpProv, ok := prov.(provider.ACPCapable); ok && acpProv.IsACPProvider() {
		acpOrch := NewACPOrchestrator(base)
		mb := message.NewStandardBuilder()
		if b.opts.SystemPrompt != nil {
			mb.SetSystemPrompt(b.opts.SystemPrompt)
		}
		if b.opts.SkillManager != nil {
			mb.SetSkillManager(b.opts.SkillManager)
		}
		if b.opts.ContextManager != nil {
			mb.SetContextManager(b.opts.ContextManager)
		}
		if b.opts.Config.SystemPrompt != "" {
			mb.SetStaticPrompt(b.opts.Config.SystemPrompt)
		}
		acpOrch.SetMessageBuilder(mb)
		return acpOrch
	}

	// 默认使用 StandardOrchestrator
	return NewStandardOrchestrator(base)
}
