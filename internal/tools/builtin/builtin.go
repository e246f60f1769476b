package builtin

import (
	"agentcore/internal/filecore"
	"agentcore/internal/skills"
	"agentcore/internal/tools"
)

// RegisterFileTools registers the filesystem-mutation tool family
// (fs_read, fs_write, fs_patch, fs_remove, fs_undo) backed by a single
// shared filecore.Engine, so every mutation goes through the same
// snapshot discipline.
func RegisterFileTools(r *tools.Registry, engine *filecore.Engine) error {
	fileTools := []tools.Tool{
		NewReadFileTool(),
		NewWriteFileTool(engine),
		NewEditFileTool(engine),
		NewRemoveFileTool(engine),
		NewUndoFileTool(engine),
	}
	for _, tool := range fileTools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// RegisterShellTools registers the process/network tool family (shell,
// net_fetch).
func RegisterShellTools(r *tools.Registry) error {
	shellTools := []tools.Tool{
		NewShellTool(),
		NewHTTPTool(),
	}
	for _, tool := range shellTools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSearchTools registers the read-only discovery tool family
// (fs_search, codebase_search).
func RegisterSearchTools(r *tools.Registry) error {
	searchTools := []tools.Tool{
		NewSearchTool(),
		NewCodebaseSearchTool(),
	}
	for _, tool := range searchTools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// RegisterWorkflowTools registers the non-mutating orchestration tools
// (follow_up, plan_create) that report structured output to the client
// instead of performing a side effect.
func RegisterWorkflowTools(r *tools.Registry) error {
	workflowTools := []tools.Tool{
		NewFollowUpTool(),
		NewPlanCreateTool(),
	}
	for _, tool := range workflowTools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSkillTools registers the skill tool backed by manager.
func RegisterSkillTools(r *tools.Registry, manager *skills.Manager) error {
	return r.Register(NewSkillTool(manager))
}

// RegisterBuiltins registers the full closed tool set against a fresh
// engine/manager pair, for callers (tests, simple embeddings) that don't
// need to share those dependencies with the rest of a capability bundle.
func RegisterBuiltins(r *tools.Registry, engine *filecore.Engine, skillManager *skills.Manager) error {
	if err := RegisterFileTools(r, engine); err != nil {
		return err
	}
	if err := RegisterShellTools(r); err != nil {
		return err
	}
	if err := RegisterSearchTools(r); err != nil {
		return err
	}
	if err := RegisterWorkflowTools(r); err != nil {
		return err
	}
	return RegisterSkillTools(r, skillManager)
}

// ToolNames returns the names of the closed builtin tool set (excluding
// MCP and skill-contributed tools, which are registered separately).
func ToolNames() []string {
	return []string{
		"fs_read",
		"fs_write",
		"fs_patch",
		"fs_remove",
		"fs_undo",
		"fs_search",
		"codebase_search",
		"shell",
		"net_fetch",
		"follow_up",
		"plan_create",
		"skill",
	}
}
