package builtin

import (
	"context"
	"fmt"

	"agentcore/internal/skills"
	"agentcore/internal/tools"
)

// SkillArgs defines the parameters for the skill tool.
type SkillArgs struct {
	ID     string         `json:"id" jsonschema:"description=ID of the skill to activate,required"`
	Config map[string]any `json:"config" jsonschema:"description=Configuration values to pass to the skill on activation"`
}

// SkillTool activates a discovered skill via skills.Manager.Activate,
// registering whatever tools and prompts it contributes.
type SkillTool struct {
	tools.BaseTool
	Manager *skills.Manager
}

// NewSkillTool creates the skill tool backed by manager.
func NewSkillTool(manager *skills.Manager) *SkillTool {
	return &SkillTool{
		BaseTool: tools.BaseTool{
			ToolName:        "skill",
			ToolDescription: "Activate a skill by ID, making the tools and prompts it contributes available for the rest of the session.",
			ToolParameters:  tools.BuildSchema(SkillArgs{}),
		},
		Manager: manager,
	}
}

// Execute activates the skill.
func (t *SkillTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	id, _ := args["id"].(string)
	if id == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "id is required", nil)
	}
	config, _ := args["config"].(map[string]any)

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	if t.Manager.IsActive(id) {
		return tools.NewSuccessResult(fmt.Sprintf("Skill %q is already active", id)), nil
	}

	if err := t.Manager.Activate(id, config); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to activate skill %q: %v", id, err)), nil
	}

	return tools.NewResultWithMetadata(
		fmt.Sprintf("Activated skill %q", id),
		map[string]any{"skill_id": id},
	), nil
}
