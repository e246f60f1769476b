package builtin

import (
	"context"
	"fmt"

	"agentcore/internal/tools"
)

// PlanStep is one entry of a PlanCreate call.
type PlanStep struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// PlanCreateArgs defines the parameters for the plan_create tool: the
// agent publishes (or replaces) a structured task list so the IDE can
// render progress the same way it renders a file diff.
type PlanCreateArgs struct {
	Steps []PlanStep `json:"steps" jsonschema:"description=Ordered list of plan steps,required"`
}

// PlanCreateTool has no filesystem side effect: like FollowUpTool, its
// result is carried to the client as a session_notification plan update.
type PlanCreateTool struct {
	tools.BaseTool
}

// NewPlanCreateTool creates the plan_create tool.
func NewPlanCreateTool() *PlanCreateTool {
	return &PlanCreateTool{
		BaseTool: tools.BaseTool{
			ToolName:        "plan_create",
			ToolDescription: "Publish or replace the current task plan as an ordered list of steps with statuses (pending, in_progress, completed).",
			ToolParameters:  tools.BuildSchema(PlanCreateArgs{}),
		},
	}
}

// Execute validates and echoes the plan back as tool output; the
// orchestrator reads the metadata to emit the matching notification.
func (t *PlanCreateTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	raw, ok := args["steps"].([]any)
	if !ok || len(raw) == 0 {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "steps is required and must be non-empty", nil)
	}

	steps := make([]PlanStep, 0, len(raw))
	for _, s := range raw {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		status, _ := m["status"].(string)
		if status == "" {
			status = "pending"
		}
		steps = append(steps, PlanStep{Title: title, Status: status})
	}

	return tools.NewResultWithMetadata(
		fmt.Sprintf("Plan updated with %d steps", len(steps)),
		map[string]any{"steps": steps},
	), nil
}
