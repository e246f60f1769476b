package builtin

import (
	"context"

	"agentcore/internal/tools"
)

// FollowUpArgs defines the parameters for the follow_up tool: the agent
// asks the user a clarifying question instead of guessing, surfacing
// optional suggested replies.
type FollowUpArgs struct {
	Question    string   `json:"question" jsonschema:"description=The question to ask the user,required"`
	Suggestions []string `json:"suggestions" jsonschema:"description=Optional short suggested replies"`
}

// FollowUpTool has no side effect of its own: its output is carried
// straight to the IDE/ACP client as a session_notification so the human
// can answer, rather than executing anything server-side.
type FollowUpTool struct {
	tools.BaseTool
}

// NewFollowUpTool creates the follow_up tool.
func NewFollowUpTool() *FollowUpTool {
	return &FollowUpTool{
		BaseTool: tools.BaseTool{
			ToolName:        "follow_up",
			ToolDescription: "Ask the user a clarifying question before continuing, optionally with suggested short replies.",
			ToolParameters:  tools.BuildSchema(FollowUpArgs{}),
		},
	}
}

// Execute records the question; the orchestrator is responsible for
// surfacing it to the client and pausing the turn for a reply.
func (t *FollowUpTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	question, _ := args["question"].(string)
	if question == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "question is required", nil)
	}

	var suggestions []string
	if raw, ok := args["suggestions"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				suggestions = append(suggestions, str)
			}
		}
	}

	return tools.NewResultWithMetadata(question, map[string]any{
		"question":    question,
		"suggestions": suggestions,
		"awaits_reply": true,
	}), nil
}
