package builtin

import (
	"context"
	"fmt"

	"agentcore/internal/filecore"
	"agentcore/internal/tools"
)

// RemoveFileArgs defines the parameters for the fs_remove tool.
type RemoveFileArgs struct {
	Path string `json:"path" jsonschema:"description=Absolute path of the file to remove,required"`
}

// RemoveFileTool deletes a file, snapshotting its content first so the
// deletion can be undone with fs_undo.
type RemoveFileTool struct {
	tools.BaseTool
	Engine *filecore.Engine
}

// NewRemoveFileTool creates the fs_remove tool backed by engine.
func NewRemoveFileTool(engine *filecore.Engine) *RemoveFileTool {
	return &RemoveFileTool{
		BaseTool: tools.BaseTool{
			ToolName:        "fs_remove",
			ToolDescription: "Delete a file. The content is snapshotted first and can be restored with fs_undo.",
			ToolParameters:  tools.BuildSchema(RemoveFileArgs{}),
		},
		Engine: engine,
	}
}

// Execute deletes the file.
func (t *RemoveFileTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	path, _ := args["path"].(string)
	if err := requireAbsolutePath(path); err != nil {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), err.Error(), err)
	}

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	if err := t.Engine.Remove(path); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to remove %s: %v", path, err)), nil
	}

	return tools.NewResultWithMetadata(
		fmt.Sprintf("Removed %s", path),
		map[string]any{"path": path},
	), nil
}
