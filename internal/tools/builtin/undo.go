package builtin

import (
	"context"
	"fmt"

	"agentcore/internal/domain"
	"agentcore/internal/filecore"
	"agentcore/internal/tools"
)

// UndoFileArgs defines the parameters for the fs_undo tool.
type UndoFileArgs struct {
	Path string `json:"path" jsonschema:"description=Absolute path of the file to revert to its previous snapshot,required"`
}

// UndoFileTool restores the most recent pre-mutation snapshot of a file
// taken by fs_write, fs_patch, or fs_remove, consuming that snapshot so a
// second call restores the one before it. If the snapshot recorded that
// the file did not exist prior to the mutation, undo removes the file
// instead of writing empty content back.
type UndoFileTool struct {
	tools.BaseTool
	Engine *filecore.Engine
}

// NewUndoFileTool creates the fs_undo tool backed by engine.
func NewUndoFileTool(engine *filecore.Engine) *UndoFileTool {
	return &UndoFileTool{
		BaseTool: tools.BaseTool{
			ToolName:        "fs_undo",
			ToolDescription: "Revert a file to the state it was in before its most recent fs_write, fs_patch, or fs_remove call. Removes the file if it did not exist before that mutation.",
			ToolParameters:  tools.BuildSchema(UndoFileArgs{}),
		},
		Engine: engine,
	}
}

// Execute restores the file's previous snapshot.
func (t *UndoFileTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	path, _ := args["path"].(string)
	if err := requireAbsolutePath(path); err != nil {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), err.Error(), err)
	}

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	result, err := t.Engine.Undo(path)
	if err != nil {
		// Unrecoverable kinds — a missing snapshot wraps
		// domain.ErrNotFound — go to the caller as an error, not to the
		// model as a tool result.
		if kind := domain.Kind(err); kind != nil && !domain.Recoverable(err) {
			return tools.ToolResult{}, fmt.Errorf("undo %s: %w", path, err)
		}
		return tools.NewErrorResult(fmt.Sprintf("failed to undo %s: %v", path, err)), nil
	}

	if result.Removed {
		return tools.NewResultWithMetadata(
			fmt.Sprintf("Undo removed %s (it did not exist before the last mutation)", path),
			map[string]any{"path": path, "removed": true},
		), nil
	}

	return tools.NewResultWithMetadata(
		fmt.Sprintf("Restored %s to its previous content", path),
		map[string]any{"path": path, "removed": false, "restored_hash": result.Restored.Hash},
	), nil
}
