package builtin

import (
	"context"
	"fmt"
	"strconv"

	"agentcore/internal/filecore"
	"agentcore/internal/output"
	"agentcore/internal/tools"
)

// WriteFileArgs defines the parameters for the fs_write tool.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"description=Absolute path of the file to write,required"`
	Content string `json:"content" jsonschema:"description=The full content to write to the file,required"`
}

// WriteFileTool overwrites a file's content, snapshotting whatever was
// there before (or recording that nothing was, for a brand-new file) so
// the write can be undone with fs_undo. Built on filecore.Engine instead
// of a bare os.WriteFile so every mutation gets the same snapshot
// discipline as fs_patch and fs_remove.
type WriteFileTool struct {
	tools.BaseTool
	Engine *filecore.Engine
}

// NewWriteFileTool creates the fs_write tool backed by engine.
func NewWriteFileTool(engine *filecore.Engine) *WriteFileTool {
	return &WriteFileTool{
		BaseTool: tools.BaseTool{
			ToolName:        "fs_write",
			ToolDescription: "Write content to a file, creating it (and parent directories) if it doesn't exist, or overwriting it entirely if it does. The previous content is snapshotted and can be restored with fs_undo.",
			ToolParameters:  tools.BuildSchema(WriteFileArgs{}),
		},
		Engine: engine,
	}
}

// Execute overwrites the file.
func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	path, _ := args["path"].(string)
	if err := requireAbsolutePath(path); err != nil {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), err.Error(), err)
	}
	content, _ := args["content"].(string)

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	if err := t.Engine.Write(path, []byte(content)); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to write %s: %v", path, err)), nil
	}

	rendered := output.New().Element("write_result", func(b *output.ElementBuilder) {
		b.Attr("path", path).Attr("bytes", strconv.Itoa(len(content)))
	}).RenderXML()

	return tools.NewResultWithMetadata(
		rendered,
		map[string]any{"path": path, "bytes": len(content)},
	), nil
}
