package builtin

import (
	"context"
	"fmt"
	"strconv"

	"agentcore/internal/filecore"
	"agentcore/internal/output"
	"agentcore/internal/tools"
)

// EditFileArgs defines the parameters for the fs_patch tool: one of the
// five Operation modes applied to the block of path matched by search
// (via the fuzzy multi-strategy matcher), or the whole file when search
// is omitted.
type EditFileArgs struct {
	Path      string  `json:"path" jsonschema:"description=Absolute path of the file to patch,required"`
	Search    *string `json:"search" jsonschema:"description=Text to locate in the file via fuzzy matching. Omit to operate on the whole file"`
	Operation string  `json:"operation" jsonschema:"description=One of: prepend append replace replace_all swap,required"`
	Content   string  `json:"content" jsonschema:"description=Content to insert/replace with (or the swap target text for swap),required"`
}

// EditFileTool is the fs_patch tool: it drives filecore.Engine's
// multi-strategy fuzzy matcher instead of requiring an exact substring
// match.
type EditFileTool struct {
	tools.BaseTool
	Engine *filecore.Engine
}

// NewEditFileTool creates the fs_patch tool backed by engine.
func NewEditFileTool(engine *filecore.Engine) *EditFileTool {
	return &EditFileTool{
		BaseTool: tools.BaseTool{
			ToolName: "fs_patch",
			ToolDescription: "Patch a file by locating a search block (tolerant of whitespace, indentation, and escaping differences) and prepending, appending, replacing, or swapping content around it. Snapshots the prior content so fs_undo can revert.",
			ToolParameters:  tools.BuildSchema(EditFileArgs{}),
		},
		Engine: engine,
	}
}

// Execute patches the file.
func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	path, _ := args["path"].(string)
	if err := requireAbsolutePath(path); err != nil {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), err.Error(), err)
	}

	opName, _ := args["operation"].(string)
	op, ok := parseOperation(opName)
	if !ok {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), fmt.Sprintf("unknown operation %q", opName), nil)
	}

	content, _ := args["content"].(string)

	var search *string
	if raw, ok := args["search"].(string); ok && raw != "" {
		search = &raw
	}

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	result, err := t.Engine.Patch(path, search, op, content)
	if err != nil {
		return tools.NewErrorResult(err.Error()), nil
	}

	rendered := output.New().Element("patch_result", func(b *output.ElementBuilder) {
		b.Attr("path", path).
			Attr("lines_added", strconv.Itoa(result.LinesAdded)).
			Attr("lines_removed", strconv.Itoa(result.LinesRemoved)).
			Attr("content_hash", result.ContentHash)
	}).RenderXML()

	return tools.NewResultWithMetadata(
		rendered,
		map[string]any{
			"path":          path,
			"lines_added":   result.LinesAdded,
			"lines_removed": result.LinesRemoved,
			"content_hash":  result.ContentHash,
		},
	), nil
}

func parseOperation(name string) (filecore.Operation, bool) {
	switch name {
	case "prepend":
		return filecore.OpPrepend, true
	case "append":
		return filecore.OpAppend, true
	case "replace":
		return filecore.OpReplace, true
	case "replace_all":
		return filecore.OpReplaceAll, true
	case "swap":
		return filecore.OpSwap, true
	default:
		return 0, false
	}
}
