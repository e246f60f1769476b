// Package builtin provides built-in tools for the Agentcore agent runtime.
package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"agentcore/internal/output"
	"agentcore/internal/tools"
)

// ShellArgs defines the parameters for the shell tool.
type ShellArgs struct {
	Command string `json:"command" jsonschema:"description=The shell command to execute,required"`
	Timeout int    `json:"timeout" jsonschema:"description=Timeout in seconds (default: 30)"`
	WorkDir string `json:"work_dir" jsonschema:"description=Working directory for the command"`
}

// ShellTool executes shell commands.
type ShellTool struct {
	tools.BaseTool
	// MaxOutputSize is the maximum size of command output in bytes.
	MaxOutputSize int
}

// NewShellTool creates a new shell tool.
func NewShellTool() *ShellTool {
	return &ShellTool{
		BaseTool: tools.BaseTool{
			ToolName:        "shell",
			ToolDescription: "Execute a shell command and return its output. Use this to run system commands, scripts, or interact with the operating system.",
			ToolParameters:  tools.BuildSchema(ShellArgs{}),
		},
		MaxOutputSize: 1024 * 1024, // 1MB default
	}
}

// Execute runs the shell command.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "command is required", nil)
	}

	timeout := 30
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = int(v)
	}

	workDir, _ := args["work_dir"].(string)

	// Create context with timeout
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	// Determine shell based on OS
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}

	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	stdoutText, stdoutTruncated := truncateOutput(stdout.String(), t.MaxOutputSize)
	stderrText, stderrTruncated := truncateOutput(stderr.String(), t.MaxOutputSize)

	if runErr != nil && execCtx.Err() == context.DeadlineExceeded {
		return tools.ToolResult{}, tools.NewToolTimeoutError(t.Name(), fmt.Sprintf("%ds", timeout))
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	rendered := output.New().Element("shell_result", func(b *output.ElementBuilder) {
		b.Attr("exit_code", fmt.Sprintf("%d", exitCode)).
			Children(func(o *output.Output) {
				o.When(stdoutText != "", func(o *output.Output) {
					o.Element("stdout", func(eb *output.ElementBuilder) {
						if stdoutTruncated {
							eb.Attr("truncated", "true")
						}
						eb.CDATA(stdoutText)
					})
				})
				o.When(stderrText != "", func(o *output.Output) {
					o.Element("stderr", func(eb *output.ElementBuilder) {
						if stderrTruncated {
							eb.Attr("truncated", "true")
						}
						eb.CDATA(stderrText)
					})
				})
			})
	}).RenderXML()

	if runErr != nil {
		return tools.ToolResult{
			Content: rendered,
			IsError: true,
			Metadata: map[string]any{
				"exit_code": exitCode,
				"error":     runErr.Error(),
			},
		}, nil
	}

	if stdoutText == "" && stderrText == "" {
		return tools.NewSuccessResult("(no output)"), nil
	}

	return tools.NewResultWithMetadata(rendered, map[string]any{"exit_code": exitCode}), nil
}

// truncateOutput caps s at maxSize bytes, reporting whether it was cut.
func truncateOutput(s string, maxSize int) (string, bool) {
	if len(s) <= maxSize {
		return s, false
	}
	return s[:maxSize], true
}
