package orchestrator

import (
	"context"
	"time"

	"agentcore/internal/domain"
	"agentcore/internal/provider"
	"agentcore/internal/runner/types"
	"agentcore/internal/scheduler"
)

// Orchestrator 控制 Agent 循环的执行流程
type Orchestrator interface {
	// Run 执行完整的 Agent 循环，返回事件通道
	Run(ctx context.Context, request *RunRequest) (<-chan types.Event, error)
}

// RunRequest 封装运行请求的所有参数
type RunRequest struct {
	SessionID     string
	UserInput     string
	Attachments   []provider.Attachment
	Provider      provider.Provider
	CachedSession *scheduler.CachedSession

	// InjectedMessages, when non-nil, supplies the complete frame-local
	// context for a delegated sub-run: session history is neither read
	// nor written, and the caller owns persisting any final summary.
	InjectedMessages []provider.Message
}

// Config 控制循环行为
type Config struct {
	MaxIterations int
	MaxTokens     int
	Temperature   float64
	StreamOutput  bool
	Timeout       time.Duration
	// SystemPrompt 是静态回退提示词（未配置 SystemPromptBuilder 时使用）
	SystemPrompt string
}

// ToolExecutorFunc dispatches a batch of tool calls and returns their
// result messages and how many of them errored. A non-nil error is
// reserved for unrecoverable failures — domain.Kind errors that are not
// domain.Recoverable, such as a missing snapshot on undo or a missing
// session: the turn loop surfaces those to the caller instead of feeding
// them back to the model. Recoverable failures (bad arguments, policy
// denials, ordinary tool errors) come back as error result messages with
// a nil error.
type ToolExecutorFunc func(ctx context.Context, toolCalls []provider.ToolCall, sessionID string) ([]provider.Message, int, error)

// PermissionRequester relays an interruption to the client as a
// synchronous continue/stop choice. It returns true when the user elects
// to continue the turn past the limit that fired.
type PermissionRequester func(ctx context.Context, sessionID string, reason domain.InterruptionReason) (bool, error)

// LoopState 封装循环状态
type LoopState struct {
	Iteration              int
	ConsecutiveErrors      int
	TotalConsecutiveErrors int
	LastResponse           *provider.ChatResponse
	TotalTokens            int64
	ContextRetried         bool
	TransientRetries       int
	UseChat                bool // After compaction, use Chat mode instead of Stream
}

// Usage 是 runner/types.Usage 的别名
type Usage = types.Usage
