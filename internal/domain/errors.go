package domain

import "errors"

// Error kind sentinels. Producers wrap these into their own errors
// (filecore.ErrNoSnapshot, runtime.ErrSessionNotFound, the tools
// package's argument errors) and the dispatch loop uses errors.Is via
// Kind/Recoverable to decide whether a failure is fed back to the model
// as an error ToolResult or bubbles all the way out of the turn loop.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPolicyDenied      = errors.New("policy denied")
	ErrNotFound          = errors.New("not found")
	ErrProviderTransport = errors.New("provider transport error")
	ErrRetryable         = errors.New("retryable error")
)

// Kind returns the sentinel this error wraps, or nil if it wraps none of
// the taxonomy above.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrPolicyDenied, ErrNotFound, ErrProviderTransport, ErrRetryable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Recoverable reports whether err should become an error ToolResult the
// model sees and can react to. Validation and policy failures qualify —
// the model typically rephrases the call or picks another tool. NotFound
// (missing session, conversation, or snapshot) and transport errors do
// not: they surface to the caller. Retryable errors belong to the outer
// retry policy, not the model.
func Recoverable(err error) bool {
	switch Kind(err) {
	case ErrValidation, ErrPolicyDenied:
		return true
	default:
		return false
	}
}
