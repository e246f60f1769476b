// Package prompt builds the system prompt sent to the model at the start of
// each turn, combining agent identity, tool capabilities, slot-based
// injections from skills, and MCP tool summaries.
package prompt

import "errors"

// Prompt errors.
var (
	// ErrTemplateRender indicates that template rendering failed.
	ErrTemplateRender = errors.New("prompt: template render failed")

	// ErrMemorySearch indicates that memory search failed.
	ErrMemorySearch = errors.New("prompt: memory search failed")
)
