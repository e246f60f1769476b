package builtin

import "path/filepath"

// requireAbsolutePath enforces the dispatcher's path policy: every
// filesystem tool operates on absolute paths only, mirroring
// assert_absolute_path. Callers
// (an IDE client, an orchestrator resolving `@[path]` attachments) are
// responsible for expanding a relative path against the workspace root
// before it ever reaches a tool argument.
func requireAbsolutePath(path string) error {
	if path == "" {
		return errEmptyPath
	}
	if !filepath.IsAbs(path) {
		return &NonAbsolutePathError{Path: path}
	}
	return nil
}

// NonAbsolutePathError is returned by a filesystem tool when an argument
// path is relative.
type NonAbsolutePathError struct {
	Path string
}

func (e *NonAbsolutePathError) Error() string {
	return "path must be absolute: " + e.Path
}

var errEmptyPath = &NonAbsolutePathError{Path: "(empty)"}
