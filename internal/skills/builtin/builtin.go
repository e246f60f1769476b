// Package builtin embeds the default skill catalog installed into a
// workspace's .forge/skills/ directory on first run.
package builtin

import "embed"

//go:embed skills
var FS embed.FS
