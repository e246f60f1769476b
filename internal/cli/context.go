package cli

import (
	"github.com/rs/zerolog"

	"agentcore/internal/config"
)

// Context bundles the things every subcommand needs after the root
// command's PersistentPreRunE has loaded configuration and initialized
// logging: the resolved config, where it came from, and a logger scoped
// to the process.
type Context struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	StoragePath string
	Verbose     bool
	Quiet       bool
}

// NewContext builds a Context from already-resolved values.
func NewContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) *Context {
	return &Context{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		StoragePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
	}
}
