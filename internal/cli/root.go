package cli

import (
	"context"

	"github.com/spf13/cobra"

	"agentcore/internal/config"
	"agentcore/pkg/logger"
)

// globalFlags holds the flags every subcommand can see, set once by the
// root command and read back out of the PersistentPreRunE closure.
type globalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

var flags globalFlags

type contextKey struct{}

// NewRootCmd builds the agentcore command tree: config/logging setup in
// PersistentPreRunE, then whichever subcommand the user invoked reads the
// resulting *Context back out of the command's context.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - a Go AI coding agent runtime",
		Long: `agentcore runs an AI coding agent over the Agent Client Protocol.
It drives the streaming turn loop, file-mutation tools, and hook/policy
pipeline described in its design notes, speaking ACP over stdio so any
ACP-capable editor or CLI host can drive it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Log.Level
			if flags.Verbose {
				logLevel = "debug"
			}
			if flags.Quiet {
				logLevel = "error"
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			}); err != nil {
				return err
			}

			storagePath := cfg.Storage.Path
			if storagePath == "" {
				storagePath, err = config.DefaultDataPath()
				if err != nil {
					return err
				}
			}

			log := logger.Get()
			cliCtx := NewContext(cfg, configPath, log, storagePath, flags.Verbose, flags.Quiet)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	root.AddCommand(NewVersionCmd())
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewServeMCPCmd())

	return root
}

// FromCommand retrieves the Context a PersistentPreRunE stored on cmd.
func FromCommand(cmd *cobra.Command) *Context {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, _ := ctx.Value(contextKey{}).(*Context)
	return cliCtx
}
