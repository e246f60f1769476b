package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "agentcore/internal/mcp/server"
	"agentcore/internal/server"
)

// NewServeMCPCmd creates the serve-mcp command: the inverse of serve.
// Instead of being driven over ACP, the process exposes its own builtin
// tool registry (file, search, shell, fetch tools) to any MCP client
// over stdio, so another agent can borrow this one's workspace tooling.
func NewServeMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Expose the agent's tool registry as an MCP server on stdio",
		RunE:  runServeMCP,
	}
	return cmd
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	cliCtx := FromCommand(cmd)
	if cliCtx == nil {
		return fmt.Errorf("cli: context not initialized")
	}
	log := cliCtx.Logger

	cliCtx.Config.Storage.Path = cliCtx.StoragePath

	svc, err := server.New(cliCtx.Config, *log)
	if err != nil {
		return fmt.Errorf("cli: build services: %w", err)
	}
	defer func() {
		if cerr := svc.Close(cmd.Context()); cerr != nil {
			log.Error().Err(cerr).Msg("error closing services")
		}
	}()

	srv := mcpserver.NewServer("agentcore", Version, mcpserver.WithRegistry(svc.Tools))
	defer srv.Close()

	log.Info().Msg("agentcore: serving MCP on stdio")
	svc.MarkRunning(true)
	defer svc.MarkRunning(false)

	return srv.Serve()
}
