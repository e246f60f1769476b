package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentcore/internal/acp"
	"agentcore/internal/acp/transport"
	"agentcore/internal/server"
)

// NewServeCmd creates the serve command: it wires a Services bundle, an
// Agent handler around it, and an ACP server speaking the protocol over
// stdio, then blocks until stdin closes or the process is signaled.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent over the Agent Client Protocol on stdio",
		Long: `Run the agent over the Agent Client Protocol on stdio.

This is how an editor or CLI host drives the agent: it spawns this
process, connects its own stdout/stdin to this process's stdin/stdout,
and exchanges JSON-RPC frames per the protocol (initialize, new_session,
prompt, cancel, ...). There is no network listener; the host owns the
process lifecycle.`,
		RunE: runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	agent := server.NewAgent(svc)
	defer agent.Close()
	conn := transport.NewStdioConn(os.Stdin, os.Stdout)
	protoServer := acp.NewServer(conn, agent)
	svc.SetSink(protoServer)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("agentcore: serving ACP on stdio")
	svc.MarkRunning(true)
	defer svc.MarkRunning(false)

	if err := protoServer.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("agentcore: serve loop exited with error")
		return err
	}

	log.Info().Msg("agentcore: stopped")
	return nil
}
