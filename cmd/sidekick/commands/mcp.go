// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets chat hosts and agents drive the pipeline over stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/sidekick-pipeline/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for chat hosts",
		Long: `Start MCP server for chat hosts

Runs sidekick as an MCP (Model Context Protocol) server over stdio.
Hosts call compact_transcript before generation and assemble_prompt
just before sending, and can fill and inspect the summary cache.

Session tracking lives in the server process, so keep one server
running for the lifetime of a chat.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by the host)
  sidekick mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "sidekick": {
  #       "command": "sidekick",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewMCPServer(
		"Sidekick Context Pipeline",
		versionInfo.Version,
	)

	// Register MCP tools and get handlers for shutdown
	handlers := mcp.RegisterTools(server, a.pipeline)

	if !quiet {
		a.logger.Info("sidekick MCP server starting on stdio")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			a.logger.Info("shutdown signal received, flushing state")
		}
		handlers.Shutdown()

	case err := <-serverErr:
		handlers.Shutdown()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
