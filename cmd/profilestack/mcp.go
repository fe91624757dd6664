package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/profilestack/internal/api"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the active profile to MCP clients over stdio",
	Long: `Serve the active profile over the Model Context Protocol on stdin/stdout.

Tools: get_profile, update_fields, add_entry, remove_entry, generate.
Resource: user://profile.

Example client entry:
  {"command": "profilestack", "args": ["mcp"]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Session:   d.ctrl,
			Generator: d.client,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		slog.Info("MCP server started (stdio transport)", "session", d.ctrl.Mode().String())
		if err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
