package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panbanda/locksmith/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP (Model Context Protocol) server for LLM tool integration",
	Long: `Starts an MCP server over stdio transport that exposes the deadlock
analysis as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "locksmith": {
        "command": "locksmith",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - analyze_deadlocks   Lock pairs acquired in opposite orders
  - lock_dependencies   Held/acquired lock nesting relation`,
	RunE: runMCP,
}

var mcpManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the MCP registry manifest (server.json)",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := mcpserver.GenerateManifest(version)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpManifestCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(loaded.Config)
	if err != nil {
		return err
	}
	server := mcpserver.NewServer(version,
		mcpserver.WithConfig(loaded.Config),
		mcpserver.WithLogger(logger))
	return server.Run(cmd.Context())
}
