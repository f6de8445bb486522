// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Enables LLM agents to inspect personas and the pipeline via stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/veil/internal/config"
	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/llm"
	"github.com/harper/veil/internal/mcp"
	"github.com/harper/veil/internal/storage/sqlite"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs the relay as an MCP (Model Context Protocol) server over stdio,
exposing persona listing, the transform pipeline, and the settings
entropy estimate as tools.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically launched by the agent host)
  veil mcp`,
	}

	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var rewriter core.Rewriter
	if cfg.OpenAIKey != "" {
		r, err := llm.NewRewriterWithConfig(&llm.ClientConfig{
			APIKey:         cfg.OpenAIKey,
			Model:          cfg.Model,
			ProtectedNoun:  cfg.ProtectedNoun,
			RequestTimeout: cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			RetryDelay:     cfg.RetryDelay,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize rewriter: %w", err)
		}
		rewriter = r
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set; transform_text will fail when the gpt setting is on")
	}

	registry := core.NewRegistry(sqlite.NewPersonaStore(db), core.DefaultNamePool(), log)
	settings := core.NewSettingsService(sqlite.NewSettingsStore(db))
	transformer := core.NewTransformer(settings, registry, rewriter, log)

	server := mcpserver.NewMCPServer("Veil Relay", versionInfo.Version)
	mcp.RegisterTools(server, registry, settings, transformer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
