// ABOUTME: Serve command runs the relay: websocket gateway, HTTP API, core
// ABOUTME: Wires config, store, rewriter, and services together
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/veil/internal/config"
	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/gateway"
	"github.com/harper/veil/internal/httpapi"
	"github.com/harper/veil/internal/llm"
	"github.com/harper/veil/internal/storage/sqlite"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server.

Listens for websocket attachments from users and channels, relays
messages through the anonymisation pipeline, and serves the HTTP API
the game service talks to.`,
		RunE: runServe,
	}

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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
		log.Warn().Msg("OPENAI_API_KEY not set; the gpt setting will fail messages that need it")
	}

	hub := gateway.NewHub(log)
	if cfg.AdminRoleID != 0 && len(cfg.AdminIDs) > 0 {
		hub.GrantRole(cfg.AdminRoleID, cfg.AdminIDs...)
	}

	registry := core.NewRegistry(sqlite.NewPersonaStore(db), core.DefaultNamePool(), log)
	settings := core.NewSettingsService(sqlite.NewSettingsStore(db))
	conns := sqlite.NewConnectionStore(db)
	graph := core.NewGraph(db, conns, log)
	transformer := core.NewTransformer(settings, registry, rewriter, log)
	router := core.NewRouter(graph, registry, conns, transformer, hub, log)
	notifier := core.NewNotifier(settings, registry, hub, log)
	session := gateway.NewSession(registry, settings, graph, router, conns, hub, log)
	hub.OnInbound(session.HandleInbound)

	api := httpapi.NewServer(registry, settings, transformer, notifier, hub, cfg.RequireMember(), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.Handler(hub))
	mux.Handle("/", api.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("relay listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
		// Let in-flight notification sends finish.
		notifier.Wait()
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
