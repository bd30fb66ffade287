// Package main is the entry point for the Flowboard daemon.
//
// Usage:
//
//	flowboard serve            run the board daemon (HTTP API + stale monitor)
//	flowboard status           check daemon health
//	flowboard version          print version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowboard/flowboard/internal/api"
	"github.com/flowboard/flowboard/internal/assist"
	"github.com/flowboard/flowboard/internal/board"
	"github.com/flowboard/flowboard/internal/config"
	"github.com/flowboard/flowboard/internal/hooks"
	"github.com/flowboard/flowboard/internal/observability"
	"github.com/flowboard/flowboard/internal/storage"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "flowboard",
	Short: "Flowboard - a concurrency-safe kanban board daemon",
	Long: `Flowboard tracks work items through a fixed four-stage pipeline
(backlog -> in_progress -> review -> done) with a WIP limit, a dependency
gate, assistant-driven code generation and review, and a background
monitor for tasks stuck in progress.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flowboard v%s\n", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board daemon (HTTP API + stale monitor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + cfg.ListenAddr + "/health")
		if err != nil {
			return fmt.Errorf("daemon not reachable at %s: %w", cfg.ListenAddr, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serve wires store -> board -> monitor -> HTTP API and blocks until
// SIGINT or SIGTERM.
func serve(cfg *config.Config) error {
	log := observability.NewLogger("flowboard", nil)
	metrics := observability.NewMetricsCollector(0)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume from the previous snapshot, if any.
	tasks, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if len(tasks) > 0 {
		log.Info("board restored", "tasks", len(tasks))
	}

	registry := hooks.NewRegistry(log.Component("hooks"))
	registry.Register(hooks.EventTransition, hooks.LogListener(log.Component("transition-log")))

	opts := []board.Option{
		board.WithStore(store),
		board.WithHooks(registry),
		board.WithLogger(log.Component("board")),
		board.WithMetrics(metrics),
		board.WithTasks(tasks),
	}
	opts = append(opts, assistantOpts(cfg, log)...)

	b, err := board.New(cfg.WIPLimit, opts...)
	if err != nil {
		return err
	}

	monitor := board.NewStaleMonitor(b, cfg.StaleThreshold, cfg.PollInterval,
		log.Component("stale-monitor"))
	go monitor.Run(ctx)

	srv := api.NewServer(cfg.ListenAddr, b, log.Component("api"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	log.Info("flowboard started",
		"version", version,
		"addr", cfg.ListenAddr,
		"wip_limit", cfg.WIPLimit,
		"store", cfg.StoreDriver,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	printCounters(metrics)
	return nil
}

// assistantOpts selects mock or Claude-backed assistants.
func assistantOpts(cfg *config.Config, log *observability.Logger) []board.Option {
	if cfg.UseMockAssistants || cfg.AnthropicKey == "" {
		log.Info("using mock assistants")
		return []board.Option{
			board.WithGenerator(&assist.MockGenerator{Delay: 100 * time.Millisecond}),
			board.WithReviewer(&assist.MockReviewer{Delay: 50 * time.Millisecond}),
		}
	}

	var opts []assist.ClaudeOption
	if cfg.Model != "" {
		opts = append(opts, assist.WithModel(cfg.Model))
	}
	claude := assist.NewClaudeAssistant(cfg.AnthropicKey, opts...)
	log.Info("using claude assistants")
	return []board.Option{
		board.WithGenerator(claude),
		board.WithReviewer(claude),
	}
}

// openStore builds the configured persistence sink.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "none":
		return storage.NullStore{}, nil
	case "json":
		return storage.NewJSONStore(filepath.Join(cfg.DataDir, "board.json")), nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return storage.NewSQLiteStore(filepath.Join(cfg.DataDir, "board.db"))
	}
}

func printCounters(metrics *observability.MetricsCollector) {
	snap := metrics.Snapshot()
	if len(snap) == 0 {
		return
	}
	data, _ := json.Marshal(snap)
	fmt.Fprintf(os.Stderr, "counters: %s\n", data)
}
