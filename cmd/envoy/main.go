// Envoy is a multi-agent delegation service.
//
// It lets an initiator agent hand tasks to sub-agents in its workflow,
// each running asynchronously in its own conversation against a
// configured chat-completion endpoint. The delegation tools (start,
// check, continue, stop, list) are exposed over an HTTP API together
// with workflow administration endpoints.
//
// Usage:
//
//	envoy serve              Start the API server
//	envoy version            Print version and build information
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hollis/envoy-ai-agent/internal/api"
	"github.com/hollis/envoy-ai-agent/internal/buildinfo"
	"github.com/hollis/envoy-ai-agent/internal/completions"
	"github.com/hollis/envoy-ai-agent/internal/config"
	"github.com/hollis/envoy-ai-agent/internal/delegation"
	"github.com/hollis/envoy-ai-agent/internal/fetch"
	"github.com/hollis/envoy-ai-agent/internal/memory"
	"github.com/hollis/envoy-ai-agent/internal/tools"
	"github.com/hollis/envoy-ai-agent/internal/workflow"
)

// main constructs the OS-level environment and delegates to run, which
// keeps os.Exit and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	var configPath string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-version" || args[i] == "--version":
			command = "version"
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(stdout io.Writer) error {
	fmt.Fprintf(stdout, `Envoy %s

Usage:
  envoy [flags] <command>

Commands:
  serve      Start the API server
  version    Print version and build information

Flags:
  -config <path>   Path to config file (default: search standard locations)
`, buildinfo.Version)
	return nil
}

// runServe loads config, opens stores, wires the delegation subsystem,
// and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Envoy",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"completions_url", cfg.Completions.URL,
	)

	if cfg.Completions.URL == "" {
		return fmt.Errorf("completions.url is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// Conversation storage. Delegations create a conversation per
	// delegate execution and poll it for persisted responses.
	dbPath := filepath.Join(cfg.DataDir, "envoy.db")
	store, err := memory.NewSQLiteStore(dbPath, 200)
	if err != nil {
		return fmt.Errorf("open conversation database %s: %w", dbPath, err)
	}
	defer store.Close()
	logger.Info("conversation database opened", "path", dbPath)

	// Workflow directory: who may delegate to whom.
	dirPath := filepath.Join(cfg.DataDir, "workflows.db")
	directory, err := workflow.NewDirectory(dirPath)
	if err != nil {
		return fmt.Errorf("open workflow database %s: %w", dirPath, err)
	}
	defer directory.Close()

	endpoint := completions.NewClient(cfg.Completions.URL, cfg.Completions.Token, logger)

	engine := delegation.NewEngine(logger, endpoint, store,
		cfg.Delegation.PollAttempts, cfg.Delegation.PollInterval())
	orchestrator := delegation.NewOrchestrator(logger, directory, store, store, engine,
		delegation.Options{
			Retention:      cfg.Delegation.Retention(),
			MaxObserveWait: cfg.Delegation.MaxObserveWait(),
		})

	registry := tools.NewRegistry()
	delegation.RegisterTools(registry, orchestrator)
	fetch.RegisterTool(registry, fetch.New())
	logger.Info("tools registered", "tools", registry.Names())

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, registry, directory, logger)

	// SIGINT/SIGTERM cancels the context and triggers graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	logger.Info("goodbye", "uptime", buildinfo.Uptime().Round(time.Second))
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
