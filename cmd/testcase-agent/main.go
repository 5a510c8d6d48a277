// File path: cmd/testcase-agent/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/api"
	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/common/telemetry"
	"github.com/nicodishanthj/testcase_agent/internal/config"
	"github.com/nicodishanthj/testcase_agent/internal/llm"
	"github.com/nicodishanthj/testcase_agent/internal/sqlite"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
)

const version = "0.1.0"

type options struct {
	configPath string
	addr       string
	dbPath     string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "testcase-agent",
		Short:         "Turns product backlog items into test cases over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults to TESTCASE_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.addr, "addr", "", "listen address")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), opts)
		},
	}

	cmd.AddCommand(serveCmd, migrateCmd, &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("testcase-agent version %s\n", version)
		},
	})
	return cmd
}

func loadConfig(opts options) (config.Config, error) {
	logger := common.Logger()
	if err := godotenv.Load(); err != nil {
		logger.Debug("testcase-agent: .env file not loaded", "error", err)
	} else {
		logger.Info("testcase-agent: environment loaded from .env")
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg = cfg.Merge(config.Config{
		Addr:   strings.TrimSpace(opts.addr),
		SQLite: sqlite.Config{Path: strings.TrimSpace(opts.dbPath)},
	})
	return cfg, nil
}

func migrate(ctx context.Context, opts options) error {
	logger := common.Logger()
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	store, err := sqlite.OpenWithConfig(cfg.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("testcase-agent: schema ready", "path", cfg.SQLite.Path)
	return nil
}

func serve(ctx context.Context, opts options) error {
	logger := common.Logger()
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger.Info("testcase-agent: startup initiated", "addr", cfg.Addr, "db", cfg.SQLite.Path, "version", version)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)

	store, err := sqlite.OpenWithConfig(cfg.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()

	mode, err := agent.ParseStreamMode(cfg.Agent.StreamMode)
	if err != nil {
		return err
	}
	prompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}
	model := llm.NewProvider(cfg.LLM)
	logger.Info("testcase-agent: llm provider ready", "provider", llm.Name(model))

	runtime := agent.NewGraph(model, agent.NewTestCaseSaver(store),
		agent.WithCheckpoints(agent.NewCheckpoints(cfg.Agent.MemoryThreads)),
		agent.WithStreamMode(mode),
		agent.WithSystemPrompt(prompt),
		agent.WithMetrics(metrics),
	)
	relay := stream.NewRelay(runtime, store,
		stream.WithFragmentSize(cfg.Relay.FragmentSize),
		stream.WithFragmentDelay(*cfg.Relay.FragmentDelay),
		stream.WithMetrics(metrics),
	)
	processor := attachment.NewProcessor(
		attachment.WithMaxBytes(cfg.Attachment.MaxBytes),
		attachment.WithStrategies(cfg.AttachmentStrategies()...),
		attachment.WithMetrics(metrics),
	)
	server, err := api.NewServer(api.Dependencies{
		Store:       store,
		Runtime:     runtime,
		Relay:       relay,
		Attachments: processor,
		Metrics:     metrics,
	}, &api.Config{MaxFormMemory: cfg.Attachment.MaxBytes, Version: version})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		reachable := cfg.Addr
		if strings.HasPrefix(reachable, ":") {
			reachable = "localhost" + reachable
		}
		logger.Info("testcase-agent: server listening", "addr", cfg.Addr, "health", fmt.Sprintf("http://%s/health", reachable))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("testcase-agent: shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("testcase-agent: server stopped")
	return nil
}
