package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomkeep/loomkeep/internal/api"
	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/mcp"
	"github.com/loomkeep/loomkeep/pkg/config"
)

const defaultShutdownTimeout = 10 * time.Second

var (
	// Version is set during build.
	Version = "1.0.0"

	mcpMode bool
	apiMode bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "loomkeep",
	Short: "Persistent per-project memory for AI coding assistants",
	Long: `loomkeep stores and retrieves contextual memories across coding sessions:
decisions, gotchas, conventions, and file knowledge, scoped per project or
kept global, searchable with full-text relevance ranking.

Examples:
  loomkeep store "prefer table-driven tests in this repo"
  loomkeep search "table-driven tests"
  loomkeep tag add <id> testing go
  loomkeep link <id1> <id2> --relationship related
  loomkeep cleanup --purge-older-than 90

  loomkeep serve --mcp   # run as MCP server (JSON-RPC over stdin/stdout)
  loomkeep serve --api   # run the REST API server`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress output")

	serveCmd.Flags().BoolVar(&mcpMode, "mcp", false, "run as MCP server (JSON-RPC over stdin/stdout)")
	serveCmd.Flags().BoolVar(&apiMode, "api", false, "run the REST API server")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run loomkeep as a long-lived server (MCP stdio or REST API)",
	Run: func(cmd *cobra.Command, args []string) {
		switch {
		case mcpMode:
			runMCPServer()
		case apiMode:
			runAPIServer()
		default:
			_ = cmd.Help()
		}
	},
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing data directory: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openDatabaseOrExit(cfg *config.Config) *database.DB {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		if db == nil {
			// Nothing to keep alive: the directory, lock, or connection
			// itself never came up, so every retry would fail the same way.
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		// Migrations failed but the handle is otherwise live. Keep the
		// process up so the tool layer can report "database unavailable"
		// on every call instead of the server never starting at all.
		fmt.Fprintf(os.Stderr, "Warning: %v; serving in degraded mode\n", err)
	}
	return db
}

func shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

// runMCPServer starts the MCP server mode.
func runMCPServer() {
	cfg := loadConfigOrExit()
	db := openDatabaseOrExit(cfg)
	defer db.Close()

	server := mcp.NewServer(db, cfg)

	ctx, cancel := shutdownContext()
	defer cancel()

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

// runAPIServer starts the REST API server mode.
func runAPIServer() {
	cfg := loadConfigOrExit()
	db := openDatabaseOrExit(cfg)
	defer db.Close()

	server := api.NewServer(db, cfg)

	ctx, cancel := shutdownContext()
	defer cancel()

	if err := server.StartWithContext(ctx, defaultShutdownTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "API server error: %v\n", err)
		os.Exit(1)
	}
}
