package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"codegraph/internal/config"
	"codegraph/internal/server"
	"codegraph/internal/store"
	"codegraph/util"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "codegraph",
		Short: "Code graph MCP server for Python and C codebases",
		Long: `codegraph indexes a workspace of Python and C sources into a
structural graph (functions, structs, imports, calls, macros) stored in
SQLite, and serves dependency, impact, and semantic search queries to an
agent over MCP on stdio.`,
		RunE: runServe,
	}

	configPath string
	workspace  string
	dbPath     string
	dialect    string
	watch      bool
)

func main() {
	// Stdout carries the MCP transport; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root to index (default current directory)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "", "Path to the SQLite graph database")
	rootCmd.Flags().StringVar(&dialect, "dialect", "", "Query dialect: typed or raw")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "Re-index files automatically as they change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	} else if cfg.Workspace == "." {
		// No explicit workspace: index the enclosing repository, not just
		// the directory the agent happened to launch from.
		if cwd, err := os.Getwd(); err == nil {
			cfg.Workspace = util.FindProjectRoot(cwd)
		}
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if dialect != "" {
		if dialect != config.DialectTyped && dialect != config.DialectRaw {
			return fmt.Errorf("unknown dialect %q: must be %q or %q", dialect, config.DialectTyped, config.DialectRaw)
		}
		cfg.Dialect = dialect
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch.Enabled = watch
	}
	cfg.Workspace = util.CanonicalPath(cfg.Workspace)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("serving workspace %s (db %s, dialect %s)", cfg.Workspace, cfg.DBPath, cfg.Dialect)
	srv := server.New(cfg, st)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
