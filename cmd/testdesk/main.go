package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhyansraj/qa-testdesk/internal/api"
	"github.com/dhyansraj/qa-testdesk/internal/config"
	"github.com/dhyansraj/qa-testdesk/internal/db"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
)

var (
	// version is set at build time via ldflags: -ldflags "-X main.version=X.Y.Z"
	version = "dev"
)

// Global flags
var (
	configPath string
	projectID  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "testdesk",
		Short: "Manual QA test case management",
		Long: `testdesk - organise test cases in nested suites and record manual test runs.

Serves the REST API used by the web client, and offers a few read-only views and a CSV
import from the command line.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (env: "+config.EnvConfigPath+")")

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntP("port", "p", 0, "Server port (default from config)")
	rootCmd.AddCommand(serveCmd)

	// Tree command
	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the suite tree of a project",
		RunE:  runTree,
	}
	treeCmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	treeCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(treeCmd)

	// Import command
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import test cases from a CSV file",
		Long: `Import test cases from a CSV file with a header row.

Recognised columns: title (required), description, test_type, priority, status,
preconditions, tags, suite_name, and step_1..step_N as "action|expected".

Examples:
  testdesk import --project demo --file cases.csv`,
		RunE: runImport,
	}
	importCmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	importCmd.Flags().StringP("file", "f", "", "CSV file (required)")
	importCmd.MarkFlagRequired("project")
	importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)

	// Runs commands
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect test runs",
	}
	runsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List the runs of a project",
		RunE:  runRunsList,
	}
	runsListCmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	runsListCmd.MarkFlagRequired("project")
	runsReportCmd := &cobra.Command{
		Use:   "report <run_id>",
		Short: "Render a run report",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsReport,
	}
	runsReportCmd.Flags().Bool("raw", false, "Output raw markdown without formatting")
	runsCmd.AddCommand(runsListCmd, runsReportCmd)
	rootCmd.AddCommand(runsCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("testdesk version %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and sets up logging
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	return cfg, nil
}

// openRepository opens the configured database
func openRepository(ctx context.Context, cfg config.Config) (*db.Repository, error) {
	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.DatabaseSource())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db.NewRepository(conn), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if cfg.Database.Driver == db.DriverSQLite {
		fmt.Printf("Using database: %s\n", cfg.Database.Path)
	}
	return api.NewServer(repo, cfg).Run(ctx)
}

// indent returns two spaces per depth level
func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
