package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/csvimport"
	"github.com/dhyansraj/qa-testdesk/internal/db"
	"github.com/dhyansraj/qa-testdesk/internal/execution"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/report"
	"github.com/dhyansraj/qa-testdesk/internal/session"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// withRepository loads the config, opens the store and runs fn
func withRepository(cmd *cobra.Command, fn func(ctx context.Context, repo *db.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

// =============================================================================
// Tree Command
// =============================================================================

func runTree(cmd *cobra.Command, args []string) error {
	return withRepository(cmd, func(ctx context.Context, repo *db.Repository) error {
		suites, err := repo.ListSuites(ctx, projectID)
		if err != nil {
			return err
		}
		cases, err := repo.ListTestCases(ctx, projectID)
		if err != nil {
			return err
		}
		if len(suites) == 0 && len(cases) == 0 {
			fmt.Println("No suites or test cases found")
			return nil
		}

		all := tree.NewSet()
		for _, s := range suites {
			all[s.ID] = struct{}{}
		}
		for _, row := range tree.Flatten(tree.Build(suites, cases, all)) {
			printRow(row)
		}
		return nil
	})
}

func printRow(row tree.Row) {
	if row.Case != nil {
		fmt.Printf("%s- [%s] %s\n", indent(row.Depth), row.Case.Priority, row.Case.Title)
		return
	}
	fmt.Printf("%s%s\n", indent(row.Depth), row.Suite.Name)
}

// =============================================================================
// Import Command
// =============================================================================

func runImport(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	parsed, err := csvimport.Parse(f)
	if err != nil {
		return err
	}

	return withRepository(cmd, func(ctx context.Context, repo *db.Repository) error {
		sess := session.New("cli", projectID, session.Backends{
			Suites: db.SuiteBackend{Repository: repo},
			Cases:  db.CaseBackend{Repository: repo},
			Writer: repo,
		}, cache.WithTimeout(time.Minute))
		defer sess.Close()

		rep, err := sess.Importer.Import(ctx, projectID, parsed)
		fmt.Printf("Created %d suite(s), reused %d, created %d test case(s)\n",
			rep.CreatedSuites, rep.ReusedSuites, rep.CreatedCases)
		for _, rowErr := range rep.Errors {
			fmt.Printf("  skipped %s\n", rowErr.Error())
		}
		return err
	})
}

// =============================================================================
// Runs Commands
// =============================================================================

func runRunsList(cmd *cobra.Command, args []string) error {
	return withRepository(cmd, func(ctx context.Context, repo *db.Repository) error {
		runs, err := repo.ListTestRuns(ctx, projectID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Environment", "Status", "Created"})
		for _, r := range runs {
			table.Append([]string{r.ID, r.Name, r.Environment, string(r.RunStatus), r.CreatedAt.Format(time.RFC3339)})
		}
		table.Render()
		return nil
	})
}

func runRunsReport(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")
	return withRepository(cmd, func(ctx context.Context, repo *db.Repository) error {
		rep, err := execution.NewService(repo).Report(ctx, args[0])
		if err != nil {
			return err
		}
		titles, err := caseTitles(ctx, repo, rep.Results)
		if err != nil {
			return err
		}
		if raw {
			fmt.Print(report.Markdown(rep, titles))
			return nil
		}
		return report.NewRenderer(os.Stdout).Render(rep, titles)
	})
}

func caseTitles(ctx context.Context, repo *db.Repository, results []models.TestRunResult) (map[string]string, error) {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TestCaseID)
	}
	cases, err := repo.GetTestCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(cases))
	for _, c := range cases {
		titles[c.ID] = c.Title
	}
	return titles, nil
}
