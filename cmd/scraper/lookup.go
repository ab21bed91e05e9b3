package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
	"github.com/JakeFAU/mostaql-scraper/internal/storage/sqlite"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <project-url>",
		Short: "Show the stored copy of a project from the SQLite history",
		Long: `lookup reads sqlite.path from the configuration and prints the last
stored fields of one project, the run that wrote them, and the number of
projects in the history.`,
		Args: cobra.ExactArgs(1),
		RunE: runLookupCmd,
	}
}

func runLookupCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadFileConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is not configured")
	}
	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // read-only use

	ctx := cmd.Context()
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	rec, runID, err := store.Get(ctx, args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found among %d stored projects", args[0], total)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, v := range rec.Values() {
		fmt.Fprintf(out, "%-16s %s\n", scraper.Columns[i], v)
	}
	fmt.Fprintf(out, "%-16s %s\n", "run_id", runID)
	fmt.Fprintf(out, "%-16s %d\n", "stored_projects", total)
	return nil
}
