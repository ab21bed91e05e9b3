package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/app"
	"github.com/JakeFAU/mostaql-scraper/internal/config"
	"github.com/JakeFAU/mostaql-scraper/internal/logging"
	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape listing pages and write the CSV",
		Long: `Run collects project links from the first --pages listing pages (at most
--limit per page), stopping early at the first page without projects, then
fetches every project page and writes the results.

Examples:
  # Defaults: first page, up to 25 projects, data/mostaql_projects.csv
  scraper run

  # Three pages of a filtered listing
  scraper run --url "https://mostaql.com/projects?category=development" --pages 3

  # Print the run summary as JSON
  scraper run --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().String("url", scraper.DefaultListURL, "listing URL to start from")
	cmd.Flags().Int("pages", scraper.DefaultPages, "number of listing pages to visit")
	cmd.Flags().Int("limit", scraper.DefaultPerPageLimit, "maximum project links taken from each listing page")
	cmd.Flags().String("output", "", "output file name inside output.dir")
	cmd.Flags().Bool("json", false, "print the run summary as JSON on stdout")
	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("Failed to close services", zap.Error(cerr))
		}
	}()

	summary, err := a.Run(ctx, cfg.Params())
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	return printSummary(cmd, summary, asJSON)
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadFileConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Scraper.ListURL, _ = flags.GetString("url")
	}
	if flags.Changed("pages") {
		cfg.Scraper.Pages, _ = flags.GetInt("pages")
	}
	if flags.Changed("limit") {
		cfg.Scraper.PerPageLimit, _ = flags.GetInt("limit")
	}
	if flags.Changed("output") {
		cfg.Output.Filename, _ = flags.GetString("output")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return cfg, nil
}

func printSummary(cmd *cobra.Command, summary scraper.RunSummary, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		return nil
	}
	fmt.Fprintf(out, "Saved %d projects to %s\n", summary.RecordsWritten, summary.OutputPath)
	if n := len(summary.SkippedURLs); n > 0 {
		fmt.Fprintf(out, "Skipped %d project pages that could not be fetched\n", n)
	}
	if summary.ArtifactURI != "" {
		fmt.Fprintf(out, "Uploaded %s\n", summary.ArtifactURI)
	}
	return nil
}
