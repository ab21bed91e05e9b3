package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/mostaql-scraper/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Collect project postings from mostaql.com into a CSV file",
		Long: `scraper walks the paginated project listing, visits every project page,
extracts its fields and writes them as one CSV row per project.

Configuration is read from a YAML file (--config, or config.yaml under the
user config directory) and from SCRAPER_* environment variables, e.g.
SCRAPER_POLITENESS_DELAY_MS=2000. --env-file loads extra variables from a
dotenv file without overriding ones already set.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadEnvFile,
	}
	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("env-file", "", "path to a dotenv file with SCRAPER_* variables")

	cmd.AddCommand(newRunCmd(), newInspectCmd(), newConfigCmd(), newLookupCmd())
	return cmd
}

func loadEnvFile(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("env-file")
	if err != nil || path == "" {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// configPath returns --config when given, otherwise the discovered user file.
func configPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path == "" {
		path = config.Discover()
	}
	return path, nil
}
