package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mostaql-scraper/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFileConfig(cmd)
			if err != nil {
				return err
			}
			b, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a file",
		Long: `init writes the current defaults, merged with any file and SCRAPER_*
variables, to --path (default: config.yaml under the user config directory).`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
	initCmd.Flags().String("path", "", "destination file")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadFileConfig(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = filepath.Join(config.Dir(), config.FileName)
	}
	force, _ := cmd.Flags().GetBool("force")
	if err := config.Save(path, cfg, force); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func loadFileConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
