package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Apollack123/charge-audit-bot2/internal/config"
)

func loadConfigWithInfo(root *rootOptions) (*config.AppConfig, config.LoadConfigInfo, error) {
	cfg, info, err := config.LoadConfigWithInfo(root.configPath)
	if err != nil {
		return nil, info, fmt.Errorf("load config: %w", err)
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	return cfg, info, nil
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize config.toml",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a config.toml with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, err := loadConfigWithInfo(root)
			if err != nil {
				return err
			}
			if info.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", info.Path)
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
