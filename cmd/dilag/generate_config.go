// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dilag-app/dilag/internal/config"
)

// RunGenerateConfigCommand writes a default config.toml without starting the
// server.
func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := configDir
			if dir == "" {
				dir = config.GetDefaultConfigDir()
			}

			configPath := filepath.Join(dir, "config.toml")
			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists at %s. Skipping generation.\n", configPath)
				return nil
			}

			path, err := config.GenerateConfig(dir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated config file at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory to write config.toml into")

	return cmd
}
