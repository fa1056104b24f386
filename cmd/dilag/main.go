// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dilag-app/dilag/internal/buildinfo"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dilag",
		Short: "Local backend for the dilag design studio",
		Long:  "dilag runs the local API that manages licensing, design sessions and the agent toolchain.",
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RunVersionCommand prints build information.
func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
