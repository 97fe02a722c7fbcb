// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the todochat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todochat",
		Short: "todochat - chat rooms for the todo app",
		Long: `todochat serves the admin and public chat rooms of the todo app
over WebSocket, with message history in PostgreSQL or Redis.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/todochat/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewNotifyCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
