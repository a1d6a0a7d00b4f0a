package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the rulekitd application
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulekitd",
		Short: "rulekitd - drive a rulekit process from a configuration file",
		Long: `rulekitd runs the demonstration rulekit process at a fixed frame rate.
It loads a host configuration (YAML, TOML or JSON), feeds the configuration
store, serves health endpoints and restarts the process on a cron schedule.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("rulekitd v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
