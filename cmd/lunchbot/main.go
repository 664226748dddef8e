// Command lunchbot runs the lunch reminder bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/stateful/core/buildinfo"
)

const (
	configEnvVar      = "LUNCHBOT_CONFIG"
	defaultConfigPath = "config.yaml"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lunchbot",
		Short:        "Telegram bot that keeps the team on lunch schedule",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (defaults to $"+configEnvVar+" or "+defaultConfigPath+").")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "lunchbot "+buildinfo.String())
		},
	}
}

func configFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}
