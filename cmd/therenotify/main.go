package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "therenotify",
		Short: "Therefore workflow report service",
		Long: `Therenotify consolidates workflow notifications from a Therefore
document-management instance into scheduled summary emails. It polls
report definitions on a cron schedule, fetches the open workflow tasks
per recipient, and sends one templated email per user.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
