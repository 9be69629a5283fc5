package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "campusctl",
		Short:         "Operational commands for the Campus Connect API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Overall deadline for the command")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileGroupsCmd())
	rootCmd.AddCommand(sweepExpiredCmd())
	rootCmd.AddCommand(groupsCmd())

	return rootCmd
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(cmd.Context(), timeout)
}
