package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"circman/internal/app"
	"circman/internal/logging"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "circman",
	Short: "Manager for CircuitPython project deployment",
	Long:  "Circman deploys a project's source tree to a mounted CircuitPython device, snapshotting the device first so any deploy can be rolled back.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity, repeatable")
	rootCmd.AddCommand(
		app.NewDeployCommand(),
		app.NewRestoreCommand(),
		app.NewPullCommand(),
		app.NewListCommand(),
		app.NewDeviceCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
