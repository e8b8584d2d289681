package app

import (
	"github.com/spf13/cobra"

	"circman/internal/config"
)

func newApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

func NewDeployCommand() *cobra.Command {
	var devicePath, source string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Back up the device, then copy the project source onto it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Deploy(devicePath, source)
		},
	}

	cmd.Flags().StringVarP(&devicePath, "device", "d", "", "device mount path, discovered automatically when omitted")
	cmd.Flags().StringVarP(&source, "source", "s", "", `directory to deploy (default "src")`)

	return cmd
}

func NewRestoreCommand() *cobra.Command {
	var devicePath string
	var archive int

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Copy a backup back onto the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Restore(devicePath, archive)
		},
	}

	cmd.Flags().StringVarP(&devicePath, "device", "d", "", "device mount path, discovered automatically when omitted")
	cmd.Flags().IntVarP(&archive, "archive", "a", 1, "backup number from the list command, 1 is the most recent")

	return cmd
}

func NewPullCommand() *cobra.Command {
	var devicePath, dest string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Copy the device contents back into a host directory",
		Long: `Copy the device contents back into a host directory.

Overwrites files in the destination without prompting and without
taking a backup, so use with caution.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Pull(devicePath, dest)
		},
	}

	cmd.Flags().StringVarP(&devicePath, "device", "d", "", "device mount path, discovered automatically when omitted")
	cmd.Flags().StringVarP(&dest, "dest", "D", "", `destination directory (default "src")`)

	return cmd
}

func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups that can be restored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Backups()
		},
	}
}

func NewDeviceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show removable volumes and which one would be selected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Devices()
		},
	}
}
