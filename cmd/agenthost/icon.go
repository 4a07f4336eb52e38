package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var iconCmd = &cobra.Command{
	Use:   "icon <identifier>",
	Short: "Print an application's icon as a PNG data URL (macOS only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		comps, err := buildComponents(cfg, log)
		if err != nil {
			return err
		}
		comps.apps.Detect(cmd.Context())
		icon, ok := comps.apps.Icon(cmd.Context(), args[0])
		if !ok {
			return fmt.Errorf("no icon for %q", args[0])
		}
		fmt.Println(icon)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(iconCmd)
}
