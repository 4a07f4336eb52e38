package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kandev/agenthost/internal/launch"
)

var (
	openApp       string
	openLine      int
	openWorkspace string
	openFiles     []string
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a file or directory in an installed application",
	Long: `Open a file or directory in an installed application. The application is
named by the identifier shown by "agenthost detect apps".`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	openCmd.Flags().StringVar(&openApp, "app", "", "application identifier (required)")
	openCmd.Flags().IntVar(&openLine, "line", 0, "line to jump to in an editor")
	openCmd.Flags().StringVar(&openWorkspace, "workspace", "", "workspace to open alongside the file")
	openCmd.Flags().StringSliceVar(&openFiles, "file", nil, "additional open files (repeatable)")
	_ = openCmd.MarkFlagRequired("app")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	workspace := openWorkspace
	if workspace != "" {
		if workspace, err = filepath.Abs(workspace); err != nil {
			return err
		}
	}

	comps.apps.Detect(cmd.Context())
	err = comps.dispatcher.Open(cmd.Context(), path, openApp, launch.Options{
		Line:          openLine,
		WorkspacePath: workspace,
		OpenFiles:     openFiles,
		ActiveFile:    path,
	})
	if errors.Is(err, launch.ErrApplicationNotFound) {
		return fmt.Errorf("%w: %q (see agenthost detect apps)", launch.ErrApplicationNotFound, openApp)
	}
	return err
}
