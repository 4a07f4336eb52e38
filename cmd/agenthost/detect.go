package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
)

var (
	detectJSON bool
	detectWSL  bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect installed applications or agent CLIs",
}

var detectAppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List terminals, editors and file managers",
	Args:  cobra.NoArgs,
	RunE:  runDetectApps,
}

var detectAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agent CLIs with install status and version",
	Args:  cobra.NoArgs,
	RunE:  runDetectAgents,
}

func init() {
	detectCmd.PersistentFlags().BoolVar(&detectJSON, "json", false, "print JSON")
	detectAgentsCmd.Flags().BoolVar(&detectWSL, "wsl", false, "also probe agents inside WSL (Windows only)")
	detectCmd.AddCommand(detectAppsCmd, detectAgentsCmd)
	rootCmd.AddCommand(detectCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runDetectApps(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}

	snap := comps.apps.Detect(cmd.Context())
	if detectJSON {
		return printJSON(snap.Apps)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIDENTIFIER\tCATEGORY\tPATH")
	for _, app := range snap.Apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.Name, app.Identifier, app.Category, app.ExecutablePath)
	}
	return w.Flush()
}

func runDetectAgents(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}

	status := comps.agents.DetectAll(cmd.Context(), comps.custom.Get(), agentdetector.DetectOptions{IncludeWSL: detectWSL})
	if detectJSON {
		return printJSON(status)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tINSTALLED\tVERSION\tENVIRONMENT")
	for _, a := range status.Agents {
		version := a.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", a.ID, a.Name, a.Installed, version, a.Environment)
	}
	return w.Flush()
}
