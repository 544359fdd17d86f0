package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mblakley/soccer-cam/internal/daemonctl"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools the pipeline needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := daemonctl.ResolveDependencies(ctx.configValue())
			summary := daemonctl.BuildDependencySummary(deps)
			if asJSON {
				return writeJSON(cmd, struct {
					Summary      any `json:"summary"`
					Dependencies any `json:"dependencies"`
				}{summary, deps})
			}
			rows := make([][]string, 0, len(deps))
			for _, dep := range deps {
				detail := dep.Detail
				if dep.Available && detail == "" {
					detail = "ready"
				}
				version := dep.Version
				if version == "" {
					version = "-"
				}
				rows = append(rows, []string{dep.Name, dep.Command, version, yesNo(dep.Available), yesNo(dep.Optional), detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Dependency", "Command", "Version", "Available", "Optional", "Detail"}, rows, nil))
			fmt.Fprintln(out, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, shouldColorize(out)))
			if summary.MissingRequired > 0 {
				return fmt.Errorf("%d required dependencies missing", summary.MissingRequired)
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}
