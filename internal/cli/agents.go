package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/detect"
	"github.com/airule-dev/airule/internal/exporter"
	"github.com/airule-dev/airule/internal/project"
)

func init() {
	rootCmd.AddCommand(agentsCmd)
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List known agent exporters and their status",
	Long: `List every registered exporter (builtin plus any custom adapters in the
project's exporters directory), its output files, and whether it is
configured for this project or detected on disk.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		registry := exporter.NewRegistry()
		if err := registry.DiscoverDir(project.ExportersDir(cwd)); err != nil {
			return err
		}
		for _, w := range registry.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}

		var configured []string
		if cfg, err := project.Load(cwd); err == nil {
			configured = cfg.Exporters
		}
		detected := detect.Agents(cwd, registry)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tOUTPUTS\tROUND-TRIP\tSTATUS")
		for _, name := range registry.Names() {
			adapter, _ := registry.Get(name)

			roundTrip := "export-only"
			if adapter.Importer() != nil {
				roundTrip = "two-way"
			}

			var status []string
			if slices.Contains(configured, name) {
				status = append(status, "configured")
			}
			if slices.Contains(detected, name) {
				status = append(status, "detected")
			}
			if len(status) == 0 {
				status = append(status, "-")
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				name,
				strings.Join(adapter.Manifest.Outputs, ", "),
				roundTrip,
				strings.Join(status, ", "))
		}
		return w.Flush()
	},
}
