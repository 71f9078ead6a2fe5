package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/detect"
	"github.com/airule-dev/airule/internal/exporter"
	"github.com/airule-dev/airule/internal/project"
)

var (
	initAgents string
	initDetect bool
)

func init() {
	initCmd.Flags().StringVar(&initAgents, "agents", "", "Comma-separated list of agent exporters to enable")
	initCmd.Flags().BoolVar(&initDetect, "detect", true, "Enable agents whose config files already exist in the project")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a project",
	Long: `Create the ` + branding.ProjectDir() + `/ directory with a starter config and canonical
rule document.

With --agents, the listed exporters are enabled. Otherwise, agents whose
config files already exist in the project are enabled automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		configPath := project.ConfigPath(cwd)
		if _, err := os.Stat(configPath); err == nil {
			return usagef("project already initialized: %s exists", configPath)
		}

		exporters := parseAgentsList(initAgents)
		registry := exporter.NewRegistry()
		if len(exporters) == 0 && initDetect {
			exporters = detect.Agents(cwd, registry)
		}
		for _, name := range exporters {
			if _, ok := registry.Get(name); !ok {
				return usagef("unknown exporter %q (available: %s)", name, strings.Join(registry.Names(), ", "))
			}
		}

		if err := project.Init(cwd, exporters); err != nil {
			return fmt.Errorf("initializing project: %w", err)
		}

		fmt.Printf("Initialized project in %s\n", project.Dir(cwd))
		if len(exporters) > 0 {
			fmt.Printf("Enabled agents: %s\n", strings.Join(exporters, ", "))
		} else {
			fmt.Printf("No agents enabled yet. Run '%s agents' to see what is available.\n", branding.CLIName())
		}
		fmt.Printf("Edit %s, then run '%s sync'.\n", filepath.Join(branding.ProjectDir(), "rules.md"), branding.CLIName())
		return nil
	},
}

func parseAgentsList(s string) []string {
	parts := strings.Split(s, ",")
	agents := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			agents = append(agents, trimmed)
		}
	}
	return agents
}
