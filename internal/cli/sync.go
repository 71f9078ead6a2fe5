package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/orchestrator"
	"github.com/airule-dev/airule/internal/project"
)

var (
	syncDryRun          bool
	syncForce           bool
	syncOffline         bool
	syncRefresh         bool
	syncAcceptFromAgent bool
	syncSkipDetection   bool
	syncAutoEnable      bool
	syncVerbose         bool
)

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Compute everything but write nothing")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Proceed past validation failures and the allow-list gate (always warned)")
	syncCmd.Flags().BoolVar(&syncOffline, "offline", false, "Serve remote sources from the cache only")
	syncCmd.Flags().BoolVar(&syncRefresh, "refresh", false, "Refetch remote sources even when the cache is fresh")
	syncCmd.Flags().BoolVar(&syncAcceptFromAgent, "accept-from-agent", true, "Merge edits made to agent files back into the canonical document")
	syncCmd.Flags().BoolVar(&syncSkipDetection, "skip-detection", false, "Skip the agent presence probe")
	syncCmd.Flags().BoolVar(&syncAutoEnable, "auto-enable", false, "Configure newly detected agents without prompting")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "Print the full audit trail")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the canonical rule document to every configured agent",
	Long: `Resolve the configured rule sources, pull back any edits made directly to
agent files since the last sync, and regenerate every configured agent's
native config file.

In team mode the resolved content must be approved (allow-listed) before it
syncs; see '` + branding.CLIName() + ` approve'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		cfg, err := project.Load(cwd)
		if err != nil {
			return usagef("no project config found: %v (run '%s init' first)", err, branding.CLIName())
		}

		runner := &orchestrator.Runner{
			ProjectPath: cwd,
			Config:      cfg,
		}
		if cfg.Team && !syncForce && stdinIsTerminal() {
			runner.Approver = &terminalApprover{in: os.Stdin, out: cmd.ErrOrStderr()}
		}

		result, runErr := runner.Run(cmd.Context(), orchestrator.Options{
			DryRun:          syncDryRun,
			Force:           syncForce,
			Offline:         syncOffline,
			ForceRefresh:    syncRefresh,
			AcceptFromAgent: syncAcceptFromAgent,
			SkipDetection:   syncSkipDetection,
			AutoEnable:      syncAutoEnable,
			Verbose:         syncVerbose,
		})
		printResult(cmd, result, syncDryRun, syncVerbose)
		if runErr != nil {
			return runErr
		}
		return nil
	},
}

func printResult(cmd *cobra.Command, result *orchestrator.SyncResult, dryRun, verbose bool) {
	if result == nil {
		return
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	for _, w := range result.Warnings {
		fmt.Fprintf(errOut, "Warning: %s\n", w)
	}

	for _, c := range result.Conflicts {
		fmt.Fprintf(errOut, "Conflict on %q: %d files edited it, kept %s\n", c.Heading, len(c.Files), c.Winner)
		for _, f := range c.Files {
			marker := " "
			if f.Path == c.Winner {
				marker = "*"
			}
			fmt.Fprintf(errOut, "  %s %s (modified %s)\n", marker, f.Path, f.Mtime.Format("2006-01-02 15:04:05"))
		}
	}

	verb := "Wrote"
	if dryRun {
		verb = "Would write"
	}
	for _, path := range result.Written {
		fmt.Fprintf(out, "%s %s\n", verb, path)
	}

	if verbose {
		for _, entry := range result.AuditTrail {
			fmt.Fprintf(out, "[%s] %s %s %s\n", entry.At.Format("15:04:05"), entry.Action, entry.Target, entry.Details)
		}
	}

	if result.Success {
		fmt.Fprintf(out, "Sync complete: %d files, %d warnings.\n", len(result.Written), len(result.Warnings))
	}
}

// stdinIsTerminal reports whether the process can prompt the operator.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
