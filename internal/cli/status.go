package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/config"
	"github.com/airule-dev/airule/internal/governance"
	"github.com/airule-dev/airule/internal/lockfile"
	"github.com/airule-dev/airule/internal/project"
	"github.com/airule-dev/airule/internal/source"
)

var statusOffline bool

func init() {
	statusCmd.Flags().BoolVar(&statusOffline, "offline", false, "Serve remote sources from the cache only")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report drift against the stored lockfile",
	Long: `Resolve the configured sources, recompute the lockfile hash triple, and
compare it against the lockfile written by the last sync. Nothing is
written.`,
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

		resolver := &source.Resolver{
			Fetcher: source.GitFetcher{},
			Cache:   source.NewDiskCache(filepath.Join(config.CacheDir(), "sources"), config.SourceCacheTTL()),
		}
		resolution, err := resolver.Resolve(context.Background(), cfg.ResolvedSources(cwd), source.Options{Offline: statusOffline})
		if err != nil {
			return err
		}
		for _, w := range resolution.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}

		current, err := lockfile.Compute(resolution.Base, resolution.Overlay, resolution.Pack)
		if err != nil {
			return err
		}
		previous, err := lockfile.Load(filepath.Join(project.Dir(cwd), lockfile.FileName))
		if err != nil {
			return err
		}

		if previous == nil {
			fmt.Printf("No lockfile yet. Run '%s sync' to create one.\n", branding.CLIName())
			fmt.Printf("Result hash: %s\n", current.ResultHash)
			return nil
		}

		drift := lockfile.Classify(previous, current)
		switch drift {
		case lockfile.DriftNone:
			fmt.Println("In sync: content matches the lockfile.")
		case lockfile.DriftBase:
			fmt.Println("Base drift: upstream/base rules changed since the last sync.")
		case lockfile.DriftOverlay:
			fmt.Println("Overlay drift: overlay rules changed since the last sync.")
		case lockfile.DriftInconsistent:
			fmt.Println("Inconsistent lockfile: result hash changed while base and overlay match. The lockfile may have been hand-edited; re-run sync to regenerate it.")
		}
		fmt.Printf("Result hash: %s\n", current.ResultHash)

		if cfg.Team {
			allowList, err := governance.Load(filepath.Join(project.Dir(cwd), governance.FileName))
			if err != nil {
				return err
			}
			if allowList.Contains(current.ResultHash) {
				fmt.Println("Allow list: approved.")
			} else {
				fmt.Printf("Allow list: NOT approved (run '%s approve' to approve).\n", branding.CLIName())
			}
		}
		return nil
	},
}
