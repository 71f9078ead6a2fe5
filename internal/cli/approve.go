package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/governance"
	"github.com/airule-dev/airule/internal/lockfile"
	"github.com/airule-dev/airule/internal/project"
)

func init() {
	rootCmd.AddCommand(approveCmd)
}

var approveCmd = &cobra.Command{
	Use:   "approve [hash]",
	Short: "Approve a result hash for team-mode sync",
	Long: `Append a result hash (or explicit source identifier) to the project allow
list. With no argument, the result hash of the current lockfile is approved.

Example:
  ` + branding.CLIName() + ` approve
  ` + branding.CLIName() + ` approve sha256:4f2a...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		entry := ""
		if len(args) == 1 {
			entry = args[0]
		} else {
			lf, err := lockfile.Load(filepath.Join(project.Dir(cwd), lockfile.FileName))
			if err != nil {
				return err
			}
			if lf == nil {
				return usagef("no lockfile yet: run '%s sync --dry-run' first, or pass the hash explicitly", branding.CLIName())
			}
			entry = lf.ResultHash
		}

		allowList, err := governance.Load(filepath.Join(project.Dir(cwd), governance.FileName))
		if err != nil {
			return err
		}
		if allowList.Contains(entry) {
			fmt.Printf("%s is already approved.\n", governance.Normalize(entry))
			return nil
		}
		if err := allowList.Approve(entry); err != nil {
			return err
		}
		fmt.Printf("Approved %s.\n", governance.Normalize(entry))
		return nil
	},
}

// terminalApprover prompts the operator when a strict gate hits an
// unapproved hash. It exists only at this outermost layer; the engine
// default denies without prompting.
type terminalApprover struct {
	in  io.Reader
	out io.Writer
}

func (a *terminalApprover) Approve(resultHash string) (bool, error) {
	fmt.Fprintf(a.out, "Result hash %s is not in the allow list.\n", governance.Normalize(resultHash))
	fmt.Fprintf(a.out, "Approve it and continue? [y/N]: ")

	reader := bufio.NewReader(a.in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
