package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/airule-dev/airule/internal/config"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// Exit codes: 0 success, 1 sync failure, 2 usage/config error.
const (
	exitOK    = 0
	exitSync  = 1
	exitUsage = 2
)

// usageError marks errors that should exit with code 2: bad flags, bad
// arguments, missing or malformed configuration.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps one canonical rule document per project and syncs it
into the native config files of every configured AI coding agent. Edits made
directly to agent files are pulled back into the canonical document on the
next sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()
	},
}

// Execute runs the root command with build info injected via ldflags and
// returns the process exit code.
func Execute(version, commit, date string) int {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitSync
}
