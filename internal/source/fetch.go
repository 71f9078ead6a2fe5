package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Fetcher is the injected network capability for remote sources. It
// materializes the source at url/ref into a local directory and reports the
// commit it resolved to. cleanup removes the checkout when the resolver is
// done with it.
type Fetcher interface {
	Fetch(ctx context.Context, url, ref string) (dir string, commitSHA string, cleanup func(), err error)
}

// GitFetcher fetches sources with the system git binary via shallow clones.
type GitFetcher struct{}

// Fetch performs a shallow clone of url (optionally at ref) into a
// temporary directory and resolves the checked-out commit.
func (GitFetcher) Fetch(ctx context.Context, url, ref string) (string, string, func(), error) {
	if err := ensureGit(); err != nil {
		return "", "", nil, err
	}

	tmpDir, err := os.MkdirTemp("", "airule-source-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("creating checkout directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	args := []string{"clone", "--depth=1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, tmpDir)

	cmd := exec.CommandContext(ctx, "git", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("cloning %s: %w\n%s", url, err, strings.TrimSpace(string(output)))
	}

	sha, err := headCommit(ctx, tmpDir)
	if err != nil {
		cleanup()
		return "", "", nil, err
	}

	return tmpDir, sha, cleanup, nil
}

func headCommit(ctx context.Context, repoDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD commit: %w\n%s", err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// ensureGit checks that git is available on PATH.
func ensureGit() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git is required but not found in PATH")
	}
	return nil
}
