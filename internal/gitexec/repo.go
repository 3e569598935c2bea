package gitexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/blamescope/blamescope/internal/blamerr"
)

// Free helper functions for the read operations the resolver and cache
// engine need. All of them classify non-zero exits; none of them parse
// anything beyond trimming.

// IsRepository verifies the gateway's directory is inside a git work tree.
func IsRepository(ctx context.Context, r Runner) error {
	res, err := r.Run(ctx, []string{"rev-parse", "--is-inside-work-tree"}, nil)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return blamerr.NotARepository("not a git repository")
	}
	return nil
}

// Head returns the full hash of the current HEAD commit.
func Head(ctx context.Context, r Runner) (string, error) {
	res, err := r.Run(ctx, []string{"rev-parse", "HEAD"}, nil)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", Classify(res, "rev-parse HEAD failed")
	}
	return firstLine(res), nil
}

// ResolveRevision canonicalizes any revision expression (short hash,
// ref name, rev^ suffix) to a full commit hash, failing fast when the
// expression does not resolve.
func ResolveRevision(ctx context.Context, r Runner, revision string) (string, error) {
	res, err := r.Run(ctx, []string{"rev-parse", "--verify", revision + "^{commit}"}, nil)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", Classify(res, fmt.Sprintf("cannot resolve revision %q", revision))
	}
	return firstLine(res), nil
}

// ParentOf returns the full hash of the first parent of revision.
func ParentOf(ctx context.Context, r Runner, revision string) (string, error) {
	return ResolveRevision(ctx, r, revision+"^")
}

// FileExistsAt reports whether path exists in the tree at revision.
// A missing path is a normal false, not an error.
func FileExistsAt(ctx context.Context, r Runner, revision, path string) (bool, error) {
	res, err := r.Run(ctx, []string{"cat-file", "-e", revision + ":" + path}, nil)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// IsAncestor reports whether ancestor is an ancestor of descendant
// (inclusive: a commit is its own ancestor).
func IsAncestor(ctx context.Context, r Runner, ancestor, descendant string) (bool, error) {
	res, err := r.Run(ctx, []string{"merge-base", "--is-ancestor", ancestor, descendant}, nil)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// ShowFile returns the content of path at revision, one line per entry.
func ShowFile(ctx context.Context, r Runner, revision, path string) ([]string, error) {
	res, err := r.Run(ctx, []string{"show", revision + ":" + path}, nil)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		if MissingPathStderr(res.StderrLines) {
			return nil, blamerr.PathNotFound(path, revision)
		}
		return nil, Classify(res, fmt.Sprintf("git show %s:%s failed", revision, path))
	}
	return res.StdoutLines, nil
}

// Classify turns a non-zero git exit into the engine's taxonomy based
// on the stderr text git produced.
func Classify(res Result, message string) error {
	for _, line := range res.StderrLines {
		if strings.Contains(strings.ToLower(line), "not a git repository") {
			return blamerr.NotARepository(message)
		}
	}
	return blamerr.ToolExecutionFailed(message, res.StderrLines)
}

func MissingPathStderr(stderr []string) bool {
	for _, line := range stderr {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "does not exist") ||
			strings.Contains(lower, "exists on disk, but not in") ||
			strings.Contains(lower, "invalid object name") {
			return true
		}
	}
	return false
}

func firstLine(res Result) string {
	if len(res.StdoutLines) == 0 {
		return ""
	}
	return strings.TrimSpace(res.StdoutLines[0])
}
