// Package resolve tracks a file across renames so historical lookups
// target the path the file actually had at an older revision.
package resolve

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blamescope/blamescope/internal/blamerr"
	"github.com/blamescope/blamescope/internal/gitexec"
)

// RenameEdge records that a path changed names at a revision.
// Edges are derived per query and never cached: they are cheap to
// regenerate and caching them would go stale across history rewrites.
type RenameEdge struct {
	Revision string
	OldPath  string
	NewPath  string
}

// Resolver answers "what was this file called at that revision".
type Resolver struct {
	runner gitexec.Runner
	logger *logrus.Logger
}

// NewResolver creates a resolver over the given runner.
func NewResolver(runner gitexec.Runner, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{runner: runner, logger: logger}
}

// Resolve returns the path the file had at revision, following renames
// backward from the current name. A file that did not exist yet at the
// revision comes back as KindPathNotFound - a normal outcome for the
// caller to message, not an exceptional one.
func (r *Resolver) Resolve(ctx context.Context, path, revision string) (string, error) {
	// Fail fast on an unresolvable revision before doing any tree work.
	canonical, err := gitexec.ResolveRevision(ctx, r.runner, revision)
	if err != nil {
		return "", err
	}

	// Common case: the path is unchanged at the target revision.
	exists, err := gitexec.FileExistsAt(ctx, r.runner, canonical, path)
	if err != nil {
		return "", err
	}
	if exists {
		return path, nil
	}

	edges, err := r.renameEdges(ctx, path)
	if err != nil {
		return "", err
	}

	// Walk rename edges backward: whenever an edge renamed something
	// into the current candidate at a commit strictly after the target
	// revision, the file was still under the old name back then. The
	// hop count is bounded by the edge count so malformed or cyclic
	// rename data cannot loop forever.
	candidate := path
	for hop := 0; hop < len(edges); hop++ {
		next, found, err := r.hop(ctx, edges, candidate, canonical)
		if err != nil {
			return "", err
		}
		if !found {
			break
		}
		candidate = next
	}

	exists, err = gitexec.FileExistsAt(ctx, r.runner, canonical, candidate)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", blamerr.PathNotFound(path, revision)
	}
	return candidate, nil
}

// hop finds one applicable rename edge for the current candidate.
func (r *Resolver) hop(ctx context.Context, edges []RenameEdge, candidate, target string) (string, bool, error) {
	for _, edge := range edges {
		if edge.NewPath != candidate || edge.Revision == target {
			continue
		}
		// The edge applies only when the target predates the rename,
		// i.e. the target is a strict ancestor of the rename commit.
		ancestor, err := gitexec.IsAncestor(ctx, r.runner, target, edge.Revision)
		if err != nil {
			return "", false, err
		}
		if !ancestor {
			continue
		}
		return edge.OldPath, true, nil
	}
	return "", false, nil
}

// renameEdges queries the rename history of path. Output order is
// whatever git returns; the parser takes no position on it.
func (r *Resolver) renameEdges(ctx context.Context, path string) ([]RenameEdge, error) {
	res, err := r.runner.Run(ctx, []string{
		"log", "--follow", "--diff-filter=R", "--name-status",
		"--pretty=format:%H", "--", path,
	}, nil)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, blamerr.ToolExecutionFailed("rename history query failed", res.StderrLines)
	}
	return ParseRenameReport(res.StdoutLines), nil
}

// ParseRenameReport parses alternating lines of a bare revision and
// "R<score>\t<old>\t<new>". The format is parsed defensively: lines
// that fit neither shape are skipped, and a rename line without a
// preceding revision is dropped.
func ParseRenameReport(lines []string) []RenameEdge {
	var edges []RenameEdge
	var revision string

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "R") {
			fields := strings.Split(line, "\t")
			if len(fields) != 3 || revision == "" {
				continue
			}
			edges = append(edges, RenameEdge{
				Revision: revision,
				OldPath:  fields[1],
				NewPath:  fields[2],
			})
			continue
		}
		if isHexRevision(line) {
			revision = line
		}
	}
	return edges
}

func isHexRevision(s string) bool {
	if len(s) < 7 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
