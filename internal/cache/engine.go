// Package cache is the engine's memory: two bounded LRU stores, one
// for attribution sequences and one for historical file contents,
// shared by every open session. Failures are never cached - a failed
// lookup is retried on next access instead of poisoning the store.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/blamescope/blamescope/internal/blame"
	"github.com/blamescope/blamescope/internal/blamerr"
	"github.com/blamescope/blamescope/internal/gitexec"
	"github.com/blamescope/blamescope/internal/lru"
	"github.com/blamescope/blamescope/internal/resolve"
)

// workingMarker is the key component standing in for "no revision".
// Unsaved content is never cached as file content, only as attribution,
// so only attribution keys carry it.
const workingMarker = "working-copy"

// Config sizes the two stores. Capacities are configuration, not
// policy: callers tune them to their file count and scroll patterns.
type Config struct {
	AttributionCapacity int
	ContentCapacity     int
	RepoPath            string
}

// freshness is the token a working-copy entry carries. Either signal
// changing on its own forces a miss: an external edit bumps the mtime
// without moving HEAD, and a branch switch can move HEAD without
// touching the file's mtime.
type freshness struct {
	mtime time.Time
	head  string
}

type attributionEntry struct {
	records []blame.LineAttribution
	token   *freshness // nil for immutable historical entries
}

// Engine owns both stores and composes the resolver, gateway, and
// parser on a miss. Construct one per process and pass it to every
// session; the stores are safe under concurrent sessions.
type Engine struct {
	cfg      Config
	runner   gitexec.Runner
	resolver *resolve.Resolver
	logger   *logrus.Logger

	attribution *lru.Store[attributionEntry]
	content     *lru.Store[[]string]
	group       singleflight.Group

	// statFn is swapped in tests to control observed mtimes.
	statFn func(path string) (time.Time, error)
}

// Stats reports occupancy and lifetime effectiveness of both stores.
type Stats struct {
	AttributionCount    int         `json:"attribution_count"`
	AttributionCapacity int         `json:"attribution_capacity"`
	ContentCount        int         `json:"content_count"`
	ContentCapacity     int         `json:"content_capacity"`
	Attribution         lru.Metrics `json:"attribution_metrics"`
	Content             lru.Metrics `json:"content_metrics"`
}

// NewEngine creates a cache engine over the given runner and resolver.
func NewEngine(cfg Config, runner gitexec.Runner, resolver *resolve.Resolver, logger *logrus.Logger) *Engine {
	if cfg.AttributionCapacity <= 0 {
		cfg.AttributionCapacity = 50
	}
	if cfg.ContentCapacity <= 0 {
		cfg.ContentCapacity = 100
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		cfg:         cfg,
		runner:      runner,
		resolver:    resolver,
		logger:      logger,
		attribution: lru.New[attributionEntry](cfg.AttributionCapacity),
		content:     lru.New[[]string](cfg.ContentCapacity),
		statFn: func(path string) (time.Time, error) {
			info, err := os.Stat(path)
			if err != nil {
				return time.Time{}, err
			}
			return info.ModTime(), nil
		},
	}
}

// AttributionKey builds the store key for (path, revision). An empty
// revision addresses the working copy.
func AttributionKey(path, revision string) string {
	if revision == "" {
		return path + ":" + workingMarker
	}
	return path + ":" + revision
}

// ContentKey builds the store key for historical file content.
func ContentKey(path, revision string) string {
	return path + ":" + revision
}

// GetAttribution returns the per-line attribution of path at revision
// (empty revision = working copy, optionally blaming the unsaved
// workingContent instead of the on-disk file). Historical results are
// immutable and served from cache forever; working-copy results are
// revalidated against the live mtime and HEAD on every hit. Concurrent
// misses for one key collapse into a single git invocation.
func (e *Engine) GetAttribution(ctx context.Context, path, revision string, workingContent []string) ([]blame.LineAttribution, error) {
	key := AttributionKey(path, revision)
	if entry, ok := e.attribution.Get(key); ok {
		if entry.token == nil || e.fresh(ctx, path, entry.token) {
			return entry.records, nil
		}
		e.attribution.Remove(key)
		e.logger.WithField("key", key).Debug("working-copy entry went stale")
	}

	v, err, _ := e.group.Do("attr:"+key, func() (any, error) {
		records, err := e.fetchAttribution(ctx, path, revision, workingContent)
		if err != nil {
			return nil, err
		}
		e.store(ctx, path, revision, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]blame.LineAttribution), nil
}

// GetHistoricalContent returns the lines of path at revision. Content
// has no working-copy variant; revision-addressed content is immutable
// so entries are never validated.
func (e *Engine) GetHistoricalContent(ctx context.Context, path, revision string) ([]string, error) {
	key := ContentKey(path, revision)
	if lines, ok := e.content.Get(key); ok {
		return lines, nil
	}

	v, err, _ := e.group.Do("content:"+key, func() (any, error) {
		realPath, err := e.resolver.Resolve(ctx, path, revision)
		if err != nil {
			return nil, err
		}
		lines, err := gitexec.ShowFile(ctx, e.runner, revision, realPath)
		if err != nil {
			return nil, err
		}
		e.content.Set(key, lines)
		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Prewarm kicks off a background attribution fetch whose result is
// cached when it arrives and otherwise dropped. The subprocess runs
// through the gateway's rate-limited async path when available, so a
// scroll storm of pre-warms cannot fork-bomb the host.
func (e *Engine) Prewarm(ctx context.Context, path, revision string) {
	ar, ok := e.runner.(interface {
		Go(ctx context.Context, args []string, stdin []byte) <-chan gitexec.Async
	})
	if !ok {
		go func() {
			if _, err := e.GetAttribution(ctx, path, revision, nil); err != nil {
				e.logger.WithError(err).Debug("prewarm fetch failed")
			}
		}()
		return
	}

	go func() {
		target := path
		if revision != "" {
			resolved, err := e.resolver.Resolve(ctx, path, revision)
			if err != nil {
				e.logger.WithError(err).Debug("prewarm resolve failed")
				return
			}
			target = resolved
		}
		async := <-ar.Go(ctx, blameArgs(revision, target, nil), nil)
		if async.Err != nil {
			e.logger.WithField("path", path).Debug("prewarm blame failed")
			return
		}
		records, err := parseReport(path, revision, async.Result)
		if err != nil {
			e.logger.WithError(err).WithField("path", path).Debug("prewarm result discarded")
			return
		}
		e.store(ctx, path, revision, records)
	}()
}

// Clear empties both stores.
func (e *Engine) Clear() {
	e.attribution.Clear()
	e.content.Clear()
}

// ClearForPath removes every attribution and content entry for one
// path, leaving other paths untouched. Called when a file is saved,
// which invalidates its working-copy view but not anyone's history.
func (e *Engine) ClearForPath(path string) {
	prefix := path + ":"
	pred := func(key string) bool { return strings.HasPrefix(key, prefix) }
	e.attribution.ClearMatching(pred)
	e.content.ClearMatching(pred)
}

// CacheStats snapshots both stores.
func (e *Engine) CacheStats() Stats {
	return Stats{
		AttributionCount:    e.attribution.Len(),
		AttributionCapacity: e.attribution.Capacity(),
		ContentCount:        e.content.Len(),
		ContentCapacity:     e.content.Capacity(),
		Attribution:         e.attribution.Snapshot(),
		Content:             e.content.Snapshot(),
	}
}

// fresh revalidates a working-copy token against the live file and
// repository. The two triggers are independent, not fallbacks: either
// one changing alone means the cached view can no longer be trusted.
func (e *Engine) fresh(ctx context.Context, path string, token *freshness) bool {
	mtime, err := e.statFn(e.onDisk(path))
	if err != nil || mtime.After(token.mtime) {
		return false
	}
	head, err := gitexec.Head(ctx, e.runner)
	if err != nil || head != token.head {
		return false
	}
	return true
}

func (e *Engine) fetchAttribution(ctx context.Context, path, revision string, workingContent []string) ([]blame.LineAttribution, error) {
	target := path
	if revision != "" {
		resolved, err := e.resolver.Resolve(ctx, path, revision)
		if err != nil {
			return nil, err
		}
		target = resolved
	}

	var stdin []byte
	if revision == "" && workingContent != nil {
		stdin = []byte(strings.Join(workingContent, "\n") + "\n")
	}

	res, err := e.runner.Run(ctx, blameArgs(revision, target, stdin), stdin)
	if err != nil {
		return nil, err
	}
	return parseReport(path, revision, res)
}

// parseReport classifies a blame invocation's outcome and parses the
// report. Both the sync fetch and the async pre-warm go through it, so
// a failure can never reach the store from either path.
func parseReport(path, revision string, res gitexec.Result) ([]blame.LineAttribution, error) {
	if res.ExitCode != 0 {
		if gitexec.MissingPathStderr(res.StderrLines) {
			return nil, blamerr.PathNotFound(path, revision)
		}
		return nil, gitexec.Classify(res, "git blame failed for "+path)
	}

	records := blame.Parse(res.StdoutLines)
	if len(records) == 0 && len(res.StdoutLines) > 0 {
		// git produced output but none of it matched the report
		// grammar; surface that instead of caching an empty result.
		return nil, blamerr.Newf(blamerr.KindParseAnomaly,
			"attribution report for %s produced no records", path)
	}
	return records, nil
}

// store caches a fetched sequence, attaching a freshness token to
// working-copy entries. A stat failure (e.g. a buffer never written to
// disk) leaves a zero mtime; HEAD still guards the entry.
func (e *Engine) store(ctx context.Context, path, revision string, records []blame.LineAttribution) {
	entry := attributionEntry{records: records}
	if revision == "" {
		token := &freshness{}
		if mtime, err := e.statFn(e.onDisk(path)); err == nil {
			token.mtime = mtime
		}
		if head, err := gitexec.Head(ctx, e.runner); err == nil {
			token.head = head
		}
		entry.token = token
	}
	e.attribution.Set(AttributionKey(path, revision), entry)
}

func (e *Engine) onDisk(path string) string {
	if e.cfg.RepoPath == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.cfg.RepoPath, path)
}

func blameArgs(revision, path string, stdin []byte) []string {
	args := []string{"blame", "--incremental"}
	if revision != "" {
		args = append(args, revision)
	} else if stdin != nil {
		args = append(args, "--contents", "-")
	}
	return append(args, "--", path)
}
