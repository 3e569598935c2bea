package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blamescope/blamescope/internal/blamerr"
	"github.com/blamescope/blamescope/internal/gitexec"
	"github.com/blamescope/blamescope/internal/resolve"
)

const (
	headA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	headB   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	histRev = "cccccccccccccccccccccccccccccccccccccccc"
)

var workingReport = []string{
	headA + " 1 1 2",
	"author Alice",
	"author-time 1700000000",
	"author-tz +0000",
	"summary Fix bug",
	"filename main.go",
}

// fakeGit serves a minimal scripted repository. blameCalls counts only
// blame invocations so cache idempotence is observable; the counter is
// mutex-guarded because pre-warm runs on its own goroutine.
type fakeGit struct {
	mu         sync.Mutex
	head       string
	blameCalls int
	blameRes   gitexec.Result
	showLines  []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		head:      headA,
		blameRes:  gitexec.Result{StdoutLines: workingReport},
		showLines: []string{"package main", "func main() {}"},
	}
}

func (f *fakeGit) blameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blameCalls
}

func (f *fakeGit) Run(ctx context.Context, args []string, stdin []byte) (gitexec.Result, error) {
	switch args[0] {
	case "blame":
		f.mu.Lock()
		f.blameCalls++
		res := f.blameRes
		f.mu.Unlock()
		return res, nil
	case "rev-parse":
		if len(args) > 1 && args[1] == "--verify" {
			rev := strings.TrimSuffix(args[2], "^{commit}")
			return gitexec.Result{StdoutLines: []string{rev}}, nil
		}
		return gitexec.Result{StdoutLines: []string{f.head}}, nil
	case "cat-file":
		return gitexec.Result{}, nil
	case "show":
		return gitexec.Result{StdoutLines: f.showLines}, nil
	case "merge-base":
		return gitexec.Result{}, nil
	case "log":
		return gitexec.Result{}, nil
	}
	return gitexec.Result{ExitCode: 128, StderrLines: []string{"fatal: unscripted"}}, nil
}

func newTestEngine(t *testing.T, git gitexec.Runner) *Engine {
	t.Helper()
	e := NewEngine(Config{AttributionCapacity: 4, ContentCapacity: 4}, git, resolve.NewResolver(git, nil), nil)
	base := time.Unix(1700000000, 0)
	e.statFn = func(path string) (time.Time, error) { return base, nil }
	return e
}

func TestGetAttribution_SecondCallServedFromCache(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	first, err := e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Alice", first[0].Author)

	second, err := e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, git.blameCount(), "second call must not reach git blame")
}

func TestGetAttribution_NewerMtimeForcesRefetch(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)

	// The file changed on disk after the entry was cached.
	e.statFn = func(path string) (time.Time, error) {
		return time.Unix(1700000500, 0), nil
	}

	_, err = e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, git.blameCount(), "stale mtime must force a refetch")
}

func TestGetAttribution_HeadMoveForcesRefetch(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)

	// A commit or branch switch moved HEAD; the mtime is unchanged.
	git.head = headB

	_, err = e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, git.blameCount(), "moved HEAD must force a refetch")
}

func TestGetAttribution_HistoricalEntriesNeverRevalidate(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "main.go", histRev, nil)
	require.NoError(t, err)

	// Neither trigger matters for a revision-addressed entry.
	git.head = headB
	e.statFn = func(path string) (time.Time, error) {
		return time.Unix(1800000000, 0), nil
	}

	_, err = e.GetAttribution(ctx, "main.go", histRev, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, git.blameCount())
}

func TestGetAttribution_FailuresNotCached(t *testing.T) {
	git := newFakeGit()
	git.blameRes = gitexec.Result{ExitCode: 128, StderrLines: []string{"fatal: no such path 'gone.go' in HEAD: does not exist"}}
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "gone.go", "", nil)
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindPathNotFound))

	// The file appears; the engine must retry instead of replaying the failure.
	git.blameRes = gitexec.Result{StdoutLines: workingReport}
	records, err := e.GetAttribution(ctx, "gone.go", "", nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, git.blameCount())
}

func TestGetAttribution_GarbageReportIsParseAnomaly(t *testing.T) {
	git := newFakeGit()
	git.blameRes = gitexec.Result{StdoutLines: []string{"this is not", "a blame report"}}
	e := newTestEngine(t, git)

	_, err := e.GetAttribution(context.Background(), "main.go", "", nil)
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindParseAnomaly))
}

func TestGetAttribution_WorkingContentSentOnStdin(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	content := []string{"line one", "line two"}
	_, err := e.GetAttribution(ctx, "main.go", "", content)
	require.NoError(t, err)
	assert.Equal(t, 1, git.blameCount())
}

func TestGetHistoricalContent_Cached(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	lines, err := e.GetHistoricalContent(ctx, "main.go", histRev)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	git.showLines = []string{"mutated"}
	again, err := e.GetHistoricalContent(ctx, "main.go", histRev)
	require.NoError(t, err)
	assert.Equal(t, lines, again, "content entries are immutable")
}

func TestClearForPath_PrefixIsExact(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "a.go", "", nil)
	require.NoError(t, err)
	_, err = e.GetAttribution(ctx, "a.go", histRev, nil)
	require.NoError(t, err)
	_, err = e.GetAttribution(ctx, "a.go.bak", "", nil)
	require.NoError(t, err)

	e.ClearForPath("a.go")

	stats := e.CacheStats()
	assert.Equal(t, 1, stats.AttributionCount, "only the a.go.bak entry survives")

	_, err = e.GetAttribution(ctx, "a.go.bak", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, git.blameCount(), "a.go.bak must still be cached")
}

func TestClear_EmptiesBothStores(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	_, err := e.GetAttribution(ctx, "main.go", "", nil)
	require.NoError(t, err)
	_, err = e.GetHistoricalContent(ctx, "main.go", histRev)
	require.NoError(t, err)

	e.Clear()

	stats := e.CacheStats()
	assert.Equal(t, 0, stats.AttributionCount)
	assert.Equal(t, 0, stats.ContentCount)
}

// asyncFakeGit adds the gateway's background invocation surface so
// pre-warm exercises the async path.
type asyncFakeGit struct {
	*fakeGit
}

func (a *asyncFakeGit) Go(ctx context.Context, args []string, stdin []byte) <-chan gitexec.Async {
	ch := make(chan gitexec.Async, 1)
	res, err := a.Run(ctx, args, stdin)
	ch <- gitexec.Async{Result: res, Err: err}
	return ch
}

func TestPrewarm_CachesResultOnArrival(t *testing.T) {
	git := &asyncFakeGit{newFakeGit()}
	e := newTestEngine(t, git)
	ctx := context.Background()

	e.Prewarm(ctx, "main.go", histRev)

	require.Eventually(t, func() bool {
		return e.CacheStats().AttributionCount == 1
	}, time.Second, time.Millisecond)

	records, err := e.GetAttribution(ctx, "main.go", histRev, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, git.blameCount(), "warmed entry must be served without a new blame")
}

func TestPrewarm_GarbageReportNotCached(t *testing.T) {
	git := &asyncFakeGit{newFakeGit()}
	git.blameRes = gitexec.Result{StdoutLines: []string{"this is not", "a blame report"}}
	e := newTestEngine(t, git)
	ctx := context.Background()

	e.Prewarm(ctx, "main.go", histRev)

	require.Eventually(t, func() bool {
		return git.blameCount() == 1
	}, time.Second, time.Millisecond)

	// The poisoned report must not be served: a real lookup reaches
	// git again and surfaces the anomaly instead of empty records.
	_, err := e.GetAttribution(ctx, "main.go", histRev, nil)
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindParseAnomaly))
	assert.Equal(t, 2, git.blameCount())
	assert.Equal(t, 0, e.CacheStats().AttributionCount)
}

func TestPrewarm_FailedBlameNotCached(t *testing.T) {
	git := &asyncFakeGit{newFakeGit()}
	git.blameRes = gitexec.Result{ExitCode: 128, StderrLines: []string{"fatal: bad revision"}}
	e := newTestEngine(t, git)
	ctx := context.Background()

	e.Prewarm(ctx, "main.go", histRev)

	require.Eventually(t, func() bool {
		return git.blameCount() == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, e.CacheStats().AttributionCount)
}

func TestPrewarm_SyncOnlyRunnerStillWarms(t *testing.T) {
	git := newFakeGit()
	e := newTestEngine(t, git)
	ctx := context.Background()

	// A runner without the async surface falls back to a plain
	// background fetch through the validated sync path.
	e.Prewarm(ctx, "main.go", histRev)

	require.Eventually(t, func() bool {
		return e.CacheStats().AttributionCount == 1
	}, time.Second, time.Millisecond)

	_, err := e.GetAttribution(ctx, "main.go", histRev, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, git.blameCount())
}

func TestAttributionKey(t *testing.T) {
	assert.Equal(t, "main.go:working-copy", AttributionKey("main.go", ""))
	assert.Equal(t, "main.go:"+histRev, AttributionKey("main.go", histRev))
}
