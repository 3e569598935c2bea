package gitexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blamescope/blamescope/internal/blamerr"
)

// initRepo creates a real repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	run("add", "main.go")
	run("commit", "-m", "initial commit")
	return dir
}

func TestGateway_RunCapturesStdout(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)

	res, err := g.Run(context.Background(), []string{"rev-parse", "--is-inside-work-tree"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	require.Len(t, res.StdoutLines, 1)
	assert.Equal(t, "true", res.StdoutLines[0])
}

func TestGateway_NonZeroExitIsDataNotError(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)

	res, err := g.Run(context.Background(), []string{"cat-file", "-e", "HEAD:nonexistent.go"}, nil)
	require.NoError(t, err, "a failed git command is a result, not a spawn error")
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestGateway_MissingBinaryIsError(t *testing.T) {
	g := NewGateway("definitely-not-a-real-binary", t.TempDir(), 0, 0, nil)

	_, err := g.Run(context.Background(), []string{"status"}, nil)
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindToolExecutionFailed))
}

func TestGateway_StdinFeedsSubprocess(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)

	res, err := g.Run(context.Background(), []string{"hash-object", "--stdin"}, []byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	require.Len(t, res.StdoutLines, 1)
	assert.Len(t, res.StdoutLines[0], 40)
}

func TestGateway_GoDeliversAsync(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)

	async := <-g.Go(context.Background(), []string{"rev-parse", "HEAD"}, nil)
	require.NoError(t, async.Err)
	assert.Equal(t, 0, async.Result.ExitCode)
	require.Len(t, async.Result.StdoutLines, 1)
	assert.Len(t, async.Result.StdoutLines[0], 40)
}

func TestIsRepository(t *testing.T) {
	dir := initRepo(t)

	assert.NoError(t, IsRepository(context.Background(), NewGateway("git", dir, 0, 0, nil)))

	err := IsRepository(context.Background(), NewGateway("git", t.TempDir(), 0, 0, nil))
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindNotARepository))
}

func TestHeadAndResolveRevision(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)
	ctx := context.Background()

	head, err := Head(ctx, g)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	resolved, err := ResolveRevision(ctx, g, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, resolved)

	_, err = ResolveRevision(ctx, g, "no-such-ref")
	require.Error(t, err)
}

func TestFileExistsAt(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)
	ctx := context.Background()

	exists, err := FileExistsAt(ctx, g, "HEAD", "main.go")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExistsAt(ctx, g, "HEAD", "missing.go")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestShowFile(t *testing.T) {
	dir := initRepo(t)
	g := NewGateway("git", dir, 0, 0, nil)
	ctx := context.Background()

	lines, err := ShowFile(ctx, g, "HEAD", "main.go")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "package main", lines[0])

	_, err = ShowFile(ctx, g, "HEAD", "missing.go")
	require.Error(t, err)
	assert.True(t, blamerr.IsKind(err, blamerr.KindPathNotFound))
}
