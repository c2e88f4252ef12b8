package proxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a:1\n"), 0o644))

	r := NewRotator("http://a:1")
	w, err := NewWatcher(path, r, nil)
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("http://b:2\nhttp://c:3\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(r.List()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"http://b:2", "http://c:3"}, r.List())
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a:1\n"), 0o644))

	r := NewRotator("http://a:1")
	w, err := NewWatcher(path, r, nil)
	require.NoError(t, err)
	w.debounceDur = time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("http://z:9\n"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 0, w.Reloads())
	assert.Equal(t, []string{"http://a:1"}, r.List())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	w, err := NewWatcher(path, NewRotator(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
