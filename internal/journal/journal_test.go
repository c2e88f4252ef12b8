package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cronos/internal/messaging"
	"cronos/internal/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cronos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSend_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	want := messaging.Result{
		ID:         "send-1",
		Session:    "5511",
		To:         "Alice",
		Kinds:      []string{"image", "text"},
		Success:    false,
		Step:       messaging.StepText,
		Error:      "text: boom",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
	require.NoError(t, s.RecordSend(ctx, want))

	got, err := s.RecentSends(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	timeEqual := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got[0], timeEqual); diff != "" {
		t.Errorf("send mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentSends_NewestFirstAndFiltered(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "a"} {
		require.NoError(t, s.RecordSend(ctx, messaging.Result{
			ID:         id + string(rune('0'+i)),
			Session:    id,
			To:         "Alice",
			Success:    true,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.RecentSends(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ID)
	assert.Equal(t, "b1", all[1].ID)

	onlyA, err := s.RecentSends(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, []string{"a2", "a0"}, []string{onlyA[0].ID, onlyA[1].ID})
}

func TestRecordLogin(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordLogin(ctx, "5511", session.Pending("/qr/5511_qr_code.png")))
	require.NoError(t, s.RecordLogin(ctx, "5511", session.Authenticated()))
	require.NoError(t, s.RecordLogin(ctx, "other", session.Failed(session.ErrQRCapture)))

	logins, err := s.RecentLogins(ctx, "5511", 10)
	require.NoError(t, err)
	require.Len(t, logins, 2)
	assert.Equal(t, session.Authenticated(), logins[0].Status)
	assert.Equal(t, session.Pending("/qr/5511_qr_code.png"), logins[1].Status)
	assert.False(t, logins[0].ObservedAt.IsZero())
}

func TestOpen_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cronos.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordLogin(context.Background(), "5511", session.Authenticated()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	logins, err := s.RecentLogins(context.Background(), "5511", 1)
	require.NoError(t, err)
	assert.Len(t, logins, 1)
	assert.Equal(t, path, s.Path())
}
