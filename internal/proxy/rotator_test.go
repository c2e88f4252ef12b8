package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotator_NextCyclesInInsertionOrder(t *testing.T) {
	r := NewRotator("a", "b", "a", " ", "c")

	var got []string
	for i := 0; i < 8; i++ {
		p, err := r.Next()
		require.NoError(t, err)
		got = append(got, p)
	}
	assert.Equal(t, []string{"a", "b", "a", "c", "a", "b", "a", "c"}, got)
}

func TestRotator_EmptyPool(t *testing.T) {
	r := NewRotator()

	_, err := r.Next()
	assert.True(t, errors.Is(err, ErrEmptyPool))
	_, err = r.Random()
	assert.True(t, errors.Is(err, ErrEmptyPool))
	_, err = r.Pick(RoundRobin)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestRotator_RandomUsesSource(t *testing.T) {
	r := NewRotator("a", "b", "c")
	r.rand = func(n int) int { return n - 1 }

	p, err := r.Random()
	require.NoError(t, err)
	assert.Equal(t, "c", p)

	// Random leaves the cursor alone
	next, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", next)
}

func TestRotator_RandomStaysInPool(t *testing.T) {
	r := NewRotator("a", "b", "c")
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		p, err := r.Pick(Random)
		require.NoError(t, err)
		seen[p] = true
	}
	for p := range seen {
		assert.Contains(t, []string{"a", "b", "c"}, p)
	}
}

func TestRotator_AddRemove(t *testing.T) {
	r := NewRotator()
	require.NoError(t, r.Add("a"))
	require.NoError(t, r.Add("b"))
	require.NoError(t, r.Add("a"))
	assert.ErrorIs(t, r.Add("  "), ErrInvalidProxy)

	assert.True(t, r.Remove("a"))
	assert.Equal(t, []string{"b", "a"}, r.List())
	assert.False(t, r.Remove("zzz"))
	assert.Equal(t, 2, r.Len())
}

func TestRotator_RemoveKeepsCursorOnNextEntry(t *testing.T) {
	tests := []struct {
		name   string
		remove string
		want   string
	}{
		{"before cursor", "a", "c"},
		{"at cursor", "c", "d"},
		{"after cursor", "d", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRotator("a", "b", "c", "d")
			_, _ = r.Next()
			_, _ = r.Next() // cursor now at "c"

			require.True(t, r.Remove(tt.remove))
			got, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRotator_RemoveLastWrapsCursor(t *testing.T) {
	r := NewRotator("a", "b")
	_, _ = r.Next() // cursor at "b"
	require.True(t, r.Remove("b"))

	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	require.True(t, r.Remove("a"))
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestRotator_Replace(t *testing.T) {
	r := NewRotator("a", "b")
	_, _ = r.Next()
	r.Replace([]string{"x", "", "y"})

	assert.Equal(t, []string{"x", "y"}, r.List())
	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, "Rotator(2 proxies, cursor=1)", r.String())
}

func TestRotator_ConcurrentNext(t *testing.T) {
	r := NewRotator("a", "b", "c")
	var wg sync.WaitGroup
	counts := make(chan string, 300)
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Next()
			if err == nil {
				counts <- p
			}
		}()
	}
	wg.Wait()
	close(counts)

	tally := map[string]int{}
	for p := range counts {
		tally[p]++
	}
	assert.Equal(t, map[string]int{"a": 100, "b": 100, "c": 100}, tally)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# pool\nhttp://10.0.0.1:3128\n\n  socks5://10.0.0.2:1080  \n#http://disabled:1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://10.0.0.1:3128", "socks5://10.0.0.2:1080"}, got)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, os.IsNotExist(err))
}
