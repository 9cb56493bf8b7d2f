package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Put(ctx, "https://cdn.example.com/app.js.map", `{"version":3}`)
	require.NoError(t, err)
	assert.Equal(t, int64(13), a.Size)
	assert.Len(t, a.SHA256, 64)

	got, err := s.Get(ctx, "https://cdn.example.com/app.js.map")
	require.NoError(t, err)
	assert.Equal(t, `{"version":3}`, got.Content)
	assert.Equal(t, a.SHA256, got.SHA256)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPutReplaceKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	_, err := s.Put(ctx, "app.js.map", "one")
	require.NoError(t, err)

	s.now = func() time.Time { return first.Add(time.Hour) }
	a, err := s.Put(ctx, "app.js.map", "three")
	require.NoError(t, err)
	assert.True(t, a.CreatedAt.Equal(first))
	assert.True(t, a.UpdatedAt.Equal(first.Add(time.Hour)))

	got, err := s.Get(ctx, "app.js.map")
	require.NoError(t, err)
	assert.Equal(t, "three", got.Content)
	assert.Equal(t, int64(5), got.Size)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, p := range []string{"b/app.js.map", "a/app.js.map", "a/vendor.js.map"} {
		_, err := s.Put(ctx, p, "{}")
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a/app.js.map", all[0].Path)
	assert.Empty(t, all[0].Content)

	scoped, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	require.NoError(t, s.Delete(ctx, "a/app.js.map"))
	assert.True(t, errors.Is(s.Delete(ctx, "a/app.js.map"), ErrNotFound))

	all, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListPrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, p := range []string{"a_b/x.map", "axb/x.map", "A/app.js.map", "a/app.js.map", "100%/x.map", "1000/x.map"} {
		_, err := s.Put(ctx, p, "{}")
		require.NoError(t, err)
	}

	paths := func(prefix string) []string {
		list, err := s.List(ctx, prefix)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Path)
		}
		return out
	}

	assert.Equal(t, []string{"a_b/x.map"}, paths("a_"))
	assert.Equal(t, []string{"A/app.js.map"}, paths("A/"))
	assert.Equal(t, []string{"100%/x.map"}, paths("100%"))
	assert.Empty(t, paths("b/"))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
