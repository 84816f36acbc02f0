package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fedaidash/internal/blob/core"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetHead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	info, err := s.Put(ctx, "exports/agencies/a.csv", strings.NewReader("a,b\n"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"rows": "1"}})
	require.NoError(t, err)
	require.Equal(t, int64(4), info.Size)
	require.NotEmpty(t, info.ETag)

	head, err := s.Head(ctx, "exports/agencies/a.csv")
	require.NoError(t, err)
	require.Equal(t, info.ETag, head.ETag)
	require.Equal(t, "1", head.Metadata["rows"])

	got, rc, err := s.Get(ctx, "exports/agencies/a.csv")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(body))
	require.Equal(t, "text/csv", got.ContentType)
}

func TestPutRejectsExistingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Put(ctx, "k", strings.NewReader("1"), core.PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", strings.NewReader("2"), core.PutOptions{})
	require.True(t, errors.Is(err, core.ErrExists), "got %v", err)

	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "x.meta"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), core.PutOptions{})
		require.Error(t, err, "key %q", key)
	}
}

func TestMissingBlob(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Head(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	ok, err := s.Delete(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, key := range []string{"backups/2/a.json.gz", "backups/1/b.json.gz", "backups/1/a.json.gz", "exports/x.csv"} {
		_, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{})
		require.NoError(t, err)
	}
	infos, err := s.List(ctx, "backups/1/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "backups/1/a.json.gz", infos[0].Key)
	require.Equal(t, "backups/1/b.json.gz", infos[1].Key)

	ok, err := s.Delete(ctx, "backups/1/a.json.gz")
	require.NoError(t, err)
	require.True(t, ok)
	infos, err = s.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	link, err := s.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "file://"), link)
	_, err = s.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{Method: "PUT"})
	require.ErrorIs(t, err, core.ErrUnsupported)
}
