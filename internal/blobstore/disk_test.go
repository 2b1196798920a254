package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskPutGetRoundTrip(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), strings.NewReader("receipt bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	ok, err := store.Exists(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "receipt bytes", string(data))
}

func TestDiskUnknownRef(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "no-such-ref")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(context.Background(), "no-such-ref")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskRejectsTraversalRefs(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../etc/passwd", `..\secret`, "a/b"} {
		_, err := store.Get(context.Background(), ref)
		assert.ErrorIs(t, err, ErrNotFound, ref)
	}
}
