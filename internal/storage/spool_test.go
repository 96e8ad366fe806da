package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpool(t *testing.T) {
	t.Run("creates the base directory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "spool")
		spool, err := NewSpool(base)
		require.NoError(t, err)
		require.NotNil(t, spool)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestSpoolHealth(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, spool.Health(context.Background()))
}

func TestSpoolSave(t *testing.T) {
	t.Run("writes content and keeps the extension", func(t *testing.T) {
		spool, err := NewSpool(t.TempDir())
		require.NoError(t, err)

		path, cleanup, err := spool.Save(context.Background(), "receipt.PNG", strings.NewReader("image bytes"))
		require.NoError(t, err)
		require.NotNil(t, cleanup)

		assert.Equal(t, ".png", filepath.Ext(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "image bytes", string(data))

		cleanup()
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("unique filenames for identical originals", func(t *testing.T) {
		spool, err := NewSpool(t.TempDir())
		require.NoError(t, err)

		p1, c1, err := spool.Save(context.Background(), "scan.jpg", strings.NewReader("a"))
		require.NoError(t, err)
		defer c1()

		p2, c2, err := spool.Save(context.Background(), "scan.jpg", strings.NewReader("b"))
		require.NoError(t, err)
		defer c2()

		assert.NotEqual(t, p1, p2)
	})

	t.Run("cleanup tolerates an already-removed file", func(t *testing.T) {
		spool, err := NewSpool(t.TempDir())
		require.NoError(t, err)

		path, cleanup, err := spool.Save(context.Background(), "x.jpg", strings.NewReader("z"))
		require.NoError(t, err)

		require.NoError(t, os.Remove(path))
		cleanup() // must not panic
	})
}
