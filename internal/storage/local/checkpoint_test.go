package local_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/storage/local"
)

func TestCheckpointStore(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is empty", func(t *testing.T) {
		store := local.NewCheckpointStore(filepath.Join(dir, "missing.txt"))
		cp, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, cp)
	})

	t.Run("malformed file is empty with error", func(t *testing.T) {
		path := filepath.Join(dir, "bad.txt")
		require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))
		cp, err := local.NewCheckpointStore(path).Load()
		require.Error(t, err)
		assert.NotNil(t, cp)
		assert.Empty(t, cp)
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(dir, "state", "stop_urls.txt")
		store := local.NewCheckpointStore(path)
		want := crawler.Checkpoint{
			"shop.example":  {"https://shop.example/p5", "https://shop.example/p4"},
			"other.example": {"https://other.example/x"},
		}
		require.NoError(t, store.Save(want))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// #nosec G304 -- test reads from the controlled temp directory.
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "\n  \"other.example\": [\n    \"https://other.example/x\"\n  ]")
	})

	t.Run("null document", func(t *testing.T) {
		path := filepath.Join(dir, "null.txt")
		require.NoError(t, os.WriteFile(path, []byte("null"), 0o600))
		cp, err := local.NewCheckpointStore(path).Load()
		require.NoError(t, err)
		assert.NotNil(t, cp)
	})
}
