package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore(t *testing.T) {
	t.Run("missing file is an empty config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")

		store, err := NewFileStore(path)
		require.NoError(t, err)
		assert.Equal(t, path, store.Path())
		assert.False(t, store.IsModified())

		all, err := store.GetAll()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("default path", func(t *testing.T) {
		store, err := NewFileStore("")
		require.NoError(t, err)

		homeDir, _ := os.UserHomeDir()
		assert.Equal(t, filepath.Join(homeDir, ".snare", "config.yaml"), store.Path())
	})

	t.Run("loads existing yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `version: "1"
sections:
  downloads:
    strategy: folder
    timeout: 10s
  browser:
    headless: false
    max_capture_bytes: 1024
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		store, err := NewFileStore(path)
		require.NoError(t, err)

		downloads, err := store.GetSection("downloads")
		require.NoError(t, err)
		assert.Equal(t, "folder", downloads["strategy"])
		assert.Equal(t, "10s", downloads["timeout"])

		browser, err := store.GetSection("browser")
		require.NoError(t, err)
		assert.Equal(t, false, browser["headless"])
		assert.Equal(t, 1024, browser["max_capture_bytes"])
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0600))

		_, err := NewFileStore(path)
		assert.NoError(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sections: [unterminated"), 0600))

		_, err := NewFileStore(path)
		assert.Error(t, err)
	})
}

func TestFileStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection("downloads", map[string]any{"strategy": "proxy", "timeout": "5s"}))
	assert.True(t, store.IsModified())

	require.NoError(t, store.Save())
	assert.False(t, store.IsModified())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a save")

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	downloads, err := reloaded.GetSection("downloads")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"strategy": "proxy", "timeout": "5s"}, downloads)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	input := map[string]any{"k": "v"}
	require.NoError(t, store.SetSection("s", input))
	input["k"] = "changed"

	got, err := store.GetSection("s")
	require.NoError(t, err)
	assert.Equal(t, "v", got["k"])

	got["k"] = "mutated"
	all, err := store.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "v", all["s"]["k"])

	require.NoError(t, store.SetAll(map[string]map[string]any{"other": {"x": 1}}))
	all, err = store.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{"other": {"x": 1}}, all)
}
