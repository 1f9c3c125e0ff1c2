package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDir(t *testing.T) {
	ctx := context.Background()

	runDir := filepath.Join(t.TempDir(), "run_abc_20260102_030405")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "screenshots"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "run.log"), []byte("log"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "trace.zip"), []byte("zip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "screenshots", "step_3_failure.png"), []byte("png"), 0644))

	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	keys, err := PublishDir(ctx, store, runDir, "runs/run_abc_20260102_030405")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Equal(t, "runs/run_abc_20260102_030405/trace.zip", keys[filepath.Join(runDir, "trace.zip")])
	assert.Equal(t, "runs/run_abc_20260102_030405/screenshots/step_3_failure.png", keys[filepath.Join(runDir, "screenshots", "step_3_failure.png")])

	for _, key := range keys {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestPublishDir_MissingDir(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = PublishDir(context.Background(), store, filepath.Join(t.TempDir(), "gone"), "runs/x")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Type: TypeNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(ctx, Config{Type: TypeLocal, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(ctx, Config{Type: TypeLocal})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: "gcs"})
	assert.Error(t, err)
}
