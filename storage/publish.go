package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// PublishDir uploads every regular file under dir to prefix/<relative path>
// and returns the key each local path was stored under.
func PublishDir(ctx context.Context, store BlobStorage, dir, prefix string) (map[string]string, error) {
	keys := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := store.Upload(ctx, key, f); err != nil {
			return err
		}
		keys[p] = key
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("failed to publish %s: %w", dir, err)
	}
	return keys, nil
}
