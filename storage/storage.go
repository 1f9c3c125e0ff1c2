// Package storage publishes run artifacts (traces, screenshots, run logs) to
// a blob store so they outlive the executor's working directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a requested object does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a key is empty, absolute or escapes its root.
	ErrInvalidPath = errors.New("invalid path")
)

// BlobStorage stores artifacts under slash-separated keys.
type BlobStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns a location the artifact can be fetched from: a filesystem
	// path for local storage, a presigned URL for S3.
	URL(ctx context.Context, key string) (string, error)
}

const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Config selects and configures a backend.
type Config struct {
	// Type is none, local or s3.
	Type string

	// BaseDir is the root directory for local storage.
	BaseDir string

	S3Bucket string
	S3Region string

	// S3Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style
	// addressing is used when set.
	S3Endpoint string

	PresignExpiry time.Duration
}

// New builds the configured backend. Type none (or empty) returns a nil
// storage: artifacts then stay on the executor's disk.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeNone:
		return nil, nil
	case TypeLocal:
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)
	case TypeS3:
		s, err := NewS3Storage(ctx, S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PresignExpiry: cfg.PresignExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// cleanKey normalizes a key to slash form and rejects keys that are empty,
// absolute or climb out of the root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key cannot be empty", ErrInvalidPath)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: absolute keys not allowed", ErrInvalidPath)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}
	return cleaned, nil
}
