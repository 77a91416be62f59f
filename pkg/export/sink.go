// Package export writes analysis reports to a local directory or an object store.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SinkType selects the export backend.
type SinkType string

const (
	SinkTypeFS  SinkType = "fs"
	SinkTypeGCS SinkType = "gcs"
)

// Sink stores named blobs and returns where each one ended up.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Close() error
}

// Config selects and configures a Sink.
type Config struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NewSink builds the sink named by cfg.Backend ("fs" when empty).
func NewSink(ctx context.Context, cfg Config) (Sink, error) {
	backend := SinkType(cfg.Backend)
	if backend == "" {
		backend = SinkTypeFS
	}

	switch backend {
	case SinkTypeFS:
		dir := cfg.OutputDir
		if dir == "" {
			dir = "output"
		}
		return NewFileSink(dir)
	case SinkTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("export bucket is required for GCS export")
		}
		return newGCSSink(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", backend)
	}
}

// FileSink writes blobs into a local directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (s *FileSink) Close() error {
	return nil
}
