package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-engine/internal/config"
	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/export"
)

func TestOpenOutputs_FileOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	cfg := &config.Config{Export: export.Config{Backend: string(export.SinkTypeFS), OutputDir: dir}}

	out, err := OpenOutputs(context.Background(), cfg)
	require.NoError(t, err)
	defer out.Close()

	assert.NotNil(t, out.Exporter)
	assert.Nil(t, out.DB)
	assert.Len(t, out.Options(), 1)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenOutputs_BadDatabaseURL(t *testing.T) {
	cfg := &config.Config{
		Export:   export.Config{Backend: string(export.SinkTypeFS), OutputDir: t.TempDir()},
		Database: config.DatabaseConfig{URL: "://not-a-url"},
	}

	_, err := OpenOutputs(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRequireCredential(t *testing.T) {
	cfg := &config.Config{}
	assert.ErrorIs(t, RequireCredential(cfg), api.ErrMissingCredential)

	cfg.Provider.APIKey = "   "
	assert.ErrorIs(t, RequireCredential(cfg), api.ErrMissingCredential)

	cfg.Provider.APIKey = "secret"
	assert.NoError(t, RequireCredential(cfg))
}
