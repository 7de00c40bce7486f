package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.AWSRegion)
	require.Equal(t, 5*time.Minute, cfg.TOwner)
	require.Equal(t, 24*time.Hour, cfg.TOrphan)
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
awsregion: eu-west-1
towner: 10m
tenantconfig:
  - identity: amelia@example.com
    projectid: amelia
    userid: scott
    repourl: https://example.com/amelia.git
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", cfg.AWSRegion)
	require.Equal(t, 10*time.Minute, cfg.TOwner)
	require.Len(t, cfg.TenantConfig, 1)

	entries := cfg.TenantEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "amelia", entries[0].TenantKey.ProjectID)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("awsregion: eu-west-1\n"), 0o644))

	t.Setenv("WEBORD_AWSREGION", "ap-south-1")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "ap-south-1", cfg.AWSRegion)
}
