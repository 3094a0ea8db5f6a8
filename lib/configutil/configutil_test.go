package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	URL     string `json:"url"`
	Retries int    `json:"retries"`
	Key     string `json:"key" env:"TEST_CONFIGUTIL_KEY"`
}

func TestReadConfigMissingFilesKeepDefaults(t *testing.T) {
	cfg := testConfig{URL: "https://default.example", Retries: 3}
	err := ReadConfig(filepath.Join(t.TempDir(), "config.json5"), &cfg)
	require.NoError(t, err)
	require.Equal(t, "https://default.example", cfg.URL)
	require.Equal(t, 3, cfg.Retries)
}

func TestReadConfigMergesLayers(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.json5")
	local := filepath.Join(dir, "config.local.json5")

	require.NoError(t, os.WriteFile(base, []byte(`{url: "https://base.example", retries: 5}`), 0o644))
	require.NoError(t, os.WriteFile(local, []byte(`{retries: 7}`), 0o644))

	cfg := testConfig{URL: "https://default.example", Retries: 3}
	err := ReadConfig(base, &cfg)
	require.NoError(t, err)

	// base overrides defaults, local overrides base
	require.Equal(t, "https://base.example", cfg.URL)
	require.Equal(t, 7, cfg.Retries)
}

func TestReadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TEST_CONFIGUTIL_KEY", "from-env")

	dir := t.TempDir()
	base := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(base, []byte(`{key: "from-file"}`), 0o644))

	var cfg testConfig
	err := ReadConfig(base, &cfg)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Key)
}

func TestReadConfigRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(base, []byte(`{url: `), 0o644))

	var cfg testConfig
	require.Error(t, ReadConfig(base, &cfg))
}
