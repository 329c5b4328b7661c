package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Othernet-Project/fsal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fsal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
fsal:
  socket: /tmp/fsal.sock
  basepaths:
    - /data/primary
    - /data/incoming
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fsal.sock", cfg.FSAL.Socket)
	assert.Equal(t, "bundles", cfg.Bundles.BundlesDir)
	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, "fsal.db", cfg.Database.Name)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/data/incoming", cfg.TransferBase())
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
fsal:
  socket: /tmp/fsal.sock
  basepaths: [/data]
  blacklist:
    - "^\\.git/"
bundles:
  bundles_dir: incoming
  bundles_exts: [zip]
ondd:
  socket: /tmp/ondd.sock
logging:
  level: debug
  file: /var/log/fsal.log
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"^\\.git/"}, cfg.FSAL.Blacklist)
	assert.Equal(t, "incoming", cfg.Bundles.BundlesDir)
	assert.Equal(t, []string{"zip"}, cfg.Bundles.BundlesExts)
	assert.Equal(t, "/tmp/ondd.sock", cfg.ONDD.Socket)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsMissingSocket(t *testing.T) {
	path := writeConfig(t, `
fsal:
  basepaths: [/data]
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptyBasePaths(t *testing.T) {
	path := writeConfig(t, `
fsal:
  socket: /tmp/fsal.sock
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
