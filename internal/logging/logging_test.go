package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Othernet-Project/fsal/internal/config"
	"github.com/Othernet-Project/fsal/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsal.log")
	l, err := logging.New(config.Logging{File: path, Level: "info"})
	require.NoError(t, err)

	l.Printf("hello %s", "world")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello world")
}

func TestDebugfGatedByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsal.log")
	l, err := logging.New(config.Logging{File: path, Level: "info"})
	require.NoError(t, err)

	l.Debugf("should not appear")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "should not appear")

	debugPath := filepath.Join(t.TempDir(), "debug.log")
	dl, err := logging.New(config.Logging{File: debugPath, Level: "debug"})
	require.NoError(t, err)
	dl.Debugf("now it appears")
	contents, err = os.ReadFile(debugPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "now it appears")
}
