package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfigDir points the user config directory at a temp dir so
// first-run config creation stays inside the test sandbox.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolateConfigDir(t)

	settings, err := Load()
	require.NoError(t, err)

	assert.False(t, settings.Debug)
	assert.Equal(t, "audioclassifier", settings.Main.Name)

	assert.Equal(t, "models/best_model.ckpt.gz", settings.Model.CheckpointPath)
	assert.Equal(t, 3, settings.Model.TopK)
	assert.Equal(t, 60*time.Second, settings.Model.InferenceTimeout)

	assert.Equal(t, 8080, settings.Server.Port)
	assert.Equal(t, "32M", settings.Server.BodyLimit)
	assert.Equal(t, 5*time.Minute, settings.Server.CacheTTL)

	assert.Equal(t, 60, settings.Training.Epochs)
	assert.Equal(t, 8, settings.Training.BatchSize)
	assert.InDelta(t, 1e-3, settings.Training.LearningRate, 1e-12)
	assert.Equal(t, 5, settings.Training.HoldoutFold)
}

func TestAddr(t *testing.T) {
	var s Settings
	s.Server.Host = "127.0.0.1"
	s.Server.Port = 9000
	assert.Equal(t, "127.0.0.1:9000", s.Addr())
}

func TestLoadFirstRunWritesDefaultConfig(t *testing.T) {
	dir := isolateConfigDir(t)

	_, err := Load()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "audioclassifier", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "server:")
	assert.Contains(t, string(data), "training:")
}

func TestSyncViper(t *testing.T) {
	isolateConfigDir(t)

	settings, err := Load()
	require.NoError(t, err)

	viper.Set("model.topk", 7)
	t.Cleanup(func() { viper.Set("model.topk", 3) })

	require.NoError(t, SyncViper(settings))
	assert.Equal(t, 7, settings.Model.TopK)
}

func TestSaveDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server:")

	// A second save must refuse to overwrite.
	assert.Error(t, SaveDefault(path))
}
