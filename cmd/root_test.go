package cmd

import (
	"testing"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSettings(t *testing.T) *conf.Settings {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	settings, err := conf.Load()
	require.NoError(t, err)
	return settings
}

func TestRootCommandSubcommands(t *testing.T) {
	root := RootCommand(loadSettings(t))

	for _, name := range []string{"serve", "train", "file"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestFlagsTakePrecedenceOverConfig(t *testing.T) {
	settings := loadSettings(t)
	root := RootCommand(settings)

	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serveCmd.ParseFlags([]string{"--port", "9999"}))

	require.NoError(t, root.PersistentPreRunE(serveCmd, nil))

	// The set flag wins, unset values keep their loaded defaults.
	assert.Equal(t, 9999, settings.Server.Port)
	assert.Equal(t, "0.0.0.0", settings.Server.Host)
	assert.Equal(t, 3, settings.Model.TopK)
}

func TestPersistentFlagsTakePrecedence(t *testing.T) {
	settings := loadSettings(t)
	root := RootCommand(settings)

	require.NoError(t, root.PersistentFlags().Set("model", "other/model.ckpt"))
	require.NoError(t, root.PersistentPreRunE(root, nil))

	assert.Equal(t, "other/model.ckpt", settings.Model.CheckpointPath)
}
