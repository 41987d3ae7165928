package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"version"})
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, out.String(), "conduit v"+Version)
}

func TestProcessServeConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	initConfig()

	path := filepath.Join(t.TempDir(), "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  path: /socket\nlog:\n  level: warn\n"), 0o600))

	t.Setenv("CONDUIT_QUIC", "true")
	require.NoError(t, serveCmd.Flags().Set("config", path))
	require.NoError(t, serveCmd.Flags().Set("http-addr", "127.0.0.1:9999"))

	require.NoError(t, processServeConfig(serveCmd, nil))
	assert.Equal(t, "/socket", serveConfig.Server.Path)
	assert.Equal(t, "127.0.0.1:9999", serveConfig.Server.HTTPAddr)
	assert.Equal(t, "warn", serveConfig.Log.Level)
	assert.True(t, serveConfig.QUIC.Enabled)
}
