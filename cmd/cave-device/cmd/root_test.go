package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/service/device"
)

// TestRun_WithoutSettingsFile starts from the flag defaults in a directory
// with no settings file: the reference cave is used.
func TestRun_WithoutSettingsFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.ConnectionStringEnv, "")
	t.Setenv(config.IntervalEnv, "")

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, device.Run(ctx, &device.Options{ConfigPath: flag.DefValue}))
}

// TestInitConfig writes the default settings next to the binary and
// refuses to overwrite them without --force.
func TestInitConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"init-config"})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), config.DefaultConfigFilename)

	_, err := os.Stat(filepath.Join(".", config.DefaultConfigFilename))
	require.NoError(t, err)

	rootCmd.SetArgs([]string{"init-config"})
	require.ErrorIs(t, rootCmd.Execute(), config.ErrConfigExists)

	rootCmd.SetArgs([]string{"init-config", "--force"})
	require.NoError(t, rootCmd.Execute())
}
