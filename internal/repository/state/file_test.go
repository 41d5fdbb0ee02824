package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/domain/cave"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.json"))
	s, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, s)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns equal state.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(file)

	want := &Snapshot{
		SavedAt:            time.Now().UTC().Truncate(time.Second),
		CurrentTemperature: 63.25,
		CurrentHumidity:    81.5,
		Fan:                cave.FanFailed,
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.Fan, got.Fan)
	require.InDelta(t, want.CurrentTemperature, got.CurrentTemperature, 1e-9)
	require.InDelta(t, want.CurrentHumidity, got.CurrentHumidity, 1e-9)
	require.True(t, want.SavedAt.Equal(got.SavedAt))

	info, err := os.Stat(file)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(config.DefaultFilePermissions), info.Mode().Perm())
}

// TestFileRepository_Malformed rejects files without readings or with an unknown fan state.
func TestFileRepository_Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for name, body := range map[string]string{
		"no-readings.json": `{"fan":"on"}`,
		"bad-fan.json":     `{"currentTemperature":60,"currentHumidity":80,"fan":"spinning"}`,
		"bad-json.json":    `{`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := NewFileRepository(path).Load(context.Background())
		require.Error(t, err, name)
	}
}

// TestSnapshot_Apply restores readings and fan and clamps humidity.
func TestSnapshot_Apply(t *testing.T) {
	t.Parallel()

	env := cave.NewEnvironment(70, 99, cave.Setpoint{Desired: 60, Limit: 5}, cave.Setpoint{Desired: 79, Limit: 10})

	env.Update((&Snapshot{CurrentTemperature: 61, CurrentHumidity: 120, Fan: cave.FanOn}).Apply)

	st := env.Snapshot()
	require.InDelta(t, 61.0, st.CurrentTemperature, 1e-9)
	require.InDelta(t, cave.MaxHumidity, st.CurrentHumidity, 1e-9)
	require.Equal(t, cave.FanOn, st.Fan)

	snap := FromState(st, time.Time{})
	require.Equal(t, cave.FanOn, snap.Fan)
	require.InDelta(t, 61.0, snap.CurrentTemperature, 1e-9)
}
