package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/fsutil"
	"github.com/banshee-data/dealr/internal/monitoring"
)

type resolved struct {
	Listen      string
	Port        string
	DBPath      string
	Backend     string
	Calibration string
	Verbose     bool
	Debounce    int
}

func summarize(c *config.DealerConfig) resolved {
	return resolved{
		Listen:      c.GetListen(),
		Port:        c.GetSerialPort(),
		DBPath:      c.GetDBPath(),
		Backend:     c.GetCalibrationBackend(),
		Calibration: c.GetCalibrationPath(),
		Verbose:     c.GetVerbose(),
		Debounce:    c.GetDebounceCount(),
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dealer.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveConfigPrecedence(t *testing.T) {
	file := writeConfig(t, `{"listen": "file:1", "serial_port": "/dev/file", "db_path": "file.db", "debounce_count": 5}`)

	tests := []struct {
		name string
		o    overrides
		e    config.Env
		want resolved
	}{
		{
			name: "compiled defaults",
			want: resolved{Listen: "localhost:8080", Port: "/dev/ttyACM0", DBPath: "dealr.db", Backend: "file", Calibration: "calibration.bin", Debounce: 3},
		},
		{
			name: "file over defaults",
			o:    overrides{ConfigPath: file},
			want: resolved{Listen: "file:1", Port: "/dev/file", DBPath: "file.db", Backend: "file", Calibration: "calibration.bin", Debounce: 5},
		},
		{
			name: "env config path",
			e:    config.Env{ConfigPath: file},
			want: resolved{Listen: "file:1", Port: "/dev/file", DBPath: "file.db", Backend: "file", Calibration: "calibration.bin", Debounce: 5},
		},
		{
			name: "env over file",
			o:    overrides{ConfigPath: file},
			e:    config.Env{Listen: "env:2", SerialPort: "/dev/env", Verbose: true},
			want: resolved{Listen: "env:2", Port: "/dev/env", DBPath: "file.db", Backend: "file", Calibration: "calibration.bin", Verbose: true, Debounce: 5},
		},
		{
			name: "flags over env",
			o:    overrides{ConfigPath: file, Listen: "flag:3", DBPath: "flag.db", Calibration: "sqlite", CalibrationFile: "cal.img", Debug: true},
			e:    config.Env{Listen: "env:2", DBPath: "env.db"},
			want: resolved{Listen: "flag:3", Port: "/dev/file", DBPath: "flag.db", Backend: "sqlite", Calibration: "cal.img", Verbose: true, Debounce: 5},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := resolveConfig(tc.o, tc.e)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, summarize(cfg)); diff != "" {
				t.Errorf("resolved config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveConfigErrors(t *testing.T) {
	_, err := resolveConfig(overrides{ConfigPath: filepath.Join(t.TempDir(), "missing.json")}, config.Env{})
	assert.Error(t, err)

	_, err = resolveConfig(overrides{Calibration: "eeprom"}, config.Env{})
	assert.ErrorContains(t, err, "calibration_backend")

	bad := writeConfig(t, `{"debounce_count": 0}`)
	_, err = resolveConfig(overrides{ConfigPath: bad}, config.Env{})
	assert.Error(t, err)
}

func TestOpenCalibrationFile(t *testing.T) {
	monitoring.SetLogger(nil)
	mem := fsutil.NewMemoryFileSystem()
	cfg, err := resolveConfig(overrides{CalibrationFile: "/var/lib/dealr/cal.bin"}, config.Env{})
	require.NoError(t, err)

	store, err := openCalibration(cfg, mem, nil)
	require.NoError(t, err)
	assert.Equal(t, calibration.DefaultThreshold, store.Threshold())
	assert.Equal(t, []string{"/var/lib/dealr/cal.bin"}, mem.Files())
}

func TestOpenCalibrationSqlite(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg, err := resolveConfig(overrides{Calibration: "sqlite"}, config.Env{})
	require.NoError(t, err)

	_, err = openCalibration(cfg, fsutil.NewMemoryFileSystem(), nil)
	assert.ErrorContains(t, err, "needs a database")

	database, err := db.NewDB(filepath.Join(t.TempDir(), "dealr.db"))
	require.NoError(t, err)
	defer database.Close()

	store, err := openCalibration(cfg, fsutil.NewMemoryFileSystem(), database)
	require.NoError(t, err)
	require.NoError(t, store.SetThreshold(650))

	image, err := database.CalibrationBackend().Load()
	require.NoError(t, err)
	assert.Len(t, image, calibration.ImageSize(calibration.NumIdentities))
}

// TestFlagDefaults checks that unset flags leave the config layers alone.
func TestFlagDefaults(t *testing.T) {
	for _, name := range []string{"config", "listen", "port", "db", "calibration", "calibration-file"} {
		f := flag.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue, name)
	}
	for _, name := range []string{"dev", "debug", "version"} {
		f := flag.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "false", f.DefValue, name)
	}
}

func TestConsoleDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := newConsoleDisplay(&buf)

	d.Show("HAND")
	d.Show("HAND")
	d.Show("R  5")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "HAND"))
	assert.Contains(t, out, "R  5")
}
