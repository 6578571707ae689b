package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Setenv("DEALR_SERIAL_PORT", "/dev/ttyUSB3")
	t.Setenv("DEALR_LISTEN", ":9090")
	t.Setenv("DEALR_DEV", "true")

	e, err := ParseEnv()
	require.NoError(t, err)
	assert.True(t, e.Dev)

	cfg := DefaultDealerConfig()
	e.Apply(cfg)
	assert.Equal(t, "/dev/ttyUSB3", cfg.GetSerialPort())
	assert.Equal(t, ":9090", cfg.GetListen())
	assert.Equal(t, "dealr.db", cfg.GetDBPath(), "unset overrides leave the file value")
	assert.False(t, cfg.GetVerbose())
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("DEALR_VERBOSE", "sometimes")
	_, err := ParseEnv()
	assert.Error(t, err)
}
