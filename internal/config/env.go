package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds deployment overrides read from the environment. They sit
// between the config file and command-line flags.
type Env struct {
	ConfigPath string `env:"DEALR_CONFIG"`
	SerialPort string `env:"DEALR_SERIAL_PORT"`
	DBPath     string `env:"DEALR_DB_PATH"`
	Listen     string `env:"DEALR_LISTEN"`
	Verbose    bool   `env:"DEALR_VERBOSE"`
	Dev        bool   `env:"DEALR_DEV"`
}

// ParseEnv loads overrides from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply copies every set override onto c.
func (e Env) Apply(c *DealerConfig) {
	if e.SerialPort != "" {
		c.SerialPort = ptrString(e.SerialPort)
	}
	if e.DBPath != "" {
		c.DBPath = ptrString(e.DBPath)
	}
	if e.Listen != "" {
		c.Listen = ptrString(e.Listen)
	}
	if e.Verbose {
		c.Verbose = ptrBool(true)
	}
}
