package main

import (
	"fmt"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/fsutil"
)

// overrides holds the command-line values that win over the environment
// and the config file. Empty strings mean "not set".
type overrides struct {
	ConfigPath      string
	Listen          string
	Port            string
	DBPath          string
	Calibration     string
	CalibrationFile string
	Debug           bool
}

func ptrString(v string) *string { return &v }

func ptrBool(v bool) *bool { return &v }

// resolveConfig layers flags over DEALR_* environment over the config file
// over the compiled defaults.
func resolveConfig(o overrides, e config.Env) (*config.DealerConfig, error) {
	path := o.ConfigPath
	if path == "" {
		path = e.ConfigPath
	}

	cfg := config.DefaultDealerConfig()
	if path != "" {
		loaded, err := config.LoadDealerConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	e.Apply(cfg)

	if o.Listen != "" {
		cfg.Listen = ptrString(o.Listen)
	}
	if o.Port != "" {
		cfg.SerialPort = ptrString(o.Port)
	}
	if o.DBPath != "" {
		cfg.DBPath = ptrString(o.DBPath)
	}
	if o.Calibration != "" {
		cfg.CalibrationBackend = ptrString(o.Calibration)
	}
	if o.CalibrationFile != "" {
		cfg.CalibrationPath = ptrString(o.CalibrationFile)
	}
	if o.Debug {
		cfg.Verbose = ptrBool(true)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openCalibration opens the calibration store on the configured backend.
func openCalibration(cfg *config.DealerConfig, fsys fsutil.FileSystem, database *db.DB) (*calibration.Store, error) {
	switch backend := cfg.GetCalibrationBackend(); backend {
	case "sqlite":
		if database == nil {
			return nil, fmt.Errorf("calibration backend %q needs a database", backend)
		}
		return calibration.Open(database.CalibrationBackend())
	case "file":
		return calibration.Open(calibration.NewFileBackend(fsys, cfg.GetCalibrationPath()))
	default:
		return nil, fmt.Errorf("unknown calibration backend %q", backend)
	}
}
