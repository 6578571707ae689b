package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical dealer defaults file.
const DefaultConfigPath = "config/dealer.defaults.json"

// DealerConfig represents the tunable parameters of the dealing engine.
// Every field is optional; the Get* accessors supply the factory value for
// anything the file leaves out. The accuracy/speed trade-off (debounce count,
// spike multiplier, rotation speeds) varies between hardware batches, which
// is why none of it is compiled in.
type DealerConfig struct {
	// Classifier
	DebounceCount   *int     `json:"debounce_count,omitempty"`
	SpikeMultiplier *float64 `json:"spike_multiplier,omitempty"`

	// Motion (PWM duty 0-255, servo angles in degrees)
	SpeedLow         *int    `json:"speed_low,omitempty"`
	SpeedMedium      *int    `json:"speed_medium,omitempty"`
	SpeedHigh        *int    `json:"speed_high,omitempty"`
	FlywheelSpeed    *int    `json:"flywheel_speed,omitempty"`
	StopSettle       *string `json:"stop_settle,omitempty"`
	FeedForwardAngle *int    `json:"feed_forward_angle,omitempty"`
	FeedNeutralAngle *int    `json:"feed_neutral_angle,omitempty"`
	FeedReverseAngle *int    `json:"feed_reverse_angle,omitempty"`

	// Dispensing
	FeedReverseDuration  *string `json:"feed_reverse_duration,omitempty"`
	SettleDuration       *string `json:"settle_duration,omitempty"`
	FinalSettleDuration  *string `json:"final_settle_duration,omitempty"`
	MaxChainedDispenses  *int    `json:"max_chained_dispenses,omitempty"`
	RecoveryRetract      *string `json:"recovery_retract,omitempty"`
	MaxThrowRetries      *int    `json:"max_throw_retries,omitempty"`
	FlipArcDuration      *string `json:"flip_arc_duration,omitempty"`
	ErrorDisplayDuration *string `json:"error_display_duration,omitempty"`

	// Deadlines
	InitTimeout        *string `json:"init_timeout,omitempty"`
	ThrowTimeout       *string `json:"throw_timeout,omitempty"`
	AdjustTimeout      *string `json:"adjust_timeout,omitempty"`
	ScreensaverTimeout *string `json:"screensaver_timeout,omitempty"`

	// Orchestrator
	TickInterval    *string `json:"tick_interval,omitempty"`
	DealToReference *bool   `json:"deal_to_reference,omitempty"`
	MotorSelfTest   *bool   `json:"motor_self_test,omitempty"`
	Verbose         *bool   `json:"verbose,omitempty"`

	// Buttons
	LongPress      *string `json:"long_press,omitempty"`
	ButtonDebounce *string `json:"button_debounce,omitempty"`

	// Calibration
	CalibrationBackend   *string `json:"calibration_backend,omitempty"` // "file" or "sqlite"
	CalibrationPath      *string `json:"calibration_path,omitempty"`
	TuningSamples        *int    `json:"tuning_samples,omitempty"`
	ThresholdTuningCards *int    `json:"threshold_tuning_cards,omitempty"`
	ThresholdMargin      *int    `json:"threshold_margin,omitempty"`

	// Process
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDealerConfig returns a DealerConfig with all fields set to nil.
func EmptyDealerConfig() *DealerConfig {
	return &DealerConfig{}
}

// DefaultDealerConfig returns a config with every field populated with the
// factory value. It is what an absent config file resolves to.
func DefaultDealerConfig() *DealerConfig {
	return &DealerConfig{
		DebounceCount:        ptrInt(3),
		SpikeMultiplier:      ptrFloat64(1.6),
		SpeedLow:             ptrInt(70),
		SpeedMedium:          ptrInt(120),
		SpeedHigh:            ptrInt(200),
		FlywheelSpeed:        ptrInt(255),
		StopSettle:           ptrString("20ms"),
		FeedForwardAngle:     ptrInt(180),
		FeedNeutralAngle:     ptrInt(90),
		FeedReverseAngle:     ptrInt(40),
		FeedReverseDuration:  ptrString("80ms"),
		SettleDuration:       ptrString("150ms"),
		FinalSettleDuration:  ptrString("100ms"),
		MaxChainedDispenses:  ptrInt(3),
		RecoveryRetract:      ptrString("400ms"),
		MaxThrowRetries:      ptrInt(2),
		FlipArcDuration:      ptrString("250ms"),
		ErrorDisplayDuration: ptrString("1500ms"),
		InitTimeout:          ptrString("12s"),
		ThrowTimeout:         ptrString("2s"),
		AdjustTimeout:        ptrString("3s"),
		ScreensaverTimeout:   ptrString("55s"),
		TickInterval:         ptrString("5ms"),
		DealToReference:      ptrBool(false),
		MotorSelfTest:        ptrBool(true),
		Verbose:              ptrBool(false),
		LongPress:            ptrString("3s"),
		ButtonDebounce:       ptrString("30ms"),
		CalibrationBackend:   ptrString("file"),
		CalibrationPath:      ptrString("calibration.bin"),
		TuningSamples:        ptrInt(20),
		ThresholdTuningCards: ptrInt(5),
		ThresholdMargin:      ptrInt(20),
		SerialPort:           ptrString("/dev/ttyACM0"),
		BaudRate:             ptrInt(115200),
		DBPath:               ptrString("dealr.db"),
		Listen:               ptrString("localhost:8080"),
	}
}

// LoadDealerConfig loads a DealerConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadDealerConfig(path string) (*DealerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDealerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *DealerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/game/games/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadDealerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *DealerConfig) Validate() error {
	if c.DebounceCount != nil && (*c.DebounceCount < 1 || *c.DebounceCount > 16) {
		return fmt.Errorf("debounce_count must be between 1 and 16, got %d", *c.DebounceCount)
	}
	if c.SpikeMultiplier != nil && *c.SpikeMultiplier <= 1 {
		return fmt.Errorf("spike_multiplier must be greater than 1, got %f", *c.SpikeMultiplier)
	}

	for name, v := range map[string]*int{
		"speed_low":      c.SpeedLow,
		"speed_medium":   c.SpeedMedium,
		"speed_high":     c.SpeedHigh,
		"flywheel_speed": c.FlywheelSpeed,
	} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be a PWM duty between 0 and 255, got %d", name, *v)
		}
	}
	for name, v := range map[string]*int{
		"feed_forward_angle": c.FeedForwardAngle,
		"feed_neutral_angle": c.FeedNeutralAngle,
		"feed_reverse_angle": c.FeedReverseAngle,
	} {
		if v != nil && (*v < 0 || *v > 180) {
			return fmt.Errorf("%s must be between 0 and 180 degrees, got %d", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"stop_settle":            c.StopSettle,
		"feed_reverse_duration":  c.FeedReverseDuration,
		"settle_duration":        c.SettleDuration,
		"final_settle_duration":  c.FinalSettleDuration,
		"recovery_retract":       c.RecoveryRetract,
		"flip_arc_duration":      c.FlipArcDuration,
		"error_display_duration": c.ErrorDisplayDuration,
		"init_timeout":           c.InitTimeout,
		"throw_timeout":          c.ThrowTimeout,
		"adjust_timeout":         c.AdjustTimeout,
		"screensaver_timeout":    c.ScreensaverTimeout,
		"tick_interval":          c.TickInterval,
		"long_press":             c.LongPress,
		"button_debounce":        c.ButtonDebounce,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.MaxChainedDispenses != nil && (*c.MaxChainedDispenses < 1 || *c.MaxChainedDispenses > 3) {
		return fmt.Errorf("max_chained_dispenses must be between 1 and 3, got %d", *c.MaxChainedDispenses)
	}
	if c.TuningSamples != nil && *c.TuningSamples < 1 {
		return fmt.Errorf("tuning_samples must be positive, got %d", *c.TuningSamples)
	}
	if c.ThresholdTuningCards != nil && *c.ThresholdTuningCards < 1 {
		return fmt.Errorf("threshold_tuning_cards must be positive, got %d", *c.ThresholdTuningCards)
	}
	if c.CalibrationBackend != nil {
		switch *c.CalibrationBackend {
		case "file", "sqlite":
		default:
			return fmt.Errorf("calibration_backend must be \"file\" or \"sqlite\", got %q", *c.CalibrationBackend)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetDebounceCount returns the number of identical raw classifications
// needed before the stable identity changes.
func (c *DealerConfig) GetDebounceCount() int { return intOr(c.DebounceCount, 3) }

// GetSpikeMultiplier returns the background brightness multiplier for the
// spike detector.
func (c *DealerConfig) GetSpikeMultiplier() float64 {
	if c.SpikeMultiplier == nil {
		return 1.6
	}
	return *c.SpikeMultiplier
}

func (c *DealerConfig) GetSpeedLow() uint8      { return uint8(intOr(c.SpeedLow, 70)) }
func (c *DealerConfig) GetSpeedMedium() uint8   { return uint8(intOr(c.SpeedMedium, 120)) }
func (c *DealerConfig) GetSpeedHigh() uint8     { return uint8(intOr(c.SpeedHigh, 200)) }
func (c *DealerConfig) GetFlywheelSpeed() uint8 { return uint8(intOr(c.FlywheelSpeed, 255)) }

func (c *DealerConfig) GetStopSettle() time.Duration { return durationOr(c.StopSettle, 20*time.Millisecond) }

func (c *DealerConfig) GetFeedForwardAngle() uint8 { return uint8(intOr(c.FeedForwardAngle, 180)) }
func (c *DealerConfig) GetFeedNeutralAngle() uint8 { return uint8(intOr(c.FeedNeutralAngle, 90)) }
func (c *DealerConfig) GetFeedReverseAngle() uint8 { return uint8(intOr(c.FeedReverseAngle, 40)) }

func (c *DealerConfig) GetFeedReverseDuration() time.Duration {
	return durationOr(c.FeedReverseDuration, 80*time.Millisecond)
}

func (c *DealerConfig) GetSettleDuration() time.Duration {
	return durationOr(c.SettleDuration, 150*time.Millisecond)
}

func (c *DealerConfig) GetFinalSettleDuration() time.Duration {
	return durationOr(c.FinalSettleDuration, 100*time.Millisecond)
}

// GetMaxChainedDispenses returns how many dispensing operations may run
// back-to-back at one stop before an advance is forced.
func (c *DealerConfig) GetMaxChainedDispenses() int { return intOr(c.MaxChainedDispenses, 3) }

func (c *DealerConfig) GetRecoveryRetract() time.Duration {
	return durationOr(c.RecoveryRetract, 400*time.Millisecond)
}

func (c *DealerConfig) GetMaxThrowRetries() int { return intOr(c.MaxThrowRetries, 2) }

func (c *DealerConfig) GetFlipArcDuration() time.Duration {
	return durationOr(c.FlipArcDuration, 250*time.Millisecond)
}

func (c *DealerConfig) GetErrorDisplayDuration() time.Duration {
	return durationOr(c.ErrorDisplayDuration, 1500*time.Millisecond)
}

func (c *DealerConfig) GetInitTimeout() time.Duration   { return durationOr(c.InitTimeout, 12*time.Second) }
func (c *DealerConfig) GetThrowTimeout() time.Duration  { return durationOr(c.ThrowTimeout, 2*time.Second) }
func (c *DealerConfig) GetAdjustTimeout() time.Duration { return durationOr(c.AdjustTimeout, 3*time.Second) }

// GetScreensaverTimeout returns the quiet period in IDLE before the display
// switches to the screensaver.
func (c *DealerConfig) GetScreensaverTimeout() time.Duration {
	return durationOr(c.ScreensaverTimeout, 55*time.Second)
}

func (c *DealerConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 5*time.Millisecond)
}

// GetDealToReference reports whether the reference tag is dealt to during
// the primary deal. By default it only marks the dealer position.
func (c *DealerConfig) GetDealToReference() bool { return boolOr(c.DealToReference, false) }

func (c *DealerConfig) GetMotorSelfTest() bool { return boolOr(c.MotorSelfTest, true) }
func (c *DealerConfig) GetVerbose() bool       { return boolOr(c.Verbose, false) }

func (c *DealerConfig) GetLongPress() time.Duration { return durationOr(c.LongPress, 3*time.Second) }
func (c *DealerConfig) GetButtonDebounce() time.Duration {
	return durationOr(c.ButtonDebounce, 30*time.Millisecond)
}

func (c *DealerConfig) GetCalibrationBackend() string { return stringOr(c.CalibrationBackend, "file") }
func (c *DealerConfig) GetCalibrationPath() string {
	return stringOr(c.CalibrationPath, "calibration.bin")
}
func (c *DealerConfig) GetTuningSamples() int        { return intOr(c.TuningSamples, 20) }
func (c *DealerConfig) GetThresholdTuningCards() int { return intOr(c.ThresholdTuningCards, 5) }
func (c *DealerConfig) GetThresholdMargin() int      { return intOr(c.ThresholdMargin, 20) }

func (c *DealerConfig) GetSerialPort() string { return stringOr(c.SerialPort, "/dev/ttyACM0") }
func (c *DealerConfig) GetBaudRate() int      { return intOr(c.BaudRate, 115200) }
func (c *DealerConfig) GetDBPath() string     { return stringOr(c.DBPath, "dealr.db") }
func (c *DealerConfig) GetListen() string     { return stringOr(c.Listen, "localhost:8080") }
