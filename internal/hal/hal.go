// Package hal describes the dealer's hardware as the control loop sees it:
// sensors sampled once per tick and actuators commanded by plain writes.
// Implementations live in hal/bridge (serial microcontroller) and hal/sim
// (a simulated turntable for tests and bench work).
package hal

// Direction is the turntable rotation sense.
type Direction int

const (
	CW Direction = iota
	CCW
)

func (d Direction) String() string {
	if d == CCW {
		return "CCW"
	}
	return "CW"
}

// Opposite returns the reverse rotation sense.
func (d Direction) Opposite() Direction {
	if d == CW {
		return CCW
	}
	return CW
}

// ColorSample is one raw reading of the 4-channel colour sensor.
type ColorSample struct {
	R, G, B, C uint16
}

// NumButtons is the number of front-panel buttons.
const NumButtons = 4

// Sensors is polled by the control loop. Reads never block.
type Sensors interface {
	// ReadColor returns the latest colour sample under the tag sensor.
	ReadColor() ColorSample
	// ReadMarkBrightness returns the marked-card (UV) sensor reading.
	ReadMarkBrightness() uint16
	// CardPresent reports whether the exit beam is interrupted.
	CardPresent() bool
	// RigSwitch reports the reverse-rig switch position.
	RigSwitch() bool
	// ButtonDown reports the raw pressed level of button i.
	ButtonDown(i int) bool
}

// Actuators are commanded by the motion controller. Writes are
// fire-and-forget; transport failures are reported as errors for logging
// only.
type Actuators interface {
	SetRotation(pwm uint8, dir Direction) error
	SetFlywheel(pwm uint8, reverse bool) error
	SetFeed(angle uint8) error
}

// Display is the 4-character face. Rendering is out of scope for the
// controller; implementations may log, drive an LED module or record.
type Display interface {
	Show(text string)
}

// Hardware bundles everything the dealer needs from the board.
type Hardware interface {
	Sensors
	Actuators
}
