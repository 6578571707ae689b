// Package motion sequences the turntable, flywheel and feed servo.
//
// Commands are plain writes. A failed write is logged and otherwise
// ignored; a motor that does not move shows up later as a supervisor
// timeout, which is the only recovery path the dealer has anyway.
package motion

import (
	"time"

	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// Speed is a turntable speed tier.
type Speed int

const (
	Low Speed = iota
	Medium
	High
)

func (s Speed) String() string {
	switch s {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "unknown"
}

// FeedPosition is a named feed servo angle.
type FeedPosition int

const (
	FeedNeutral FeedPosition = iota
	FeedForward
	FeedReverse
)

// Settings are the PWM duties, servo angles and settle delay.
type Settings struct {
	SpeedPWM   [3]uint8
	Flywheel   uint8
	FeedAngle  [3]uint8
	StopSettle time.Duration
}

// SettingsFromConfig extracts motion settings from the dealer config.
func SettingsFromConfig(c *config.DealerConfig) Settings {
	var s Settings
	s.SpeedPWM[Low] = c.GetSpeedLow()
	s.SpeedPWM[Medium] = c.GetSpeedMedium()
	s.SpeedPWM[High] = c.GetSpeedHigh()
	s.Flywheel = c.GetFlywheelSpeed()
	s.FeedAngle[FeedNeutral] = c.GetFeedNeutralAngle()
	s.FeedAngle[FeedForward] = c.GetFeedForwardAngle()
	s.FeedAngle[FeedReverse] = c.GetFeedReverseAngle()
	s.StopSettle = c.GetStopSettle()
	return s
}

// Controller remembers what each actuator was last told so repeated
// commands can be skipped.
type Controller struct {
	hw    hal.Actuators
	clock timeutil.Clock
	set   Settings

	rotating bool
	dir      hal.Direction
	speed    Speed

	flywheel   bool
	flyReverse bool
	feed       FeedPosition
}

// New returns a controller with every actuator assumed off.
func New(hw hal.Actuators, clock timeutil.Clock, set Settings) *Controller {
	return &Controller{hw: hw, clock: clock, set: set}
}

// Rotate spins the turntable. It is a no-op when already turning that way
// at that speed, and always stops first when the direction changes.
func (c *Controller) Rotate(speed Speed, dir hal.Direction) {
	if c.rotating && c.dir == dir && c.speed == speed {
		return
	}
	if c.rotating && c.dir != dir {
		c.Stop()
	}
	if err := c.hw.SetRotation(c.set.SpeedPWM[speed], dir); err != nil {
		monitoring.Logf("motion: rotate %s %s: %v", speed, dir, err)
	}
	c.rotating, c.dir, c.speed = true, dir, speed
}

// Stop halts the turntable and waits for it to settle. Stopping a
// stationary turntable does nothing.
func (c *Controller) Stop() {
	if !c.rotating {
		return
	}
	if err := c.hw.SetRotation(0, c.dir); err != nil {
		monitoring.Logf("motion: stop: %v", err)
	}
	c.rotating = false
	c.clock.Sleep(c.set.StopSettle)
}

// Rotating reports whether the turntable was last commanded to turn.
func (c *Controller) Rotating() bool { return c.rotating }

// Direction is the last commanded rotation sense.
func (c *Controller) Direction() hal.Direction { return c.dir }

// Flywheel spins the ejector wheel forward, or in reverse to pull a card
// back during a stall recovery.
func (c *Controller) Flywheel(reverse bool) {
	if c.flywheel && c.flyReverse == reverse {
		return
	}
	if err := c.hw.SetFlywheel(c.set.Flywheel, reverse); err != nil {
		monitoring.Logf("motion: flywheel: %v", err)
	}
	c.flywheel, c.flyReverse = true, reverse
}

// FlywheelOff stops the ejector wheel.
func (c *Controller) FlywheelOff() {
	if !c.flywheel {
		return
	}
	if err := c.hw.SetFlywheel(0, false); err != nil {
		monitoring.Logf("motion: flywheel off: %v", err)
	}
	c.flywheel, c.flyReverse = false, false
}

// FlywheelOn reports whether the flywheel is spinning.
func (c *Controller) FlywheelOn() bool { return c.flywheel }

// Feed moves the feed servo. Repeating the current position is allowed;
// servos hold position, so the write is cheap and re-asserts it.
func (c *Controller) Feed(pos FeedPosition) {
	if err := c.hw.SetFeed(c.set.FeedAngle[pos]); err != nil {
		monitoring.Logf("motion: feed: %v", err)
	}
	c.feed = pos
}

// FeedPosition is the last commanded feed position.
func (c *Controller) FeedPosition() FeedPosition { return c.feed }

// AllOff stops rotation and the flywheel and parks the feed.
func (c *Controller) AllOff() {
	c.Stop()
	c.FlywheelOff()
	c.Feed(FeedNeutral)
}

// SelfTest runs each motor briefly in both directions. It blocks for a
// little over a second and is only used at boot.
func (c *Controller) SelfTest() {
	c.Rotate(Medium, hal.CW)
	c.clock.Sleep(300 * time.Millisecond)
	c.Rotate(Medium, hal.CCW)
	c.clock.Sleep(300 * time.Millisecond)
	c.Stop()
	c.Flywheel(false)
	c.clock.Sleep(200 * time.Millisecond)
	c.Flywheel(true)
	c.clock.Sleep(200 * time.Millisecond)
	c.FlywheelOff()
	c.Feed(FeedNeutral)
}
