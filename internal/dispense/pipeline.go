// Package dispense ejects cards one stop at a time as a non-blocking
// sequence advanced once per tick:
//
//	feeding   feed forward, flywheel on, count exit-beam transitions
//	retract   feed reversed briefly so the next card is not dragged out
//	settle    wait, then park the feed
//	final     wait again, then report completion
//
// A card only counts once the exit beam has been seen blocked and then
// clear again. Stalls are detected by the supervisor, not here.
package dispense

import (
	"time"

	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/motion"
	"github.com/banshee-data/dealr/internal/step"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// Phase is the position within one dispensing operation.
type Phase int

const (
	Idle Phase = iota
	Feeding
	Retract
	Settle
	FinalSettle
	Complete
)

func (p Phase) String() string {
	return [...]string{"idle", "feeding", "retract", "settle", "final-settle", "complete"}[p]
}

// Settings are the sequence timings.
type Settings struct {
	ReverseFeed     time.Duration
	Settle          time.Duration
	FinalSettle     time.Duration
	RecoveryRetract time.Duration
	MaxChained      int
}

// SettingsFromConfig extracts dispensing settings from the dealer config.
func SettingsFromConfig(c *config.DealerConfig) Settings {
	return Settings{
		ReverseFeed:     c.GetFeedReverseDuration(),
		Settle:          c.GetSettleDuration(),
		FinalSettle:     c.GetFinalSettleDuration(),
		RecoveryRetract: c.GetRecoveryRetract(),
		MaxChained:      c.GetMaxChainedDispenses(),
	}
}

// CardFunc is called once per card with the peak marked-card brightness
// seen while it crossed the exit beam.
type CardFunc func(peak uint16)

// Pipeline runs one dispensing operation at a time.
type Pipeline struct {
	motion  *motion.Controller
	sensors hal.Sensors
	clock   timeutil.Clock
	set     Settings
	onCard  CardFunc

	phase      Phase
	remaining  int
	dealt      int
	phaseStart time.Time
	throwStart time.Time
	inBeam     bool
	peak       uint16
}

// New returns an idle pipeline.
func New(m *motion.Controller, sensors hal.Sensors, clock timeutil.Clock, set Settings) *Pipeline {
	if set.MaxChained < 1 {
		set.MaxChained = 1
	}
	return &Pipeline{motion: m, sensors: sensors, clock: clock, set: set}
}

// OnCard registers the per-card callback.
func (p *Pipeline) OnCard(fn CardFunc) { p.onCard = fn }

// Start begins dispensing n cards at the current stop, capped at the
// chaining limit. It returns the number actually scheduled.
func (p *Pipeline) Start(n int) int {
	n = min(max(n, 1), p.set.MaxChained)
	now := p.clock.Now()
	p.phase = Feeding
	p.remaining = n
	p.dealt = 0
	p.phaseStart = now
	p.throwStart = now
	p.inBeam = false
	p.peak = 0

	p.motion.Flywheel(false)
	p.motion.Feed(motion.FeedForward)
	return n
}

// Step advances the sequence by one tick.
func (p *Pipeline) Step() step.Status {
	now := p.clock.Now()
	switch p.phase {
	case Idle:
		return step.Failed

	case Feeding:
		present := p.sensors.CardPresent()
		if present {
			p.inBeam = true
			if v := p.sensors.ReadMarkBrightness(); v > p.peak {
				p.peak = v
			}
			return step.Working
		}
		if !p.inBeam {
			return step.Working
		}
		// trailing edge: one card out
		p.inBeam = false
		p.remaining--
		p.dealt++
		peak := p.peak
		p.peak = 0
		p.throwStart = now
		if p.onCard != nil {
			p.onCard(peak)
		}
		if p.remaining > 0 {
			return step.Working
		}
		p.motion.FlywheelOff()
		p.motion.Feed(motion.FeedReverse)
		p.enter(Retract, now)

	case Retract:
		if now.Sub(p.phaseStart) >= p.set.ReverseFeed {
			p.enter(Settle, now)
		}

	case Settle:
		if now.Sub(p.phaseStart) >= p.set.Settle {
			p.motion.Feed(motion.FeedNeutral)
			p.enter(FinalSettle, now)
		}

	case FinalSettle:
		if now.Sub(p.phaseStart) >= p.set.FinalSettle {
			p.enter(Complete, now)
			return step.Done
		}

	case Complete:
		return step.Done
	}
	return step.Working
}

func (p *Pipeline) enter(ph Phase, now time.Time) {
	p.phase = ph
	p.phaseStart = now
}

// Phase is the current sequence position.
func (p *Pipeline) Phase() Phase { return p.phase }

// Throwing reports whether a card is being driven towards the exit beam.
func (p *Pipeline) Throwing() bool { return p.phase == Feeding }

// ThrowStarted is when the current card started moving; it resets after
// every exit so chained cards each get the full stall window.
func (p *Pipeline) ThrowStarted() time.Time { return p.throwStart }

// Dealt is the number of cards that crossed the beam in this operation.
func (p *Pipeline) Dealt() int { return p.dealt }

// CardDealt reports a completed operation that actually dispensed.
func (p *Pipeline) CardDealt() bool { return p.phase == Complete && p.dealt > 0 }

// Remaining is the number of cards still to leave in this operation.
func (p *Pipeline) Remaining() int { return p.remaining }

// Abort parks the feed and stops the flywheel without completing.
func (p *Pipeline) Abort() {
	p.motion.FlywheelOff()
	p.motion.Feed(motion.FeedNeutral)
	p.phase = Idle
	p.remaining = 0
	p.inBeam = false
}

// Recover pulls a stalled card back: feed and flywheel reversed for a
// bounded interval, then both parked. It blocks for RecoveryRetract.
func (p *Pipeline) Recover() {
	p.motion.Feed(motion.FeedReverse)
	p.motion.Flywheel(true)
	p.clock.Sleep(p.set.RecoveryRetract)
	p.Abort()
}
