// Package supervisor tracks the dealer's deadlines. It never acts on its
// own: the dealer reports what it is doing each tick, asks Check for the
// first expired deadline, and performs the recovery itself.
package supervisor

import (
	"time"

	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// Expiry names a deadline that ran out.
type Expiry int

const (
	None Expiry = iota
	InitExpired
	AdjustExpired
	ThrowStalled
	Screensaver
)

func (e Expiry) String() string {
	return [...]string{"none", "init", "adjust", "throw", "screensaver"}[e]
}

// Action is the recovery chosen after a throw stall.
type Action int

const (
	// ToolsExit leaves the active tool back to the tools menu.
	ToolsExit Action = iota
	// Redeal pulls the card back and retries the same stop.
	Redeal
	// FullReset abandons the game.
	FullReset
)

func (a Action) String() string {
	return [...]string{"tools-exit", "redeal", "full-reset"}[a]
}

// Deadlines are the supervised intervals.
type Deadlines struct {
	Init        time.Duration
	Throw       time.Duration
	Adjust      time.Duration
	Screensaver time.Duration
	MaxRetries  int
}

// DeadlinesFromConfig extracts the deadlines from the dealer config.
func DeadlinesFromConfig(c *config.DealerConfig) Deadlines {
	return Deadlines{
		Init:        c.GetInitTimeout(),
		Throw:       c.GetThrowTimeout(),
		Adjust:      c.GetAdjustTimeout(),
		Screensaver: c.GetScreensaverTimeout(),
		MaxRetries:  c.GetMaxThrowRetries(),
	}
}

// Status is what the dealer reports each tick.
type Status struct {
	Throwing      bool
	ThrowStarted  time.Time
	AwaitDecision bool
	Idle          bool
	ToolActive    bool
}

// Supervisor holds the armed deadlines.
type Supervisor struct {
	clock timeutil.Clock
	d     Deadlines

	initArmed   bool
	initStart   time.Time
	adjustArmed bool
	adjustStart time.Time
	idleStart   time.Time
	saverOn     bool
	stalls      int
}

// New returns a supervisor with nothing armed and the idle timer started.
func New(clock timeutil.Clock, d Deadlines) *Supervisor {
	return &Supervisor{clock: clock, d: d, idleStart: clock.Now()}
}

// StartInit arms the initialisation deadline.
func (s *Supervisor) StartInit() {
	s.initArmed, s.initStart = true, s.clock.Now()
}

// StopInit disarms the initialisation deadline.
func (s *Supervisor) StopInit() { s.initArmed = false }

// StartAdjust arms the fine-adjust deadline.
func (s *Supervisor) StartAdjust() {
	s.adjustArmed, s.adjustStart = true, s.clock.Now()
}

// StopAdjust disarms the fine-adjust deadline.
func (s *Supervisor) StopAdjust() { s.adjustArmed = false }

// Activity restarts the idle timer and clears the screensaver.
func (s *Supervisor) Activity() {
	s.idleStart = s.clock.Now()
	s.saverOn = false
}

// ScreensaverOn reports whether the screensaver deadline has fired since
// the last activity.
func (s *Supervisor) ScreensaverOn() bool { return s.saverOn }

// Reset disarms everything, including the stall count.
func (s *Supervisor) Reset() {
	s.initArmed, s.adjustArmed = false, false
	s.stalls = 0
	s.Activity()
}

// Check returns the first expired deadline. An expired init or adjust
// deadline is disarmed as it is reported. The screensaver fires once per
// idle period.
func (s *Supervisor) Check(st Status) Expiry {
	now := s.clock.Now()
	switch {
	case s.initArmed && now.Sub(s.initStart) >= s.d.Init:
		s.initArmed = false
		return InitExpired
	case s.adjustArmed && !st.AwaitDecision && now.Sub(s.adjustStart) >= s.d.Adjust:
		s.adjustArmed = false
		return AdjustExpired
	case st.Throwing && now.Sub(st.ThrowStarted) >= s.d.Throw:
		return ThrowStalled
	case st.Idle && !st.ToolActive && !s.saverOn && now.Sub(s.idleStart) >= s.d.Screensaver:
		s.saverOn = true
		return Screensaver
	}
	return None
}

// StallAction records a throw stall and picks the recovery. Tools always
// exit; games redeal until MaxRetries consecutive stalls, then reset.
func (s *Supervisor) StallAction(toolActive bool) Action {
	if toolActive {
		return ToolsExit
	}
	s.stalls++
	if s.stalls > s.d.MaxRetries {
		s.stalls = 0
		return FullReset
	}
	return Redeal
}

// ThrowSucceeded clears the consecutive stall count.
func (s *Supervisor) ThrowSucceeded() { s.stalls = 0 }

// Stalls is the current consecutive stall count.
func (s *Supervisor) Stalls() int { return s.stalls }
