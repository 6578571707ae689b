package dealer

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/game"
)

// State is the orchestrator's top-level mode.
type State int

const (
	Idle State = iota
	Initializing
	Dealing
	Advancing
	AwaitingDecision
	Reset
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Initializing:
		return "INITIALIZING"
	case Dealing:
		return "DEALING"
	case Advancing:
		return "ADVANCING"
	case AwaitingDecision:
		return "AWAITING_DECISION"
	case Reset:
		return "RESET"
	}
	return "UNKNOWN"
}

// Tool is a maintenance procedure run from the tools menu.
type Tool int

const (
	NoTool Tool = iota
	DealOne
	TuneColors
	TuneThreshold
)

// Tools lists the tools menu in order.
var Tools = []Tool{DealOne, TuneColors, TuneThreshold}

func (t Tool) String() string {
	return [...]string{"none", "deal-one", "tune-colors", "tune-threshold"}[t]
}

// Label is the tool's menu text.
func (t Tool) Label() string {
	return [...]string{"", "1CRD", "TUNE", "MARK"}[t]
}

// Fatal errors. Any of these latched stops all motion and resets to IDLE.
var (
	ErrInitTimeout   = errors.New("reference tag not found in time")
	ErrAdjustTimeout = errors.New("fine adjust did not settle on a tag")
	ErrMissingTag    = errors.New("reference tag seen twice with no player tag between")
	ErrThrowStalled  = errors.New("card stalled in the ejector")
	ErrOperatorAbort = errors.New("aborted by operator")
)

var (
	// ErrBeamBlocked is reported at boot while a card sits in the exit beam.
	ErrBeamBlocked = errors.New("exit beam blocked")
	// ErrBusy is returned when a game or tool is requested outside IDLE.
	ErrBusy = errors.New("dealer busy")
)

// Latch holds the first fatal error raised during a tick. Later errors are
// dropped until the reset clears it.
type Latch struct {
	err error
}

// Set latches err unless an error is already held. It reports whether err
// was kept.
func (l *Latch) Set(err error) bool {
	if err == nil || l.err != nil {
		return false
	}
	l.err = err
	return true
}

// Err is the latched error, nil when clear.
func (l *Latch) Err() error { return l.err }

// Clear releases the latch.
func (l *Latch) Clear() { l.err = nil }

// Journal records sessions for later review. Errors are logged and never
// interrupt dealing.
type Journal interface {
	StartSession(id uuid.UUID, kind, name string, at time.Time) error
	RecordCard(id uuid.UUID, seq int, tag calibration.Identity, peak uint16, marked bool, at time.Time) error
	RecordFault(id uuid.UUID, fault string, at time.Time) error
	EndSession(id uuid.UUID, outcome string, cards int, at time.Time) error
}

type nopJournal struct{}

func (nopJournal) StartSession(uuid.UUID, string, string, time.Time) error { return nil }

func (nopJournal) RecordCard(uuid.UUID, int, calibration.Identity, uint16, bool, time.Time) error {
	return nil
}

func (nopJournal) RecordFault(uuid.UUID, string, time.Time) error { return nil }

func (nopJournal) EndSession(uuid.UUID, string, int, time.Time) error { return nil }

// motionPhase is the position within a seek: leave the current tag, run
// to the next spike, then fine adjust onto it.
type motionPhase int

const (
	phaseSeek motionPhase = iota
	phaseMoveOff
	phaseAdjust
)

// dealContext is everything that belongs to one game or tool run. It is
// replaced wholesale on entry to IDLE.
type dealContext struct {
	initialized bool
	cardDealt   bool
	postDeal    bool
	preDeal     bool
	remainder   bool
	reverse     bool

	rounds       int
	roundsLeft   int
	cardsPerStop int
	stopCards    int
	stopDealt    int
	advanceLeft  int

	leftOfDealer calibration.Identity
	leftKnown    bool
	lastTag      calibration.Identity
	// seen is -1 for an identity not yet visited, else the visit count.
	seen [calibration.NumIdentities]int

	phase  motionPhase
	adjust fineAdjust
	flip   flipSequence

	exit       game.Exit
	fault      error
	faultSince time.Time
}

func newDealContext() dealContext {
	c := dealContext{rounds: 1, roundsLeft: 1, cardsPerStop: 1}
	for i := range c.seen {
		c.seen[i] = -1
	}
	return c
}

// planStop starts a fresh run of n dispenses where the dealer points.
func (c *dealContext) planStop(n int) {
	c.stopCards = n
	c.stopDealt = 0
	c.cardDealt = false
}

// confirm records arrival at id.
func (c *dealContext) confirm(id calibration.Identity) {
	c.lastTag = id
	if id < 0 || int(id) >= len(c.seen) {
		return
	}
	if c.seen[id] < 0 {
		c.seen[id] = 0
	}
	c.seen[id]++
}
