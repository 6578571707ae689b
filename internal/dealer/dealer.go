// Package dealer is the orchestrator: a single-threaded state machine
// stepped once per tick that finds the reference tag, walks the turntable
// from player to player, dispenses at each stop and hands control to the
// game rules between deals.
//
// Each tick runs in a fixed order: latched errors are handled first, then
// the current state's step, then button events, then the deadline and
// screensaver checks. Nothing in a step blocks longer than a motor settle.
package dealer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/classifier"
	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/dispense"
	"github.com/banshee-data/dealr/internal/game"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/input"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/motion"
	"github.com/banshee-data/dealr/internal/supervisor"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// beamPoll is how often Boot rechecks a blocked exit beam.
const beamPoll = 250 * time.Millisecond

// historySize is the number of brightness samples kept for the debug chart.
const historySize = 512

// Options wires a Dealer. Clock, Config and Display default to the real
// clock, the compiled-in defaults and a discarding display.
type Options struct {
	Clock   timeutil.Clock
	Config  *config.DealerConfig
	Store   *calibration.Store
	Display hal.Display
	Games   *game.Registry
	Journal Journal
}

// Dealer owns the hardware and every per-deal flag. All methods except
// Snapshot, History and Enqueue must be called from the goroutine running
// Step.
type Dealer struct {
	hw      hal.Hardware
	clock   timeutil.Clock
	cfg     *config.DealerConfig
	display hal.Display
	store   *calibration.Store
	games   *game.Registry
	journal Journal

	motion  *motion.Controller
	pipe    *dispense.Pipeline
	cls     *classifier.Classifier
	sup     *supervisor.Supervisor
	buttons *input.Reader

	latch   Latch
	lastErr error
	state   State
	stepped State
	reenter bool
	sample  hal.ColorSample

	ctx  dealContext
	menu menu

	game      game.Game
	gameName  string
	tool      Tool
	colors    *calibration.ColorTuner
	threshold *calibration.ThresholdTuner

	session      uuid.UUID
	sessionCards int
	cardsTotal   int
	face         string

	cmds chan func(*Dealer)
	snap atomic.Pointer[Status]

	histMu   sync.Mutex
	history  []uint16
	histNext int
}

type nopDisplay struct{}

func (nopDisplay) Show(string) {}

// New builds a dealer in IDLE. The calibration store is required.
func New(hw hal.Hardware, opts Options) (*Dealer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dealer: calibration store required")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Config == nil {
		opts.Config = config.DefaultDealerConfig()
	}
	if opts.Display == nil {
		opts.Display = nopDisplay{}
	}
	if opts.Games == nil {
		opts.Games = &game.Registry{}
	}
	if opts.Journal == nil {
		opts.Journal = nopJournal{}
	}
	cfg := opts.Config

	d := &Dealer{
		hw:      hw,
		clock:   opts.Clock,
		cfg:     cfg,
		display: opts.Display,
		store:   opts.Store,
		games:   opts.Games,
		journal: opts.Journal,
		stepped: State(-1),
		ctx:     newDealContext(),
		cmds:    make(chan func(*Dealer), 16),
		history: make([]uint16, 0, historySize),
	}
	d.motion = motion.New(hw, d.clock, motion.SettingsFromConfig(cfg))
	d.pipe = dispense.New(d.motion, hw, d.clock, dispense.SettingsFromConfig(cfg))
	d.pipe.OnCard(d.onCard)
	d.cls = classifier.New(d.store.Table(), cfg.GetDebounceCount(), cfg.GetSpikeMultiplier())
	d.sup = supervisor.New(d.clock, supervisor.DeadlinesFromConfig(cfg))
	d.buttons = input.NewReader(hw, d.clock, cfg.GetButtonDebounce(), cfg.GetLongPress())
	d.publish()
	return d, nil
}

// Boot runs the motor self test when configured and then waits for the
// exit beam to clear. A card left in the throat would otherwise be counted
// as the first card of the first deal.
func (d *Dealer) Boot(ctx context.Context) error {
	monitoring.Logf("dealer: booting, %d games", d.games.Len())
	if d.cfg.GetMotorSelfTest() {
		d.motion.SelfTest()
	}
	warned := false
	for d.hw.CardPresent() {
		if !warned {
			monitoring.Logf("dealer: %v, clear the card throat", ErrBeamBlocked)
			d.show(game.FaceCard)
			warned = true
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrBeamBlocked, ctx.Err())
		default:
		}
		d.clock.Sleep(beamPoll)
	}
	d.show(game.FaceLookBig)
	return nil
}

// Run steps the dealer on the configured tick until ctx is cancelled, then
// stops every motor.
func (d *Dealer) Run(ctx context.Context) error {
	t := d.clock.NewTicker(d.cfg.GetTickInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.motion.AllOff()
			return ctx.Err()
		case <-t.C():
			d.Step()
		}
	}
}

// Enqueue schedules fn to run on the loop goroutine at the start of the
// next tick. It is safe to call from any goroutine.
func (d *Dealer) Enqueue(fn func(*Dealer)) error {
	select {
	case d.cmds <- fn:
		return nil
	default:
		return ErrBusy
	}
}

// Step runs one tick.
func (d *Dealer) Step() {
	d.drain()
	d.sense()
	d.checkLatch()
	d.stepState()
	d.handleButtons()
	d.supervise()
	d.publish()
}

func (d *Dealer) drain() {
	for {
		select {
		case fn := <-d.cmds:
			fn(d)
		default:
			return
		}
	}
}

func (d *Dealer) sense() {
	d.sample = d.hw.ReadColor()
	d.cls.Update(d.sample)
	d.record(d.sample.C)
}

func (d *Dealer) setState(s State) {
	if s == d.state {
		d.reenter = true
		return
	}
	monitoring.Verbosef("dealer: %s -> %s", d.state, s)
	d.state = s
}

func (d *Dealer) stepState() {
	entering := d.state != d.stepped || d.reenter
	d.stepped, d.reenter = d.state, false
	if entering {
		d.sup.Activity()
	}
	switch d.state {
	case Idle:
		d.idle(entering)
	case Initializing:
		d.initializing(entering)
	case Dealing:
		d.dealing(entering)
	case Advancing:
		d.advancing(entering)
	case AwaitingDecision:
		d.awaiting(entering)
	case Reset:
		d.reset(entering)
	}
}

func (d *Dealer) show(text string) {
	if text == d.face {
		return
	}
	d.face = text
	d.display.Show(text)
}

// checkLatch turns a newly latched error into a reset.
func (d *Dealer) checkLatch() {
	err := d.latch.Err()
	if err == nil || d.ctx.fault != nil {
		return
	}
	d.ctx.fault = err
	d.ctx.faultSince = d.clock.Now()
	d.ctx.exit = game.ExitFull
	d.lastErr = err
	monitoring.Logf("dealer: fault in %s at %s: %v", d.state, d.ctx.lastTag, err)
	d.motion.AllOff()
	d.pipe.Abort()
	d.show(game.FaceError)
	d.recordFault(err)
	d.setState(Reset)
}

// Abort latches err as a fatal error; the next tick resets.
func (d *Dealer) Abort(err error) { d.latch.Set(err) }

// State is the current top-level state.
func (d *Dealer) State() State { return d.state }

// LastError is the most recent fatal error, kept after the reset.
func (d *Dealer) LastError() error { return d.lastErr }

// Classifier exposes the tag classifier for diagnostics.
func (d *Dealer) Classifier() *classifier.Classifier { return d.cls }

// StartGame picks the game at index i. It must be called in IDLE.
func (d *Dealer) StartGame(i int) error {
	if d.state != Idle || d.tool != NoTool {
		return ErrBusy
	}
	g, err := d.games.New(i)
	if err != nil {
		return err
	}
	d.ctx = newDealContext()
	d.ctx.reverse = d.hw.RigSwitch()
	d.ctx.exit = game.ExitGames
	d.game, d.gameName = g, d.games.FormattedName(i)
	d.beginSession("game", d.gameName)
	monitoring.Logf("dealer: starting %s, direction %s", d.gameName, d.forward())

	startNow := g.Initialize(host{d})
	if d.state != Idle {
		return nil
	}
	if startNow {
		d.setState(Dealing)
		return nil
	}
	d.ctx.preDeal = true
	d.setState(AwaitingDecision)
	return nil
}

// StartTool runs a maintenance tool. It must be called in IDLE.
func (d *Dealer) StartTool(t Tool) error {
	if d.state != Idle || d.tool != NoTool {
		return ErrBusy
	}
	switch t {
	case DealOne, TuneColors, TuneThreshold:
	default:
		return fmt.Errorf("unknown tool %d", t)
	}
	d.ctx = newDealContext()
	d.ctx.exit = game.ExitTools
	d.ctx.initialized = true
	d.tool = t
	d.beginSession("tool", t.String())
	monitoring.Logf("dealer: starting tool %s", t)

	switch t {
	case DealOne:
		d.ctx.planStop(1)
		d.setState(Dealing)
	case TuneColors:
		d.colors = calibration.NewColorTuner(d.store, d.cfg.GetTuningSamples())
		d.show(d.colors.Current().Name())
	case TuneThreshold:
		d.threshold = calibration.NewThresholdTuner(d.store, d.cfg.GetThresholdTuningCards(), d.cfg.GetThresholdMargin())
		d.ctx.planStop(d.threshold.Remaining())
		d.setState(Dealing)
	}
	return nil
}

// finishTool ends the active tool and returns to the tools menu.
func (d *Dealer) finishTool(err error) {
	if err != nil {
		monitoring.Logf("dealer: tool %s: %v", d.tool, err)
		d.recordFault(err)
	}
	if d.tool == TuneColors {
		d.cls.SetTable(d.store.Table())
	}
	d.pipe.Abort()
	d.ctx.exit = game.ExitTools
	d.setState(Reset)
}

func (d *Dealer) beginSession(kind, name string) {
	d.session = uuid.New()
	d.sessionCards = 0
	if err := d.journal.StartSession(d.session, kind, name, d.clock.Now()); err != nil {
		monitoring.Logf("dealer: journal: %v", err)
	}
}

func (d *Dealer) endSession() {
	if d.session == uuid.Nil {
		return
	}
	outcome := d.ctx.exit.String()
	if d.ctx.fault != nil {
		outcome = "fault: " + d.ctx.fault.Error()
	}
	if err := d.journal.EndSession(d.session, outcome, d.sessionCards, d.clock.Now()); err != nil {
		monitoring.Logf("dealer: journal: %v", err)
	}
	d.session = uuid.Nil
}

func (d *Dealer) recordFault(err error) {
	if d.session == uuid.Nil {
		return
	}
	if jerr := d.journal.RecordFault(d.session, err.Error(), d.clock.Now()); jerr != nil {
		monitoring.Logf("dealer: journal: %v", jerr)
	}
}

// onCard runs once per card leaving the exit beam.
func (d *Dealer) onCard(peak uint16) {
	d.ctx.stopCards--
	d.ctx.stopDealt++
	d.cardsTotal++
	d.sessionCards++
	marked := peak >= d.store.Threshold()
	if marked {
		d.show(game.FaceMoney)
		monitoring.Logf("dealer: marked card to %s (peak %d)", d.ctx.lastTag, peak)
	} else {
		monitoring.Verbosef("dealer: card to %s (peak %d)", d.ctx.lastTag, peak)
	}
	if d.threshold != nil {
		d.threshold.Observe(peak)
		d.threshold.CardDealt()
	}
	if d.session != uuid.Nil {
		if err := d.journal.RecordCard(d.session, d.sessionCards, d.ctx.lastTag, peak, marked, d.clock.Now()); err != nil {
			monitoring.Logf("dealer: journal: %v", err)
		}
	}
}

func (d *Dealer) record(v uint16) {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	if len(d.history) < historySize {
		d.history = append(d.history, v)
		return
	}
	d.history[d.histNext] = v
	d.histNext = (d.histNext + 1) % historySize
}

// History returns recent clear-channel brightness samples, oldest first.
func (d *Dealer) History() []uint16 {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	out := make([]uint16, 0, len(d.history))
	out = append(out, d.history[d.histNext:]...)
	return append(out, d.history[:d.histNext]...)
}
