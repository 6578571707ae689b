package dealer

import (
	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/dispense"
	"github.com/banshee-data/dealr/internal/game"
	"github.com/banshee-data/dealr/internal/input"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/motion"
	"github.com/banshee-data/dealr/internal/step"
	"github.com/banshee-data/dealr/internal/supervisor"
)

func (d *Dealer) idle(entering bool) {
	if entering {
		d.ctx = newDealContext()
		d.motion.AllOff()
		d.showMenu()
	}
	if d.tool == TuneColors {
		d.stepColorTuner()
	}
}

func (d *Dealer) stepColorTuner() {
	st, err := d.colors.Step(d.sample)
	if st == step.Working {
		if d.colors.Awaiting() {
			d.show(d.colors.Current().Name())
		} else {
			d.show(game.FaceLookSmall)
		}
		return
	}
	d.finishTool(err)
}

// initializing seeks the reference tag in the dealing direction. Every
// other tag found on the way is fine-adjusted onto, identified and left.
func (d *Dealer) initializing(entering bool) {
	fwd := d.forward()
	if entering {
		d.sup.StartInit()
		d.cls.Reset()
		d.ctx.phase = phaseSeek
		d.show(game.FaceLookBig)
	}
	switch d.ctx.phase {
	case phaseSeek:
		if d.cls.Spike() {
			d.ctx.adjust.start(d)
			d.ctx.phase = phaseAdjust
			return
		}
		d.motion.Rotate(motion.Medium, fwd)

	case phaseMoveOff:
		if d.offTag() {
			d.ctx.phase = phaseSeek
		}

	case phaseAdjust:
		if d.ctx.adjust.poll(d) != step.Done {
			return
		}
		id := d.cls.Stable()
		if id != calibration.Reference {
			monitoring.Verbosef("dealer: passing %s while initializing", id)
			d.beginMoveOff(fwd)
			return
		}
		d.sup.StopInit()
		d.ctx.initialized = true
		d.ctx.confirm(id)
		monitoring.Logf("dealer: reference found, dealing %d rounds of %d", d.ctx.rounds, d.ctx.cardsPerStop)
		d.setState(Advancing)
	}
}

func (d *Dealer) dealing(entering bool) {
	if entering {
		if !d.ctx.initialized {
			d.setState(Initializing)
			return
		}
		d.startDispense()
		return
	}
	switch d.pipe.Step() {
	case step.Working:
		return
	case step.Failed:
		// aborted underneath us, e.g. by a stall recovery
		d.startDispense()
		return
	}
	d.sup.ThrowSucceeded()
	d.ctx.cardDealt = true
	if d.ctx.stopCards > 0 {
		if !d.stopFull() {
			d.startDispense()
			return
		}
		monitoring.Logf("dealer: %d cards dealt at %s, dropping %d more", d.ctx.stopDealt, d.ctx.lastTag, d.ctx.stopCards)
		d.ctx.stopCards = 0
	}
	d.dispenseFinished()
}

// stopFull reports whether a game has used up its chain of dispenses at
// the current stop. Tools deal into a tray and are not limited.
func (d *Dealer) stopFull() bool {
	return d.tool == NoTool && d.ctx.stopDealt >= d.cfg.GetMaxChainedDispenses()
}

func (d *Dealer) startDispense() {
	if d.ctx.stopCards < 1 {
		d.ctx.stopCards = 1
	}
	n := d.ctx.stopCards
	if d.tool == NoTool {
		n = max(min(n, d.cfg.GetMaxChainedDispenses()-d.ctx.stopDealt), 1)
	}
	d.motion.Stop()
	n = d.pipe.Start(n)
	d.show(game.FaceEffort)
	monitoring.Verbosef("dealer: dispensing %d at %s", n, d.ctx.lastTag)
}

// dispenseFinished routes a completed stop to whatever asked for it.
func (d *Dealer) dispenseFinished() {
	switch {
	case d.tool == DealOne:
		d.finishTool(nil)
	case d.tool == TuneThreshold:
		if r := d.threshold.Remaining(); r > 0 {
			d.ctx.stopCards = r
			d.startDispense()
			return
		}
		_, err := d.threshold.Step()
		d.finishTool(err)
	case d.ctx.flip.active:
		d.ctx.flip.phase = flipReturn
		d.setState(Advancing)
	case d.ctx.remainder:
		d.ctx.remainder = false
		d.setState(AwaitingDecision)
	default:
		d.setState(Advancing)
	}
}

func (d *Dealer) advancing(entering bool) {
	if d.ctx.flip.active {
		d.stepFlip()
		return
	}
	if entering {
		d.show(d.directionFace())
		d.beginMoveOff(d.forward())
	}
	switch d.ctx.phase {
	case phaseMoveOff:
		if d.offTag() {
			d.ctx.phase = phaseSeek
		}

	case phaseSeek:
		if d.cls.Spike() {
			d.ctx.adjust.start(d)
			d.ctx.phase = phaseAdjust
			return
		}
		d.motion.Rotate(motion.High, d.forward())

	case phaseAdjust:
		if d.ctx.adjust.poll(d) == step.Done {
			d.arrive(d.cls.Stable())
		}
	}
}

// arrive decides what to do at a newly identified tag.
func (d *Dealer) arrive(id calibration.Identity) {
	c := &d.ctx
	skipRef := id == calibration.Reference && !d.cfg.GetDealToReference()

	if c.postDeal {
		if skipRef {
			d.beginMoveOff(d.forward())
			return
		}
		c.confirm(id)
		if c.advanceLeft--; c.advanceLeft > 0 {
			d.beginMoveOff(d.forward())
			return
		}
		d.setState(AwaitingDecision)
		return
	}

	if id == calibration.Reference && c.lastTag == calibration.Reference {
		d.latch.Set(ErrMissingTag)
		return
	}
	c.confirm(id)
	switch {
	case !c.leftKnown:
		c.leftOfDealer, c.leftKnown = id, true
		monitoring.Verbosef("dealer: %s is left of dealer", id)
	case id == c.leftOfDealer:
		if c.roundsLeft--; c.roundsLeft <= 0 {
			d.beginPostDeal()
			return
		}
	}
	if skipRef {
		d.beginMoveOff(d.forward())
		return
	}
	c.planStop(c.cardsPerStop)
	d.setState(Dealing)
}

func (d *Dealer) beginPostDeal() {
	d.ctx.postDeal = true
	d.motion.Stop()
	monitoring.Logf("dealer: main deal complete, %d cards", d.sessionCards)
	if d.game == nil {
		d.setState(AwaitingDecision)
		return
	}
	d.game.OnMainDealEnd()
	if d.state != Advancing {
		return
	}
	if d.game.RequiresFlipCard() {
		d.beginFlip()
		return
	}
	d.setState(AwaitingDecision)
}

func (d *Dealer) awaiting(entering bool) {
	if entering {
		d.motion.AllOff()
	}
	if d.game != nil && !d.sup.ScreensaverOn() {
		d.game.HandleAwaitDecisionDisplay()
	}
}

// reset stops everything, holds an error face for a moment when there was
// a fault, and returns to the menu the exit asked for.
func (d *Dealer) reset(entering bool) {
	if entering {
		d.motion.AllOff()
		if d.pipe.Phase() != dispense.Idle {
			d.pipe.Abort()
		}
		d.sup.Reset()
		d.endSession()
	}
	if d.ctx.fault != nil && d.clock.Since(d.ctx.faultSince) < d.cfg.GetErrorDisplayDuration() {
		return
	}
	d.latch.Clear()
	switch d.ctx.exit {
	case game.ExitTools:
		if !d.menu.tools {
			d.menu = menu{tools: true}
		}
	case game.ExitGames:
		d.menu.tools = false
	default:
		d.menu = menu{}
	}
	d.game, d.gameName = nil, ""
	d.tool, d.colors, d.threshold = NoTool, nil, nil
	d.setState(Idle)
}

// host is the dealer as a game sees it.
type host struct{ d *Dealer }

func (h host) SetDealPlan(rounds, cardsPerStop int) {
	c := &h.d.ctx
	c.rounds = max(rounds, 1)
	c.roundsLeft = c.rounds
	c.cardsPerStop = max(cardsPerStop, 1)
}

func (h host) StartDeal() {
	if h.d.state != AwaitingDecision || !h.d.ctx.preDeal {
		return
	}
	h.d.ctx.preDeal = false
	h.d.setState(Dealing)
}

func (h host) DealCards(n int) {
	if n < 1 || h.d.state != AwaitingDecision || h.d.ctx.preDeal {
		return
	}
	h.d.ctx.planStop(n)
	h.d.ctx.remainder = true
	h.d.setState(Dealing)
}

func (h host) Advance(n int) {
	if n < 1 || h.d.state != AwaitingDecision || h.d.ctx.preDeal {
		return
	}
	h.d.ctx.advanceLeft = n
	h.d.setState(Advancing)
}

func (h host) GameOver(exit game.Exit) {
	h.d.ctx.exit = exit
	h.d.setState(Reset)
}

func (h host) ActiveIdentity() calibration.Identity { return h.d.ctx.lastTag }

func (h host) Display(text string) { h.d.show(text) }

// menu is the idle selection.
type menu struct {
	tools bool
	index int
}

func (d *Dealer) menuLen() int {
	if d.menu.tools {
		return len(Tools)
	}
	return d.games.Len()
}

func (d *Dealer) showMenu() {
	switch {
	case d.menu.tools:
		d.show(Tools[d.menu.index].Label())
	case d.games.Len() == 0:
		d.show(game.FaceLookBig)
	default:
		d.show(d.games.FormattedName(d.menu.index))
	}
}

func (d *Dealer) menuPress(b input.Button) {
	n := d.menuLen()
	switch b {
	case input.Blue:
		if n > 0 {
			d.menu.index = (d.menu.index + 1) % n
		}
	case input.Yellow:
		if n > 0 {
			d.menu.index = (d.menu.index - 1 + n) % n
		}
	case input.Red:
		d.menu = menu{tools: !d.menu.tools}
	case input.Green:
		if n == 0 {
			return
		}
		var err error
		if d.menu.tools {
			err = d.StartTool(Tools[d.menu.index])
		} else {
			err = d.StartGame(d.menu.index)
		}
		if err != nil {
			monitoring.Logf("dealer: menu: %v", err)
		}
		return
	}
	d.showMenu()
}

// moving reports a state that drives motors on its own.
func (d *Dealer) moving() bool {
	return d.state == Initializing || d.state == Dealing || d.state == Advancing
}

func (d *Dealer) handleButtons() {
	for _, ev := range d.buttons.Poll() {
		woke := d.sup.ScreensaverOn()
		d.sup.Activity()
		monitoring.Verbosef("dealer: %s %s in %s", ev.Button, ev.Kind, d.state)
		if woke {
			if d.state == Idle && d.tool == NoTool {
				d.showMenu()
			}
			continue
		}

		if ev.Kind == input.LongPress {
			switch {
			case ev.Button != input.Red:
			case d.moving():
				d.latch.Set(ErrOperatorAbort)
			case d.state == AwaitingDecision:
				host{d}.GameOver(game.ExitGames)
			}
			continue
		}

		switch {
		case d.tool == TuneColors:
			switch ev.Button {
			case input.Green:
				d.colors.Confirm()
			case input.Red:
				d.colors.Cancel()
			}
		case d.tool == TuneThreshold:
			if ev.Button == input.Red {
				d.threshold.Cancel()
				d.finishTool(calibration.ErrCancelled)
			}
		case d.state == AwaitingDecision && d.game != nil:
			d.game.HandleButtonPress(ev.Button)
		case d.state == Idle:
			d.menuPress(ev.Button)
		}
	}
}

func (d *Dealer) supervise() {
	st := supervisor.Status{
		Throwing:      d.state == Dealing && d.pipe.Throwing(),
		ThrowStarted:  d.pipe.ThrowStarted(),
		AwaitDecision: d.state == AwaitingDecision,
		Idle:          d.state == Idle || d.state == AwaitingDecision,
		ToolActive:    d.tool != NoTool,
	}
	switch d.sup.Check(st) {
	case supervisor.InitExpired:
		d.latch.Set(ErrInitTimeout)
	case supervisor.AdjustExpired:
		d.latch.Set(ErrAdjustTimeout)
	case supervisor.ThrowStalled:
		d.handleStall()
	case supervisor.Screensaver:
		d.show(game.FaceBlink)
	}
}

// handleStall pulls the card back and picks the recovery.
func (d *Dealer) handleStall() {
	monitoring.Logf("dealer: card stalled at %s", d.ctx.lastTag)
	d.pipe.Recover()
	switch d.sup.StallAction(d.tool != NoTool) {
	case supervisor.ToolsExit:
		d.finishTool(ErrThrowStalled)
	case supervisor.Redeal:
		d.recordFault(ErrThrowStalled)
		d.setState(Dealing)
	case supervisor.FullReset:
		d.latch.Set(ErrThrowStalled)
	}
}
