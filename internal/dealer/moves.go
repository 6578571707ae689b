package dealer

import (
	"time"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/game"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/motion"
	"github.com/banshee-data/dealr/internal/step"
)

// forward is the dealing direction, reversed by the rig switch.
func (d *Dealer) forward() hal.Direction {
	if d.ctx.reverse {
		return hal.CCW
	}
	return hal.CW
}

func (d *Dealer) directionFace() string {
	if d.forward() == hal.CW {
		return game.FaceLeft
	}
	return game.FaceRight
}

// beginMoveOff starts leaving the current tag.
func (d *Dealer) beginMoveOff(dir hal.Direction) {
	d.ctx.phase = phaseMoveOff
	d.motion.Rotate(motion.Medium, dir)
}

// offTag reports the sensor is over settled background with the spike
// flag down.
func (d *Dealer) offTag() bool {
	return d.cls.Stable() == calibration.Background && !d.cls.Spike()
}

// fineAdjust backs slowly onto a tag the turntable coasted into. It is
// finished when the debounced identity is no longer background.
type fineAdjust struct {
	dir hal.Direction
}

func (a *fineAdjust) start(d *Dealer) {
	d.sup.StartAdjust()
	a.dir = d.motion.Direction().Opposite()
	d.motion.Stop()
	d.motion.Rotate(motion.Low, a.dir)
}

func (a *fineAdjust) poll(d *Dealer) step.Status {
	if d.cls.Stable() == calibration.Background {
		return step.Working
	}
	d.motion.Stop()
	d.sup.StopAdjust()
	return step.Done
}

// maxFlipDepth bounds the tags a flip sequence can return to.
const maxFlipDepth = 4

// returnStack remembers the tags flip sequences must come back to.
type returnStack struct {
	items [maxFlipDepth]calibration.Identity
	n     int
}

func (s *returnStack) push(id calibration.Identity) bool {
	if s.n == len(s.items) {
		return false
	}
	s.items[s.n] = id
	s.n++
	return true
}

func (s *returnStack) peek() (calibration.Identity, bool) {
	if s.n == 0 {
		return calibration.Background, false
	}
	return s.items[s.n-1], true
}

func (s *returnStack) pop() (calibration.Identity, bool) {
	id, ok := s.peek()
	if ok {
		s.n--
	}
	return id, ok
}

func (s *returnStack) len() int { return s.n }

type flipPhase int

const (
	flipLeave flipPhase = iota
	flipArc
	flipDeal
	flipReturn
	flipSkip
	flipAdjust
)

// flipSequence turns one card face up in the gap after the current tag
// and comes back to it.
type flipSequence struct {
	active bool
	phase  flipPhase
	since  time.Time
	stack  returnStack
}

func (d *Dealer) beginFlip() {
	f := &d.ctx.flip
	if !f.stack.push(d.ctx.lastTag) {
		monitoring.Logf("dealer: flip nested deeper than %d, skipped", maxFlipDepth)
		d.setState(AwaitingDecision)
		return
	}
	f.active = true
	f.phase = flipLeave
	d.beginMoveOff(d.forward())
}

// stepFlip runs the flip sequence while ADVANCING. The card itself is
// dealt from DEALING, which hands back with phase flipReturn.
func (d *Dealer) stepFlip() {
	f := &d.ctx.flip
	back := d.forward().Opposite()
	switch f.phase {
	case flipLeave:
		if d.offTag() {
			f.phase, f.since = flipArc, d.clock.Now()
		}

	case flipArc:
		if d.clock.Since(f.since) < d.cfg.GetFlipArcDuration() || !d.offTag() {
			return
		}
		d.motion.Stop()
		d.show(game.FaceFlip)
		f.phase = flipDeal
		d.ctx.planStop(1)
		d.setState(Dealing)

	case flipReturn:
		if d.cls.Spike() {
			d.ctx.adjust.start(d)
			f.phase = flipAdjust
			return
		}
		d.motion.Rotate(motion.Medium, back)

	case flipSkip:
		if d.offTag() {
			f.phase = flipReturn
		}

	case flipAdjust:
		if d.ctx.adjust.poll(d) != step.Done {
			return
		}
		id := d.cls.Stable()
		if want, _ := f.stack.peek(); id != want {
			monitoring.Logf("dealer: flip return found %s, want %s", id, want)
			f.phase = flipSkip
			d.motion.Rotate(motion.Medium, back)
			return
		}
		f.stack.pop()
		d.ctx.confirm(id)
		if f.stack.len() > 0 {
			f.phase = flipSkip
			d.motion.Rotate(motion.Medium, back)
			return
		}
		f.active = false
		d.setState(AwaitingDecision)
	}
}
