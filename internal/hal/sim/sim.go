// Package sim is a kinematic model of the dealer: a turntable carrying
// coloured tags, a colour sensor over its rim and a card ejector with an
// exit beam. Time comes from a timeutil.Clock, so tests drive it with a
// MockClock and the bench binary with the real one.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// Tag is one coloured marker on the turntable rim.
type Tag struct {
	Identity calibration.Identity
	Angle    float64 // degrees, increasing clockwise
}

// Layout describes the table around the dealer.
type Layout struct {
	Tags      []Tag
	HalfWidth float64 // degrees either side of a tag centre it can be read
	Table     calibration.ColorTable
}

// DefaultLayout puts the reference tag at 0° and four players clockwise
// from it, in the order 2, 5, 3, 7.
func DefaultLayout() Layout {
	return Layout{
		Tags: []Tag{
			{calibration.Reference, 0},
			{2, 72},
			{5, 144},
			{3, 216},
			{7, 288},
		},
		HalfWidth: 6,
		Table:     calibration.DefaultTable(),
	}
}

// Settings are the physical constants of the model.
type Settings struct {
	DegPerPWM   float64       // turntable speed in °/s per PWM count
	Coast       time.Duration // momentum after a stop, at the speed before it
	CardDelay   time.Duration // feed engaged to card reaching the beam
	BeamTime    time.Duration // how long a card blocks the beam
	FeedForward uint8         // servo angle that pushes a card
	AmbientMark uint16        // marked-card sensor with no card present
}

// DefaultSettings match the default dealer configuration.
func DefaultSettings() Settings {
	return Settings{
		DegPerPWM:   0.9,
		Coast:       40 * time.Millisecond,
		CardDelay:   60 * time.Millisecond,
		BeamTime:    30 * time.Millisecond,
		FeedForward: 180,
		AmbientMark: 8,
	}
}

// Dealt records one card leaving the machine.
type Dealt struct {
	Identity calibration.Identity // tag under the sensor, 0 if none
	Angle    float64
	Mark     uint16
}

// Sim implements hal.Hardware.
type Sim struct {
	clock  timeutil.Clock
	layout Layout
	set    Settings

	mu    sync.Mutex
	last  time.Time
	angle float64
	pwm   uint8
	dir   hal.Direction

	flyPWM     uint8
	flyReverse bool
	feed       uint8

	feeding    bool
	nextCard   time.Time
	beamOn     bool
	beamUntil  time.Time
	currMark   uint16
	deck       int
	jammed     bool
	obstructed bool
	marks      []uint16
	dealt      []Dealt

	buttons [hal.NumButtons]bool
	rig     bool
}

var _ hal.Hardware = (*Sim)(nil)

// New returns a turntable at 0° with a 52-card deck.
func New(clock timeutil.Clock, layout Layout, set Settings) *Sim {
	return &Sim{clock: clock, layout: layout, set: set, last: clock.Now(), deck: 52}
}

func norm(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

func (s *Sim) degPerSec() float64 {
	v := float64(s.pwm) * s.set.DegPerPWM
	if s.dir == hal.CCW {
		return -v
	}
	return v
}

// advance integrates the model up to the clock's current time. Caller
// holds mu.
func (s *Sim) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last)
	if dt <= 0 {
		return
	}
	s.angle = norm(s.angle + s.degPerSec()*dt.Seconds())
	s.last = now

	for {
		if s.beamOn {
			if now.Before(s.beamUntil) {
				return
			}
			s.beamOn = false
			s.nextCard = s.beamUntil.Add(s.set.CardDelay)
			continue
		}
		if !s.feeding || s.jammed || s.deck == 0 || now.Before(s.nextCard) {
			return
		}
		s.emit()
		s.beamUntil = s.nextCard.Add(s.set.BeamTime)
	}
}

func (s *Sim) emit() {
	s.beamOn = true
	s.deck--
	s.currMark = s.set.AmbientMark
	if len(s.marks) > 0 {
		s.currMark, s.marks = s.marks[0], s.marks[1:]
	}
	id, _ := s.tagAt(s.angle)
	s.dealt = append(s.dealt, Dealt{Identity: id, Angle: s.angle, Mark: s.currMark})
}

// refreshFeeding re-evaluates whether the ejector is pushing after an
// actuator change. Caller holds mu and has called advance.
func (s *Sim) refreshFeeding() {
	feeding := s.feed == s.set.FeedForward && s.flyPWM > 0 && !s.flyReverse
	if feeding && !s.feeding && !s.beamOn {
		s.nextCard = s.last.Add(s.set.CardDelay)
	}
	s.feeding = feeding
}

func (s *Sim) tagAt(angle float64) (calibration.Identity, bool) {
	for _, t := range s.layout.Tags {
		d := math.Abs(norm(angle-t.Angle+180) - 180)
		if d <= s.layout.HalfWidth {
			return t.Identity, true
		}
	}
	return calibration.Background, false
}

// ReadColor returns twice the centroid proportions of whatever is under the
// sensor, with the centroid's brightness on the clear channel.
func (s *Sim) ReadColor() hal.ColorSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	id, _ := s.tagAt(s.angle)
	c := s.layout.Table[id]
	return hal.ColorSample{R: 2 * c.R, G: 2 * c.G, B: 2 * c.B, C: c.AvgC}
}

func (s *Sim) ReadMarkBrightness() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if s.beamOn {
		return s.currMark
	}
	return s.set.AmbientMark
}

func (s *Sim) CardPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.beamOn || s.obstructed
}

func (s *Sim) RigSwitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rig
}

func (s *Sim) ButtonDown(i int) bool {
	if i < 0 || i >= hal.NumButtons {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons[i]
}

// SetRotation changes speed; stopping adds the coast distance at once.
func (s *Sim) SetRotation(pwm uint8, dir hal.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if pwm == 0 && s.pwm != 0 {
		s.angle = norm(s.angle + s.degPerSec()*s.set.Coast.Seconds())
	}
	s.pwm, s.dir = pwm, dir
	return nil
}

func (s *Sim) SetFlywheel(pwm uint8, reverse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.flyPWM, s.flyReverse = pwm, reverse
	s.refreshFeeding()
	return nil
}

func (s *Sim) SetFeed(angle uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.feed = angle
	s.refreshFeeding()
	return nil
}

// Angle is the turntable position in degrees.
func (s *Sim) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.angle
}

// SetAngle moves the turntable by hand.
func (s *Sim) SetAngle(a float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.angle = norm(a)
}

// Rotating reports whether the motor is driven.
func (s *Sim) Rotating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pwm != 0
}

// Dealt returns every card dispensed so far.
func (s *Sim) Dealt() []Dealt {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return append([]Dealt(nil), s.dealt...)
}

// Deck is the number of cards left.
func (s *Sim) Deck() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck
}

// SetDeck loads n cards.
func (s *Sim) SetDeck(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck = n
}

// QueueMarks sets the marked-card sensor value for the next cards.
func (s *Sim) QueueMarks(v ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, v...)
}

// Jam stops cards from reaching the beam.
func (s *Sim) Jam(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.jammed = on
	if !on && s.feeding && !s.beamOn {
		s.nextCard = s.last.Add(s.set.CardDelay)
	}
}

// ObstructBeam holds the exit beam blocked, as a card left in the throat
// would at power-on.
func (s *Sim) ObstructBeam(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obstructed = on
}

// SetButton sets the raw pressed level of button i.
func (s *Sim) SetButton(i int, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < hal.NumButtons {
		s.buttons[i] = down
	}
}

// SetRig sets the reverse-rig switch.
func (s *Sim) SetRig(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rig = on
}

// Display records every face shown.
type Display struct {
	mu    sync.Mutex
	faces []string
	echo  func(format string, v ...interface{})
}

// NewDisplay returns a recording display that also logs through echo when
// it is non-nil.
func NewDisplay(echo func(format string, v ...interface{})) *Display {
	return &Display{echo: echo}
}

func (d *Display) Show(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.faces); n > 0 && d.faces[n-1] == text {
		return
	}
	d.faces = append(d.faces, text)
	if d.echo != nil {
		d.echo("display: [%s]", text)
	}
}

// Faces returns the distinct faces in the order shown.
func (d *Display) Faces() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.faces...)
}

// Last is the face currently shown.
func (d *Display) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.faces) == 0 {
		return ""
	}
	return d.faces[len(d.faces)-1]
}
