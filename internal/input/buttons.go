// Package input debounces the four front-panel buttons into release and
// long-press events.
package input

import (
	"time"

	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/timeutil"
)

// Button identifies a front-panel button.
type Button int

const (
	Green Button = iota
	Blue
	Yellow
	Red
)

func (b Button) String() string {
	switch b {
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	}
	return "unknown"
}

// Kind distinguishes a short press from a held one.
type Kind int

const (
	// Release fires when a button is let go before the long-press time.
	Release Kind = iota
	// LongPress fires once while the button is still held. No Release
	// follows it.
	LongPress
)

func (k Kind) String() string {
	if k == LongPress {
		return "long"
	}
	return "release"
}

// Event is one debounced button action.
type Event struct {
	Button Button
	Kind   Kind
}

// Levels is the raw button state source.
type Levels interface {
	ButtonDown(i int) bool
}

type buttonState struct {
	raw       bool
	rawSince  time.Time
	down      bool
	downSince time.Time
	longFired bool
}

// Reader turns raw levels into events. Poll it once per tick.
type Reader struct {
	levels   Levels
	clock    timeutil.Clock
	debounce time.Duration
	long     time.Duration
	state    [hal.NumButtons]buttonState
}

// NewReader returns a reader with the given debounce and long-press times.
func NewReader(levels Levels, clock timeutil.Clock, debounce, long time.Duration) *Reader {
	r := &Reader{levels: levels, clock: clock, debounce: debounce, long: long}
	now := clock.Now()
	for i := range r.state {
		r.state[i].rawSince = now
	}
	return r
}

// Poll samples every button and returns the events produced this tick.
func (r *Reader) Poll() []Event {
	now := r.clock.Now()
	var events []Event
	for i := range r.state {
		st := &r.state[i]
		raw := r.levels.ButtonDown(i)
		if raw != st.raw {
			st.raw, st.rawSince = raw, now
		}
		stable := now.Sub(st.rawSince) >= r.debounce

		switch {
		case stable && st.raw && !st.down:
			st.down, st.downSince, st.longFired = true, now, false
		case stable && !st.raw && st.down:
			st.down = false
			if !st.longFired {
				events = append(events, Event{Button(i), Release})
			}
		}

		if st.down && !st.longFired && now.Sub(st.downSince) >= r.long {
			st.longFired = true
			events = append(events, Event{Button(i), LongPress})
		}
	}
	return events
}

// Held reports whether a button is currently debounced down.
func (r *Reader) Held(b Button) bool {
	return r.state[b].down
}
