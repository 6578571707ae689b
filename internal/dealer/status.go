package dealer

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dealr/internal/calibration"
)

// Status is a point-in-time copy of the dealer for the debug server.
type Status struct {
	State          string    `json:"state"`
	Game           string    `json:"game,omitempty"`
	Tool           string    `json:"tool,omitempty"`
	Session        string    `json:"session,omitempty"`
	Face           string    `json:"face"`
	Stable         string    `json:"stable"`
	Previous       string    `json:"previous"`
	Raw            string    `json:"raw"`
	Spike          bool      `json:"spike"`
	Brightness     uint16    `json:"brightness"`
	SpikeThreshold float64   `json:"spike_threshold"`
	Direction      string    `json:"direction"`
	Rotating       bool      `json:"rotating"`
	Dispense       string    `json:"dispense"`
	Initialized    bool      `json:"initialized"`
	PostDeal       bool      `json:"post_deal"`
	CardDealt      bool      `json:"card_dealt"`
	StopDealt      int       `json:"stop_dealt"`
	RoundsLeft     int       `json:"rounds_left"`
	LeftOfDealer   string    `json:"left_of_dealer,omitempty"`
	ActiveTag      string    `json:"active_tag"`
	Seen           []int     `json:"seen"`
	SessionCards   int       `json:"session_cards"`
	CardsTotal     int       `json:"cards_total"`
	Threshold      uint16    `json:"mark_threshold"`
	TuningPeak     uint16    `json:"tuning_peak,omitempty"`
	Error          string    `json:"error,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Updated        time.Time `json:"updated"`
}

func (d *Dealer) publish() {
	c := &d.ctx
	s := &Status{
		State:          d.state.String(),
		Game:           d.gameName,
		Face:           d.face,
		Stable:         d.cls.Stable().Name(),
		Previous:       d.cls.Previous().Name(),
		Raw:            d.cls.Raw().Name(),
		Spike:          d.cls.Spike(),
		Brightness:     d.cls.Brightness(),
		SpikeThreshold: d.cls.SpikeThreshold(),
		Direction:      d.motion.Direction().String(),
		Rotating:       d.motion.Rotating(),
		Dispense:       d.pipe.Phase().String(),
		Initialized:    c.initialized,
		PostDeal:       c.postDeal,
		CardDealt:      c.cardDealt,
		StopDealt:      c.stopDealt,
		RoundsLeft:     c.roundsLeft,
		ActiveTag:      c.lastTag.Name(),
		Seen:           append([]int(nil), c.seen[:]...),
		SessionCards:   d.sessionCards,
		CardsTotal:     d.cardsTotal,
		Threshold:      d.store.Threshold(),
		Updated:        d.clock.Now(),
	}
	if d.tool != NoTool {
		s.Tool = d.tool.String()
	}
	if d.session != uuid.Nil {
		s.Session = d.session.String()
	}
	if d.threshold != nil {
		s.TuningPeak = d.threshold.Peak()
	}
	if c.leftKnown {
		s.LeftOfDealer = c.leftOfDealer.Name()
	}
	if err := d.latch.Err(); err != nil {
		s.Error = err.Error()
	}
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	d.snap.Store(s)
}

// Snapshot returns the status published at the end of the last tick. It is
// safe to call from any goroutine.
func (d *Dealer) Snapshot() Status {
	if s := d.snap.Load(); s != nil {
		return *s
	}
	return Status{State: Idle.String()}
}

// RoundProgress is the visit count per identity, -1 for never seen.
func (s Status) RoundProgress(id calibration.Identity) int {
	if id < 0 || int(id) >= len(s.Seen) {
		return -1
	}
	return s.Seen[id]
}
