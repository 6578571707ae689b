package calibration

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/step"
)

// ErrCancelled is reported when the operator backs out of a tuning run.
var ErrCancelled = errors.New("tuning cancelled")

// ColorTuner walks every identity in order: it waits for the operator to
// place the tag and confirm, averages a fixed number of samples and
// persists the normalised centroid. Identity 0 is measured over the bare
// turntable in the same way.
type ColorTuner struct {
	store   *Store
	samples int

	current    Identity
	collecting bool
	cancelled  bool
	r, g, b, c []float64
}

// NewColorTuner returns a tuner averaging samples readings per identity.
func NewColorTuner(store *Store, samples int) *ColorTuner {
	if samples < 1 {
		samples = 1
	}
	return &ColorTuner{store: store, samples: samples}
}

// Current is the identity being tuned.
func (t *ColorTuner) Current() Identity { return t.current }

// Awaiting reports whether the tuner is waiting for confirmation.
func (t *ColorTuner) Awaiting() bool { return !t.collecting && !t.cancelled }

// Confirm starts sampling the current identity.
func (t *ColorTuner) Confirm() {
	if t.cancelled || t.collecting {
		return
	}
	t.collecting = true
	t.r, t.g, t.b, t.c = t.r[:0], t.g[:0], t.b[:0], t.c[:0]
}

// Cancel abandons the run. Identities already finished stay persisted;
// the one in progress is discarded.
func (t *ColorTuner) Cancel() { t.cancelled = true }

// Step feeds one sensor sample.
func (t *ColorTuner) Step(s hal.ColorSample) (step.Status, error) {
	if t.cancelled {
		return step.Failed, ErrCancelled
	}
	if int(t.current) >= NumIdentities {
		return step.Done, nil
	}
	if !t.collecting {
		return step.Working, nil
	}

	t.r = append(t.r, float64(s.R))
	t.g = append(t.g, float64(s.G))
	t.b = append(t.b, float64(s.B))
	t.c = append(t.c, float64(s.C))
	if len(t.r) < t.samples {
		return step.Working, nil
	}

	c := averageCentroid(t.r, t.g, t.b, t.c)
	monitoring.Logf("calibration: %s = %+v (clear stddev %.1f)", t.current.Name(), c, stat.StdDev(t.c, nil))
	if err := t.store.SetCentroid(t.current, c); err != nil {
		return step.Failed, err
	}

	t.collecting = false
	t.current++
	if int(t.current) >= NumIdentities {
		return step.Done, nil
	}
	return step.Working, nil
}

// averageCentroid converts raw channel samples into chrominance proportions
// on a 0-255 scale plus mean brightness.
func averageCentroid(r, g, b, c []float64) Centroid {
	mr, mg, mb := stat.Mean(r, nil), stat.Mean(g, nil), stat.Mean(b, nil)
	out := Centroid{AvgC: clampU16(stat.Mean(c, nil))}
	if sum := mr + mg + mb; sum > 0 {
		out.R = clampU16(mr * 255 / sum)
		out.G = clampU16(mg * 255 / sum)
		out.B = clampU16(mb * 255 / sum)
	}
	return out
}

func clampU16(v float64) uint16 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

// ThresholdTuner records the brightest marked-card reading over a fixed
// number of dealt cards and stores it plus a margin as the new threshold.
// The dealer drives the dispensing; the tuner only observes.
type ThresholdTuner struct {
	store  *Store
	cards  int
	margin int

	dealt     int
	peak      uint16
	cancelled bool
	saved     bool
	result    uint16
}

// NewThresholdTuner returns a tuner dealing cards cards.
func NewThresholdTuner(store *Store, cards, margin int) *ThresholdTuner {
	if cards < 1 {
		cards = 1
	}
	return &ThresholdTuner{store: store, cards: cards, margin: margin}
}

// Observe records one marked-card brightness reading.
func (t *ThresholdTuner) Observe(v uint16) {
	if v > t.peak {
		t.peak = v
	}
}

// CardDealt counts a card that left the exit beam.
func (t *ThresholdTuner) CardDealt() { t.dealt++ }

// Remaining is the number of cards still to deal.
func (t *ThresholdTuner) Remaining() int { return max(t.cards-t.dealt, 0) }

// Peak is the brightest reading seen so far.
func (t *ThresholdTuner) Peak() uint16 { return t.peak }

// Cancel abandons the run without writing.
func (t *ThresholdTuner) Cancel() { t.cancelled = true }

// Result is the persisted threshold once Step returned Done.
func (t *ThresholdTuner) Result() uint16 { return t.result }

// Step persists the threshold once every card has been dealt.
func (t *ThresholdTuner) Step() (step.Status, error) {
	if t.cancelled {
		return step.Failed, ErrCancelled
	}
	if t.dealt < t.cards {
		return step.Working, nil
	}
	if t.saved {
		return step.Done, nil
	}
	v := clampU16(float64(t.peak) + float64(t.margin))
	if err := t.store.SetThreshold(v); err != nil {
		return step.Failed, err
	}
	t.result = v
	t.saved = true
	monitoring.Logf("calibration: threshold = %d (peak %d)", v, t.peak)
	return step.Done, nil
}
