// Package classifier turns raw colour samples into a debounced tag identity
// and a fast brightness-spike flag.
//
// Classification is nearest-centroid over chrominance proportions, so a tag
// reads the same regardless of how far it sits from the sensor. The stable
// identity only moves after K identical raw results in a row. The spike flag
// fires on the first bright sample, long before the debounce settles, and is
// what lets the turntable run fast and still stop on a tag.
package classifier

import (
	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/hal"
)

// DefaultSpikeMultiplier scales background brightness into the spike threshold.
const DefaultSpikeMultiplier = 1.6

// Proportions normalises the colour channels to their share of r+g+b on a
// 0-255 scale. An all-dark sample maps to zero.
func Proportions(s hal.ColorSample) (r, g, b int) {
	sum := int(s.R) + int(s.G) + int(s.B)
	if sum == 0 {
		return 0, 0, 0
	}
	return int(s.R) * 255 / sum, int(s.G) * 255 / sum, int(s.B) * 255 / sum
}

// Nearest returns the identity whose centroid is closest to the sample by
// squared Euclidean distance over the normalised channels. Ties go to the
// lower identity.
func Nearest(table calibration.ColorTable, s hal.ColorSample) calibration.Identity {
	r, g, b := Proportions(s)
	best := calibration.Background
	bestDist := -1
	for i, c := range table {
		dr, dg, db := r-int(c.R), g-int(c.G), b-int(c.B)
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = calibration.Identity(i), d
		}
	}
	return best
}

// Classifier holds the debounce ring and spike state.
type Classifier struct {
	table      calibration.ColorTable
	multiplier float64

	ring   []calibration.Identity
	next   int
	filled int

	stable   calibration.Identity
	previous calibration.Identity
	last     calibration.Identity
	spike    bool
	bright   uint16
}

// New returns a classifier over table requiring debounce identical readings
// before the stable identity changes.
func New(table calibration.ColorTable, debounce int, multiplier float64) *Classifier {
	if debounce < 1 {
		debounce = 1
	}
	if multiplier <= 0 {
		multiplier = DefaultSpikeMultiplier
	}
	return &Classifier{
		table:      table.Clone(),
		multiplier: multiplier,
		ring:       make([]calibration.Identity, debounce),
	}
}

// SetTable swaps the colour table, e.g. after a tuning run.
func (c *Classifier) SetTable(table calibration.ColorTable) {
	c.table = table.Clone()
}

// SpikeThreshold is the brightness at which the spike flag is raised.
func (c *Classifier) SpikeThreshold() float64 {
	if len(c.table) == 0 {
		return 0
	}
	return float64(c.table[calibration.Background].AvgC) * c.multiplier
}

// Update folds one sample into the classifier and returns the stable
// identity afterwards.
func (c *Classifier) Update(s hal.ColorSample) calibration.Identity {
	raw := Nearest(c.table, s)
	c.last = raw
	c.ring[c.next] = raw
	c.next = (c.next + 1) % len(c.ring)
	if c.filled < len(c.ring) {
		c.filled++
	}

	if c.filled == len(c.ring) && raw != c.stable && c.agree(raw) {
		c.previous = c.stable
		c.stable = raw
	}

	c.UpdateBrightness(s.C)
	return c.stable
}

func (c *Classifier) agree(id calibration.Identity) bool {
	for _, v := range c.ring {
		if v != id {
			return false
		}
	}
	return true
}

// UpdateBrightness runs the spike detector alone. The flag is raised at or
// above the threshold and cleared only below it.
func (c *Classifier) UpdateBrightness(v uint16) bool {
	c.bright = v
	t := c.SpikeThreshold()
	switch {
	case !c.spike && float64(v) >= t:
		c.spike = true
	case c.spike && float64(v) < t:
		c.spike = false
	}
	return c.spike
}

// Stable is the debounced identity.
func (c *Classifier) Stable() calibration.Identity { return c.stable }

// Previous is the stable identity before the last change.
func (c *Classifier) Previous() calibration.Identity { return c.previous }

// Raw is the most recent undebounced classification.
func (c *Classifier) Raw() calibration.Identity { return c.last }

// Spike reports the brightness-spike flag.
func (c *Classifier) Spike() bool { return c.spike }

// Brightness is the last clear-channel reading.
func (c *Classifier) Brightness() uint16 { return c.bright }

// Reset clears the debounce history and spike flag. The stable identity
// returns to background.
func (c *Classifier) Reset() {
	for i := range c.ring {
		c.ring[i] = calibration.Background
	}
	c.next, c.filled = 0, 0
	c.stable, c.previous, c.last = calibration.Background, calibration.Background, calibration.Background
	c.spike = false
	c.bright = 0
}
