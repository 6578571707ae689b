package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/hal"
	"github.com/banshee-data/dealr/internal/timeutil"
)

func newSim() (*Sim, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	return New(clock, DefaultLayout(), DefaultSettings()), clock
}

func TestColorUnderSensor(t *testing.T) {
	s, _ := newSim()
	table := calibration.DefaultTable()

	assert.Equal(t, table[1].AvgC, s.ReadColor().C, "reference tag at 0°")

	s.SetAngle(36)
	assert.Equal(t, hal.ColorSample{R: 2 * table[0].R, G: 2 * table[0].G, B: 2 * table[0].B, C: table[0].AvgC}, s.ReadColor())

	s.SetAngle(146)
	got := s.ReadColor()
	assert.Equal(t, 2*table[5].G, got.G)

	s.SetAngle(-3)
	assert.Equal(t, 2*table[1].R, s.ReadColor().R, "wraps below zero")
}

func TestRotationAndCoast(t *testing.T) {
	s, clock := newSim()
	require.NoError(t, s.SetRotation(200, hal.CW))
	clock.Advance(100 * time.Millisecond)
	assert.InDelta(t, 18.0, s.Angle(), 1e-6)

	require.NoError(t, s.SetRotation(0, hal.CW))
	assert.InDelta(t, 18.0+180*0.04, s.Angle(), 1e-6)
	clock.Advance(time.Second)
	assert.InDelta(t, 25.2, s.Angle(), 1e-6)
	assert.False(t, s.Rotating())

	require.NoError(t, s.SetRotation(100, hal.CCW))
	clock.Advance(time.Second)
	assert.InDelta(t, 25.2-90, s.Angle()-360, 1e-6)
}

func TestCardEmission(t *testing.T) {
	s, clock := newSim()
	s.SetAngle(72)
	s.QueueMarks(700)

	require.NoError(t, s.SetFeed(180))
	clock.Advance(100 * time.Millisecond)
	assert.False(t, s.CardPresent(), "flywheel still off")

	require.NoError(t, s.SetFlywheel(255, false))
	clock.Advance(55 * time.Millisecond)
	assert.False(t, s.CardPresent())
	clock.Advance(10 * time.Millisecond)
	assert.True(t, s.CardPresent())
	assert.Equal(t, uint16(700), s.ReadMarkBrightness())
	clock.Advance(30 * time.Millisecond)
	assert.False(t, s.CardPresent())
	assert.Equal(t, uint16(8), s.ReadMarkBrightness())

	require.NoError(t, s.SetFeed(90))
	clock.Advance(time.Second)

	dealt := s.Dealt()
	require.Len(t, dealt, 1)
	assert.Equal(t, calibration.Identity(2), dealt[0].Identity)
	assert.Equal(t, uint16(700), dealt[0].Mark)
	assert.Equal(t, 51, s.Deck())
}

func TestJamAndObstruction(t *testing.T) {
	s, clock := newSim()
	s.Jam(true)
	s.SetFlywheel(255, false)
	s.SetFeed(180)
	clock.Advance(time.Second)
	assert.False(t, s.CardPresent())
	assert.Empty(t, s.Dealt())

	s.ObstructBeam(true)
	assert.True(t, s.CardPresent())
	s.ObstructBeam(false)

	s.Jam(false)
	clock.Advance(70 * time.Millisecond)
	assert.True(t, s.CardPresent())
}

func TestEmptyDeckNeverEmits(t *testing.T) {
	s, clock := newSim()
	s.SetDeck(0)
	s.SetFlywheel(255, false)
	s.SetFeed(180)
	clock.Advance(time.Second)
	assert.False(t, s.CardPresent())
}

func TestInputs(t *testing.T) {
	s, _ := newSim()
	s.SetButton(2, true)
	s.SetRig(true)
	assert.True(t, s.ButtonDown(2))
	assert.False(t, s.ButtonDown(9))
	assert.True(t, s.RigSwitch())
}

func TestDisplayDropsRepeats(t *testing.T) {
	var logged []string
	d := NewDisplay(func(format string, v ...interface{}) { logged = append(logged, format) })
	d.Show("O  O")
	d.Show("O  O")
	d.Show("X  X")
	assert.Equal(t, []string{"O  O", "X  X"}, d.Faces())
	assert.Equal(t, "X  X", d.Last())
	assert.Len(t, logged, 2)
}
