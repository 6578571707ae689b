package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/input"
)

type stubGame struct{ name string }

func (s stubGame) Name() string                   { return s.name }
func (s stubGame) Initialize(Host) bool           { return true }
func (s stubGame) HandleButtonPress(input.Button) {}
func (s stubGame) OnMainDealEnd()                 {}
func (s stubGame) RequiresFlipCard() bool         { return false }
func (s stubGame) HandleAwaitDecisionDisplay()    {}

func TestRegistry(t *testing.T) {
	var r Registry
	require.NoError(t, r.Register(func() Game { return stubGame{"HAND"} }))
	require.NoError(t, r.Register(func() Game { return stubGame{"FISH"} }))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "1-HAND", r.FormattedName(0))
	assert.Equal(t, "2-FISH", r.FormattedName(1))
	assert.Equal(t, "", r.FormattedName(2))
	assert.Equal(t, []string{"1-HAND", "2-FISH"}, r.Names())

	g, err := r.New(1)
	require.NoError(t, err)
	assert.Equal(t, "FISH", g.Name())

	_, err = r.New(5)
	assert.Error(t, err)
}

func TestRegistryBounded(t *testing.T) {
	var r Registry
	for i := 0; i < MaxGames; i++ {
		require.NoError(t, r.Register(func() Game { return stubGame{"X"} }))
	}
	assert.ErrorIs(t, r.Register(func() Game { return stubGame{"Y"} }), ErrRegistryFull)
	assert.Error(t, (&Registry{}).Register(nil))
}
