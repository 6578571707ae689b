// Package game is the boundary between the dealing engine and per-game
// rules. A Game never drives hardware: every side effect goes through the
// Host the dealer hands it.
package game

import (
	"errors"
	"fmt"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/input"
)

// Exit selects the menu the dealer returns to after a game or tool.
type Exit int

const (
	// ExitFull returns to the idle screen.
	ExitFull Exit = iota
	// ExitGames returns to the games menu.
	ExitGames
	// ExitTools returns to the tools menu.
	ExitTools
)

func (e Exit) String() string {
	return [...]string{"full", "games", "tools"}[e]
}

// Host is what a game may ask of the dealer.
type Host interface {
	// SetDealPlan sets the number of rounds and the cards dealt at each
	// stop for the primary deal.
	SetDealPlan(rounds, cardsPerStop int)
	// StartDeal begins the primary deal for a game whose Initialize
	// returned false.
	StartDeal()
	// DealCards dispenses n cards at the current tag after the main deal.
	DealCards(n int)
	// Advance moves on n players after the main deal.
	Advance(n int)
	// GameOver ends the game.
	GameOver(exit Exit)
	// ActiveIdentity is the tag the dealer is facing.
	ActiveIdentity() calibration.Identity
	// Display shows text on the face.
	Display(text string)
}

// Game is implemented by each bundled variant.
type Game interface {
	Name() string
	// Initialize is called when the game is picked. Returning true starts
	// dealing straight away; false leaves the game in charge of the buttons
	// until it calls Host.StartDeal.
	Initialize(h Host) bool
	// HandleButtonPress receives short presses while the dealer waits for
	// a decision.
	HandleButtonPress(b input.Button)
	// OnMainDealEnd fires once when the last round has been dealt.
	OnMainDealEnd()
	// RequiresFlipCard asks for one card dealt face up to the side after
	// the main deal.
	RequiresFlipCard() bool
	// HandleAwaitDecisionDisplay is called every tick while waiting.
	HandleAwaitDecisionDisplay()
}

// MaxGames bounds the registry.
const MaxGames = 10

var ErrRegistryFull = errors.New("game registry full")

// Factory builds a fresh game instance for each play.
type Factory func() Game

type entry struct {
	name string
	new  Factory
}

// Registry lists the selectable games in menu order.
type Registry struct {
	entries []entry
}

// Register appends a game. Names are taken from a throwaway instance.
func (r *Registry) Register(f Factory) error {
	if len(r.entries) >= MaxGames {
		return ErrRegistryFull
	}
	if f == nil {
		return errors.New("nil game factory")
	}
	r.entries = append(r.entries, entry{name: f().Name(), new: f})
	return nil
}

// Len is the number of registered games.
func (r *Registry) Len() int { return len(r.entries) }

// New builds the game at index i.
func (r *Registry) New(i int) (Game, error) {
	if i < 0 || i >= len(r.entries) {
		return nil, fmt.Errorf("no game at index %d", i)
	}
	return r.entries[i].new(), nil
}

// FormattedName is the menu label, numbered from 1.
func (r *Registry) FormattedName(i int) string {
	if i < 0 || i >= len(r.entries) {
		return ""
	}
	return fmt.Sprintf("%d-%s", i+1, r.entries[i].name)
}

// Names lists every menu label.
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i := range r.entries {
		out[i] = r.FormattedName(i)
	}
	return out
}
