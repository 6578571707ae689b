// Package games holds the bundled game variants.
package games

import (
	"fmt"

	"github.com/banshee-data/dealr/internal/game"
	"github.com/banshee-data/dealr/internal/input"
)

// Register adds every bundled game to r in menu order.
func Register(r *game.Registry) error {
	for _, f := range []game.Factory{
		func() game.Game { return &Handout{} },
		func() game.Game { return &GoFish{} },
		func() game.Game { return &Rummy{} },
	} {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a registry holding the bundled games.
func Default() *game.Registry {
	r := &game.Registry{}
	if err := Register(r); err != nil {
		panic(fmt.Sprintf("games: %v", err))
	}
	return r
}

// turns carries the helpers every game uses once the main deal is done.
type turns struct {
	h game.Host
}

// nextTurn passes play on, skipping skip players.
func (t *turns) nextTurn(skip int) { t.h.Advance(skip + 1) }

func (t *turns) dispenseCards(n int) { t.h.DealCards(n) }

func (t *turns) quit() { t.h.GameOver(game.ExitGames) }

// draw is the common post-deal button map: green draws a card for the
// current player, blue passes play, red ends the game.
func (t *turns) draw(b input.Button) bool {
	switch b {
	case input.Green:
		t.dispenseCards(1)
	case input.Blue:
		t.nextTurn(0)
	case input.Red:
		t.quit()
	default:
		return false
	}
	return true
}

// Handout deals a chosen number of rounds and then hands out single cards
// on request. The round count is picked with blue and yellow before the
// deal starts.
type Handout struct {
	turns
	rounds int
	dealt  bool
}

const (
	handoutDefaultRounds = 5
	handoutMaxRounds     = 13
)

func (g *Handout) Name() string { return "HAND" }

func (g *Handout) Initialize(h game.Host) bool {
	g.h = h
	g.rounds = handoutDefaultRounds
	g.dealt = false
	return false
}

func (g *Handout) HandleButtonPress(b input.Button) {
	if g.dealt {
		g.draw(b)
		return
	}
	switch b {
	case input.Blue:
		g.rounds = min(g.rounds+1, handoutMaxRounds)
	case input.Yellow:
		g.rounds = max(g.rounds-1, 1)
	case input.Green:
		g.dealt = true
		g.h.SetDealPlan(g.rounds, 1)
		g.h.StartDeal()
	case input.Red:
		g.quit()
	}
}

func (g *Handout) OnMainDealEnd() {}

func (g *Handout) RequiresFlipCard() bool { return false }

func (g *Handout) HandleAwaitDecisionDisplay() {
	if !g.dealt {
		g.h.Display(fmt.Sprintf("R %2d", g.rounds))
		return
	}
	g.h.Display(g.h.ActiveIdentity().Name())
}

// Rounds is the selected round count.
func (g *Handout) Rounds() int { return g.rounds }

// GoFish deals seven cards each. After the deal green is "go fish" and
// yellow marks a successful ask, which keeps the turn.
type GoFish struct {
	turns
}

// GoFishCards is the hand size.
const GoFishCards = 7

func (g *GoFish) Name() string { return "FISH" }

func (g *GoFish) Initialize(h game.Host) bool {
	g.h = h
	h.SetDealPlan(GoFishCards, 1)
	return true
}

func (g *GoFish) HandleButtonPress(b input.Button) {
	if b == input.Yellow {
		// a correct ask keeps the turn, so nothing moves
		g.h.Display(game.FaceLookSmall)
		return
	}
	g.draw(b)
}

func (g *GoFish) OnMainDealEnd() {}

func (g *GoFish) RequiresFlipCard() bool { return false }

func (g *GoFish) HandleAwaitDecisionDisplay() { g.h.Display(game.FaceSneaky) }

// Rummy deals seven each and turns one card up beside the stock to start
// the discard pile.
type Rummy struct {
	turns
	flipped bool
}

// RummyCards is the hand size.
const RummyCards = 7

func (g *Rummy) Name() string { return "RUMY" }

func (g *Rummy) Initialize(h game.Host) bool {
	g.h = h
	g.flipped = false
	h.SetDealPlan(RummyCards, 1)
	return true
}

func (g *Rummy) HandleButtonPress(b input.Button) { g.draw(b) }

func (g *Rummy) OnMainDealEnd() { g.flipped = true }

func (g *Rummy) RequiresFlipCard() bool { return g.flipped }

func (g *Rummy) HandleAwaitDecisionDisplay() { g.h.Display(game.FaceWild) }
