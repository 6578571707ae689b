package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// consoleDisplay draws the dealer's four-character display on the terminal
// when running against the simulator.
type consoleDisplay struct {
	mu   sync.Mutex
	out  io.Writer
	box  *pterm.BoxPrinter
	last string
}

func newConsoleDisplay(out io.Writer) *consoleDisplay {
	return &consoleDisplay{
		out: out,
		box: pterm.DefaultBox.WithTitle("dealr").WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1),
	}
}

func (c *consoleDisplay) Show(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.last {
		return
	}
	c.last = text
	fmt.Fprintln(c.out, c.box.Sprint(pterm.LightCyan(fmt.Sprintf("%-4.4s", text))))
}

func printBanner() {
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("DEAL", pterm.FgLightCyan.ToStyle()),
		putils.LettersFromStringWithStyle("R", pterm.FgRed.ToStyle()),
	).Render()
}
