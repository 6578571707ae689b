// Command dealrctl drives a running dealer over its HTTP API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/banshee-data/dealr/internal/api"
	"github.com/banshee-data/dealr/internal/httputil"
)

var (
	server  = flag.String("server", "http://localhost:8080", "Dealer API base URL")
	timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
)

var errUsage = errors.New(`usage: dealrctl [flags] <command>

commands:
  status               show the dealer state
  sessions [n]         list the last n journal sessions (default 10)
  cards <session-id>   list the cards dealt in a session
  game <index>         start the game at menu index (0-based)
  tool <1crd|tune|mark> start a maintenance tool
  abort                stop whatever the dealer is doing
  press <button> [hold] press a simulator button (dev mode only)`)

func main() {
	flag.Parse()
	client := api.NewClient(*server, httputil.NewStandardClient(&http.Client{Timeout: *timeout}))
	if err := run(flag.Args(), client, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, c *api.Client, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "status":
		s, err := c.Status()
		if err != nil {
			return err
		}
		rows := [][]string{
			{"state", s.State},
			{"game", s.Game},
			{"tool", s.Tool},
			{"display", s.Face},
			{"active tag", strings.TrimSpace(s.ActiveTag)},
			{"rounds left", strconv.Itoa(s.RoundsLeft)},
			{"cards this session", strconv.Itoa(s.SessionCards)},
			{"cards since boot", strconv.Itoa(s.CardsTotal)},
		}
		if s.Error != "" {
			rows = append(rows, []string{"error", s.Error})
		}
		if s.LastError != "" {
			rows = append(rows, []string{"last error", s.LastError})
		}
		return printTable(out, false, rows)

	case "sessions":
		n := 10
		if len(rest) > 0 {
			v, err := strconv.Atoi(rest[0])
			if err != nil || v < 1 {
				return fmt.Errorf("invalid session count %q", rest[0])
			}
			n = v
		}
		sessions, err := c.Sessions(n)
		if err != nil {
			return err
		}
		rows := [][]string{{"ID", "Kind", "Name", "Started", "Cards", "Marked", "Outcome"}}
		for _, s := range sessions {
			rows = append(rows, []string{
				s.ID, s.Kind, s.Name, s.StartedAt.Local().Format(time.DateTime),
				strconv.Itoa(s.Cards), strconv.Itoa(s.Marked), s.Outcome,
			})
		}
		return printTable(out, true, rows)

	case "cards":
		if len(rest) != 1 {
			return errUsage
		}
		cards, err := c.SessionCards(rest[0])
		if err != nil {
			return err
		}
		rows := [][]string{{"#", "Tag", "Peak", "Marked"}}
		for _, card := range cards {
			rows = append(rows, []string{
				strconv.Itoa(card.Seq), strings.TrimSpace(card.TagName),
				strconv.Itoa(int(card.Peak)), strconv.FormatBool(card.Marked),
			})
		}
		return printTable(out, true, rows)

	case "game":
		if len(rest) != 1 {
			return errUsage
		}
		i, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid game index %q", rest[0])
		}
		if err := c.StartGame(i); err != nil {
			return err
		}
		fmt.Fprintln(out, pterm.Success.Sprintf("game %d started", i))
		return nil

	case "tool":
		if len(rest) != 1 {
			return errUsage
		}
		if err := c.StartTool(rest[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, pterm.Success.Sprintf("tool %s started", rest[0]))
		return nil

	case "abort":
		if err := c.Abort(); err != nil {
			return err
		}
		fmt.Fprintln(out, pterm.Warning.Sprint("abort requested"))
		return nil

	case "press":
		if len(rest) < 1 || len(rest) > 2 {
			return errUsage
		}
		hold := ""
		if len(rest) == 2 {
			hold = rest[1]
		}
		return c.Press(rest[0], hold)
	}
	return errUsage
}

func printTable(out io.Writer, header bool, rows [][]string) error {
	table, err := pterm.DefaultTable.WithHasHeader(header).WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, table)
	return err
}
