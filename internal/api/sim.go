package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/dealr/internal/httputil"
	"github.com/banshee-data/dealr/internal/input"
)

const maxPressHold = 10 * time.Second

// SimControl is the part of the simulated turntable the dev routes drive.
type SimControl interface {
	SetButton(i int, down bool)
	Jam(on bool)
}

// WithSim enables the /api/sim routes.
func (s *Server) WithSim(c SimControl) *Server {
	s.sim = c
	return s
}

func buttonByName(name string) (input.Button, bool) {
	for _, b := range []input.Button{input.Green, input.Blue, input.Yellow, input.Red} {
		if strings.EqualFold(name, b.String()) {
			return b, true
		}
	}
	return 0, false
}

// simPress holds a button down for hold (default 100ms) and releases it.
func (s *Server) simPress(w http.ResponseWriter, r *http.Request) {
	b, ok := buttonByName(r.FormValue("button"))
	if !ok {
		httputil.BadRequest(w, "Invalid 'button' parameter")
		return
	}
	hold := 100 * time.Millisecond
	if h := r.FormValue("hold"); h != "" {
		d, err := time.ParseDuration(h)
		if err != nil || d <= 0 || d > maxPressHold {
			httputil.BadRequest(w, "Invalid 'hold' parameter")
			return
		}
		hold = d
	}

	s.sim.SetButton(int(b), true)
	time.AfterFunc(hold, func() { s.sim.SetButton(int(b), false) })
	httputil.WriteJSONOK(w, map[string]string{"button": b.String(), "hold": hold.String()})
}

func (s *Server) simJam(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.FormValue("on"))
	if err != nil {
		httputil.BadRequest(w, "Invalid 'on' parameter")
		return
	}
	s.sim.Jam(on)
	httputil.WriteJSONOK(w, map[string]bool{"jammed": on})
}
