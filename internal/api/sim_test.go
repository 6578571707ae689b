package api

import (
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/input"
)

type fakeSim struct {
	mu      sync.Mutex
	buttons map[int][]bool
	jammed  bool
}

func (f *fakeSim) SetButton(i int, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buttons == nil {
		f.buttons = map[int][]bool{}
	}
	f.buttons[i] = append(f.buttons[i], down)
}

func (f *fakeSim) Jam(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jammed = on
}

func (f *fakeSim) levels(i int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.buttons[i]...)
}

func TestSimRoutesOnlyWithSim(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/api/sim/press", url.Values{"button": {"green"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimPress(t *testing.T) {
	f := newFixture(t, false)
	fake := &fakeSim{}
	f.mux = f.server.WithSim(fake).ServeMux()

	rec := f.do(http.MethodPost, "/api/sim/press", url.Values{"button": {"Yellow"}, "hold": {"10ms"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Eventually(t, func() bool {
		got := fake.levels(int(input.Yellow))
		return len(got) == 2 && got[0] && !got[1]
	}, time.Second, 5*time.Millisecond)
}

func TestSimPressErrors(t *testing.T) {
	f := newFixture(t, false)
	f.mux = f.server.WithSim(&fakeSim{}).ServeMux()

	tests := []struct {
		name string
		form url.Values
	}{
		{"unknown button", url.Values{"button": {"purple"}}},
		{"bad hold", url.Values{"button": {"red"}, "hold": {"soon"}}},
		{"hold too long", url.Values{"button": {"red"}, "hold": {"1m"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/sim/press", tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSimJam(t *testing.T) {
	f := newFixture(t, false)
	fake := &fakeSim{}
	f.mux = f.server.WithSim(fake).ServeMux()

	rec := f.do(http.MethodPost, "/api/sim/jam", url.Values{"on": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.jammed)

	rec = f.do(http.MethodPost, "/api/sim/jam", url.Values{"on": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
