package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/config"
	"github.com/banshee-data/dealr/internal/db"
	"github.com/banshee-data/dealr/internal/dealer"
	"github.com/banshee-data/dealr/internal/fsutil"
	"github.com/banshee-data/dealr/internal/game/games"
	"github.com/banshee-data/dealr/internal/hal/sim"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/testutil"
	"github.com/banshee-data/dealr/internal/timeutil"
)

type fixture struct {
	server  *Server
	dealer  *dealer.Dealer
	store   *calibration.Store
	journal *db.DB
	mux     *http.ServeMux
}

func newFixture(t *testing.T, withJournal bool) *fixture {
	t.Helper()
	monitoring.SetLogger(nil)

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	hw := sim.New(clock, sim.DefaultLayout(), sim.DefaultSettings())
	store, err := calibration.Open(calibration.NewFileBackend(fsutil.NewMemoryFileSystem(), "cal.bin"))
	require.NoError(t, err)

	f := &fixture{store: store}
	opts := dealer.Options{Clock: clock, Config: config.DefaultDealerConfig(), Store: store, Games: games.Default()}
	if withJournal {
		f.journal, err = db.NewDB(filepath.Join(t.TempDir(), "dealr.db"))
		require.NoError(t, err)
		t.Cleanup(func() { f.journal.Close() })
		opts.Journal = f.journal
	}
	f.dealer, err = dealer.New(hw, opts)
	require.NoError(t, err)
	f.dealer.Step()

	f.server = NewServer(f.dealer, store, f.journal)
	f.mux = f.server.ServeMux()
	return f
}

// runLoop steps the dealer on its own goroutine until the test ends, the
// way Run does in production.
func (f *fixture) runLoop(t *testing.T) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				f.dealer.Step()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
}

func (f *fixture) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	return testutil.ServeLocal(f.mux, method, target, form)
}

func TestShowStatus(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status dealer.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "IDLE", status.State)
	assert.Equal(t, calibration.DefaultThreshold, status.Threshold)
	assert.Len(t, status.Seen, calibration.NumIdentities)
}

func TestShowCalibration(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.SetThreshold(777))

	rec := f.do(http.MethodGet, "/api/calibration", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got calibrationAPI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint16(777), got.Threshold)
	assert.Equal(t, calibration.FormatVersion, got.Version)
	require.Len(t, got.Table, calibration.NumIdentities)
	assert.Equal(t, "BLAK", got.Table[0].Name)
	assert.Equal(t, "RED", got.Table[1].Name)
	assert.Equal(t, f.store.Centroid(5).AvgC, got.Table[5].AvgC)
}

func TestSessionsWithoutJournal(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/sessions/abc/cards", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t, true)
	id := uuid.New()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	require.NoError(t, f.journal.StartSession(id, "game", "1-HAND", now))
	require.NoError(t, f.journal.RecordCard(id, 1, calibration.Identity(2), 100, false, now))

	rec := f.do(http.MethodGet, "/api/sessions?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []db.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "1-HAND", sessions[0].Name)

	rec = f.do(http.MethodGet, "/api/sessions/"+id.String()+"/cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cards []db.Card
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, 2, cards[0].Tag)

	rec = f.do(http.MethodGet, "/api/sessions/"+uuid.NewString()+"/cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListSessionsBadLimit(t *testing.T) {
	f := newFixture(t, true)
	for _, limit := range []string{"0", "-1", "abc", "501"} {
		t.Run(limit, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/sessions?limit="+limit, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStartGame(t *testing.T) {
	f := newFixture(t, true)
	f.runLoop(t)

	rec := f.do(http.MethodPost, "/api/game", url.Values{"index": {"0"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Eventually(t, func() bool {
		return f.dealer.Snapshot().Game == "1-HAND"
	}, time.Second, 5*time.Millisecond)

	// a second start while the game runs is refused
	rec = f.do(http.MethodPost, "/api/game", url.Values{"index": {"1"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartGameErrors(t *testing.T) {
	f := newFixture(t, false)
	f.runLoop(t)

	tests := []struct {
		name  string
		index string
		code  int
	}{
		{"missing", "", http.StatusBadRequest},
		{"negative", "-1", http.StatusBadRequest},
		{"not a number", "two", http.StatusBadRequest},
		{"unregistered", "9", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/game", url.Values{"index": {tt.index}})
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStartTool(t *testing.T) {
	f := newFixture(t, false)
	f.runLoop(t)

	rec := f.do(http.MethodPost, "/api/tool", url.Values{"name": {"bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/tool", url.Values{"name": {"tune"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Eventually(t, func() bool {
		return f.dealer.Snapshot().Tool == "tune-colors"
	}, time.Second, 5*time.Millisecond)
}

func TestToolByName(t *testing.T) {
	tests := map[string]dealer.Tool{
		"1crd":           dealer.DealOne,
		"TUNE":           dealer.TuneColors,
		"mark":           dealer.TuneThreshold,
		"tune-threshold": dealer.TuneThreshold,
	}
	for name, want := range tests {
		got, ok := toolByName(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := toolByName("")
	assert.False(t, ok)
}

func TestAbortLatchesError(t *testing.T) {
	f := newFixture(t, false)
	f.runLoop(t)

	rec := f.do(http.MethodPost, "/api/abort", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool {
		return f.dealer.Snapshot().LastError == dealer.ErrOperatorAbort.Error() ||
			f.dealer.Snapshot().Error == dealer.ErrOperatorAbort.Error()
	}, time.Second, 5*time.Millisecond)
}

func TestCommandTimesOutWithoutLoop(t *testing.T) {
	f := newFixture(t, false)
	old := commandTimeout
	commandTimeout = 20 * time.Millisecond
	t.Cleanup(func() { commandTimeout = old })

	rec := f.do(http.MethodPost, "/api/game", url.Values{"index": {"0"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = f.do(http.MethodGet, "/api/game", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBrightnessChart(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 5; i++ {
		f.dealer.Step()
	}
	mux := http.NewServeMux()
	f.server.AttachAdminRoutes(mux)

	rec := testutil.ServeLocal(mux, http.MethodGet, "/debug/brightness", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "spike threshold")
	assert.Contains(t, body, "Dealer Brightness")
}

func TestLoggingMiddleware(t *testing.T) {
	var logged bool
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logged = true
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.True(t, logged)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
