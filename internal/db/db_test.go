package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dealr/internal/calibration"
	"github.com/banshee-data/dealr/internal/monitoring"
	"github.com/banshee-data/dealr/internal/testutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(nil)
	db, err := NewDB(filepath.Join(t.TempDir(), "dealr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBAppliesPragmasAndMigrations(t *testing.T) {
	db := setupTestDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	migrations, err := getMigrationsFS()
	require.NoError(t, err)
	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestReopenIsIdempotent(t *testing.T) {
	monitoring.SetLogger(nil)
	path := filepath.Join(t.TempDir(), "dealr.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.StartSession(uuid.New(), "game", "HAND", time.Now()))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	sessions, err := db.RecentSessions(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestMigrateDownDropsJournal(t *testing.T) {
	db := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.Exec("SELECT COUNT(*) FROM sessions")
	assert.Error(t, err)
	_, err = db.Exec("SELECT COUNT(*) FROM calibration")
	assert.NoError(t, err)

	require.NoError(t, db.MigrateUp(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigrateCustomSource(t *testing.T) {
	db := setupTestDB(t)
	extra := fstest.MapFS{
		"000003_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);")},
		"000003_notes.down.sql": {Data: []byte("DROP TABLE notes;")},
	}
	// the embedded history plus one more step
	base, err := getMigrationsFS()
	require.NoError(t, err)
	entries, err := fsEntries(base)
	require.NoError(t, err)
	for name, data := range entries {
		extra[name] = &fstest.MapFile{Data: data}
	}

	require.NoError(t, db.MigrateUp(extra))
	version, dirty, err := db.MigrateVersion(extra)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	_, err = db.Exec("INSERT INTO notes (body) VALUES ('ok')")
	assert.NoError(t, err)
}

func TestJournalRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	id := uuid.New()
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	require.NoError(t, db.StartSession(id, "game", "HAND", start))
	require.NoError(t, db.RecordCard(id, 1, calibration.Identity(2), 120, false, start.Add(time.Second)))
	require.NoError(t, db.RecordCard(id, 2, calibration.Identity(5), 900, true, start.Add(2*time.Second)))
	require.NoError(t, db.RecordFault(id, "throw stalled", start.Add(3*time.Second)))
	require.NoError(t, db.EndSession(id, "fault: throw stalled", 2, start.Add(4*time.Second)))

	sessions, err := db.RecentSessions(5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, id.String(), s.ID)
	assert.Equal(t, "game", s.Kind)
	assert.Equal(t, "HAND", s.Name)
	assert.Equal(t, 2, s.Cards)
	assert.Equal(t, 1, s.Marked)
	assert.Equal(t, "fault: throw stalled", s.Outcome)
	assert.Equal(t, []string{"throw stalled"}, s.Faults)
	require.NotNil(t, s.EndedAt)
	assert.True(t, s.StartedAt.Equal(start))

	cards, err := db.SessionCards(id.String())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "YELO", cards[0].TagName)
	assert.False(t, cards[0].Marked)
	assert.Equal(t, uint16(900), cards[1].Peak)
	assert.True(t, cards[1].Marked)
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, db.StartSession(id, "tool", "1CRD", base.Add(time.Duration(i)*time.Minute)))
	}

	sessions, err := db.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2].String(), sessions[0].ID)
	assert.Equal(t, ids[1].String(), sessions[1].ID)
	assert.Nil(t, sessions[0].EndedAt)
}

func TestJournalErrors(t *testing.T) {
	db := setupTestDB(t)
	id := uuid.New()

	// cards need a session
	err := db.RecordCard(id, 1, calibration.Reference, 0, false, time.Now())
	assert.Error(t, err)

	err = db.EndSession(id, "games", 0, time.Now())
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, db.StartSession(id, "game", "FISH", time.Now()))
	assert.Error(t, db.StartSession(id, "game", "FISH", time.Now()))
}

func TestCalibrationBackend(t *testing.T) {
	db := setupTestDB(t)
	backend := db.CalibrationBackend()

	_, err := backend.Load()
	assert.ErrorIs(t, err, calibration.ErrNoImage)

	store, err := calibration.Open(backend)
	require.NoError(t, err)
	assert.Equal(t, calibration.DefaultThreshold, store.Threshold())
	require.NoError(t, store.SetThreshold(720))

	reopened, err := calibration.Open(db.CalibrationBackend())
	require.NoError(t, err)
	assert.Equal(t, uint16(720), reopened.Threshold())

	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM calibration").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.StartSession(uuid.New(), "game", "RUMY", time.Now()))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	rec := testutil.ServeLocal(mux, http.MethodGet, "/debug/backup", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "filename=dealr-backup-")
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
