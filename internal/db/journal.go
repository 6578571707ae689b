package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dealr/internal/calibration"
)

// Session is one journalled game or tool run.
type Session struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Cards     int        `json:"cards"`
	Marked    int        `json:"marked"`
	Faults    []string   `json:"faults,omitempty"`
}

// Card is one dispensed card.
type Card struct {
	Seq     int       `json:"seq"`
	Tag     int       `json:"tag"`
	TagName string    `json:"tag_name"`
	Peak    uint16    `json:"peak"`
	Marked  bool      `json:"marked"`
	DealtAt time.Time `json:"dealt_at"`
}

func (db *DB) StartSession(id uuid.UUID, kind, name string, at time.Time) error {
	_, err := db.Exec(`INSERT INTO sessions (session_id, kind, name, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), kind, name, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return nil
}

func (db *DB) RecordCard(id uuid.UUID, seq int, tag calibration.Identity, peak uint16, marked bool, at time.Time) error {
	_, err := db.Exec(`INSERT INTO session_cards (session_id, seq, tag, tag_name, peak, marked, dealt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), seq, int(tag), tag.Name(), int(peak), marked, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record card %d of %s: %w", seq, id, err)
	}
	return nil
}

func (db *DB) RecordFault(id uuid.UUID, fault string, at time.Time) error {
	_, err := db.Exec(`INSERT INTO session_faults (session_id, fault, at) VALUES (?, ?, ?)`,
		id.String(), fault, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record fault for %s: %w", id, err)
	}
	return nil
}

func (db *DB) EndSession(id uuid.UUID, outcome string, cards int, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ?, outcome = ?, cards = ? WHERE session_id = ?`,
		at.UTC(), outcome, cards, id.String())
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// RecentSessions lists the latest sessions, newest first, with their
// marked-card counts and faults.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.kind, s.name, s.started_at, s.ended_at, COALESCE(s.outcome, ''),
			s.cards, (SELECT COUNT(*) FROM session_cards c WHERE c.session_id = s.session_id AND c.marked = 1)
		FROM sessions s
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s     Session
			ended sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Kind, &s.Name, &s.StartedAt, &ended, &s.Outcome, &s.Cards, &s.Marked); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].Faults, err = db.faults(sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (db *DB) faults(sessionID string) ([]string, error) {
	rows, err := db.Query(`SELECT fault FROM session_faults WHERE session_id = ? ORDER BY fault_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SessionCards lists the cards of one session in dealing order.
func (db *DB) SessionCards(sessionID string) ([]Card, error) {
	rows, err := db.Query(`SELECT seq, tag, tag_name, peak, marked, dealt_at
		FROM session_cards WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var (
			c    Card
			peak int
		)
		if err := rows.Scan(&c.Seq, &c.Tag, &c.TagName, &peak, &c.Marked, &c.DealtAt); err != nil {
			return nil, err
		}
		c.Peak = uint16(peak)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
