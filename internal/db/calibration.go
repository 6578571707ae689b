package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/dealr/internal/calibration"
)

// CalibrationBackend stores the calibration image in the calibration table.
type CalibrationBackend struct {
	db *DB
}

var _ calibration.Backend = (*CalibrationBackend)(nil)

// CalibrationBackend returns a calibration.Backend over this database.
func (db *DB) CalibrationBackend() *CalibrationBackend {
	return &CalibrationBackend{db: db}
}

func (b *CalibrationBackend) Load() ([]byte, error) {
	var image []byte
	err := b.db.QueryRow(`SELECT image FROM calibration WHERE slot = 0`).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, calibration.ErrNoImage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration: %w", err)
	}
	return image, nil
}

func (b *CalibrationBackend) Save(image []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO calibration (slot, image, updated_at) VALUES (0, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET image = excluded.image, updated_at = excluded.updated_at`,
		image)
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	return nil
}
