package calibration

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FormatVersion is written to byte 0 of every image. Bump it whenever the
// layout or the default table changes so devices re-seed on upgrade.
const FormatVersion uint8 = 1

const centroidSize = 8

var (
	ErrVersionMismatch = errors.New("calibration image version mismatch")
	ErrShortImage      = errors.New("calibration image truncated")
)

// Record is the persisted calibration: the version byte, one centroid per
// identity and the marked-card threshold.
type Record struct {
	Version   uint8
	Table     ColorTable
	Threshold uint16
}

// DefaultRecord returns the factory calibration at the current version.
func DefaultRecord() Record {
	return Record{Version: FormatVersion, Table: DefaultTable(), Threshold: DefaultThreshold}
}

// ImageSize is the encoded length of a record with n identities.
func ImageSize(n int) int { return 1 + n*centroidSize + 2 }

// Encode lays the record out as
//
//	[0]         version
//	[1, 1+8N)   N centroids, each R, G, B, AvgC as little-endian uint16
//	[1+8N, +2)  threshold, little-endian uint16
func Encode(r Record) []byte {
	buf := make([]byte, ImageSize(len(r.Table)))
	buf[0] = r.Version
	off := 1
	for _, c := range r.Table {
		binary.LittleEndian.PutUint16(buf[off:], c.R)
		binary.LittleEndian.PutUint16(buf[off+2:], c.G)
		binary.LittleEndian.PutUint16(buf[off+4:], c.B)
		binary.LittleEndian.PutUint16(buf[off+6:], c.AvgC)
		off += centroidSize
	}
	binary.LittleEndian.PutUint16(buf[off:], r.Threshold)
	return buf
}

// Decode parses an image holding n identities. A version byte other than
// FormatVersion yields ErrVersionMismatch.
func Decode(buf []byte, n int) (Record, error) {
	if len(buf) < 1 {
		return Record{}, ErrShortImage
	}
	if buf[0] != FormatVersion {
		return Record{}, fmt.Errorf("%w: stored %d, want %d", ErrVersionMismatch, buf[0], FormatVersion)
	}
	if len(buf) < ImageSize(n) {
		return Record{}, fmt.Errorf("%w: %d bytes, want %d", ErrShortImage, len(buf), ImageSize(n))
	}
	r := Record{Version: buf[0], Table: make(ColorTable, n)}
	off := 1
	for i := range r.Table {
		r.Table[i] = Centroid{
			R:    binary.LittleEndian.Uint16(buf[off:]),
			G:    binary.LittleEndian.Uint16(buf[off+2:]),
			B:    binary.LittleEndian.Uint16(buf[off+4:]),
			AvgC: binary.LittleEndian.Uint16(buf[off+6:]),
		}
		off += centroidSize
	}
	r.Threshold = binary.LittleEndian.Uint16(buf[off:])
	return r, nil
}
