// Package calibration owns the colour table and marked-card threshold the
// classifier runs against, persists them in a versioned image, and
// implements the two field-tuning procedures that rewrite them.
package calibration

import "fmt"

// Identity indexes the colour table. Identity 0 is the bare turntable.
type Identity int

const (
	Background Identity = 0
	// Reference is the tag that marks the dealer's own position.
	Reference Identity = 1
)

// NumIdentities is the size of the compiled-in table: background plus eight
// player colours.
const NumIdentities = 9

// Centroid holds chrominance proportions (0-255 each) and the average clear
// channel brightness for one identity.
type Centroid struct {
	R, G, B uint16
	AvgC    uint16
}

// ColorTable is indexed by Identity.
type ColorTable []Centroid

var names = [NumIdentities]string{"BLAK", "RED ", "YELO", "LBLU", "GREE", "WHIT", "PINK", "PURP", "DBLU"}

var defaultTable = [NumIdentities]Centroid{
	{58, 149, 48, 118},
	{121, 105, 29, 255},
	{73, 157, 25, 255},
	{35, 132, 89, 255},
	{41, 173, 41, 255},
	{54, 138, 63, 255},
	{53, 136, 66, 255},
	{58, 108, 89, 255},
	{37, 108, 110, 255},
}

// DefaultThreshold is the factory marked-card brightness threshold.
const DefaultThreshold uint16 = 600

// DefaultTable returns a fresh copy of the factory colour table.
func DefaultTable() ColorTable {
	t := make(ColorTable, NumIdentities)
	copy(t, defaultTable[:])
	return t
}

// Name returns the 4-character display name of an identity.
func (id Identity) Name() string {
	if id < 0 || int(id) >= len(names) {
		return fmt.Sprintf("%4d", int(id))
	}
	return names[id]
}

func (id Identity) String() string { return id.Name() }

// Clone returns an independent copy of the table.
func (t ColorTable) Clone() ColorTable {
	return append(ColorTable(nil), t...)
}
