package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/dealr/internal/hal"
)

// Inbound line kinds.
const (
	KindColor  = "C"
	KindMark   = "U"
	KindBeam   = "X"
	KindButton = "K"
	KindRig    = "W"
	KindReady  = "READY"
)

var ErrMalformedLine = errors.New("malformed bridge line")

// arity is the number of integer fields each inbound kind carries.
var arity = map[string]int{
	KindColor:  4,
	KindMark:   1,
	KindBeam:   1,
	KindButton: 2,
	KindRig:    1,
	KindReady:  0,
}

// Line is one parsed inbound message.
type Line struct {
	Kind   string
	Values []int
}

// ParseLine splits an inbound line into its kind and integer fields.
func ParseLine(s string) (Line, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Line{}, fmt.Errorf("%w: empty", ErrMalformedLine)
	}
	kind := fields[0]
	n, ok := arity[kind]
	if !ok {
		return Line{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedLine, kind)
	}
	if len(fields)-1 != n {
		return Line{}, fmt.Errorf("%w: %s wants %d fields, got %d", ErrMalformedLine, kind, n, len(fields)-1)
	}
	l := Line{Kind: kind, Values: make([]int, n)}
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 || v > 0xFFFF {
			return Line{}, fmt.Errorf("%w: field %d %q", ErrMalformedLine, i+1, f)
		}
		l.Values[i] = v
	}
	return l, nil
}

// RotateCommand formats a turntable command.
func RotateCommand(pwm uint8, dir hal.Direction) string {
	return fmt.Sprintf("ROT %d %s", pwm, dir)
}

// FlywheelCommand formats a flywheel command.
func FlywheelCommand(pwm uint8, reverse bool) string {
	sense := "FWD"
	if reverse {
		sense = "REV"
	}
	return fmt.Sprintf("FLY %d %s", pwm, sense)
}

// FeedCommand formats a feed servo command.
func FeedCommand(angle uint8) string {
	return fmt.Sprintf("FEED %d", angle)
}

// DisplayCommand formats a four-character display update. Text is padded or
// cut to the display width.
func DisplayCommand(text string) string {
	return fmt.Sprintf("DISP %-4.4s", text)
}
