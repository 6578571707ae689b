// Package step holds the result type shared by resumable procedures. A
// procedure is advanced once per control-loop tick and reports whether it
// needs more ticks, finished, or gave up.
package step

// Status is the outcome of one call to a resumable procedure.
type Status int

const (
	Working Status = iota
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Working:
		return "working"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Finished reports whether the procedure no longer needs ticks.
func (s Status) Finished() bool { return s != Working }
