package core

// Status is the derived classification of a position. It is recomputed from
// the position on every read and never persisted.
type Status int

const (
	StatusActive Status = iota
	StatusCheck
	StatusCheckmate
	StatusStalemate
	StatusDraw
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCheck:
		return "check"
	case StatusCheckmate:
		return "checkmate"
	case StatusStalemate:
		return "stalemate"
	case StatusDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further play is expected from this status
func (s Status) Terminal() bool {
	return s == StatusCheckmate || s == StatusStalemate || s == StatusDraw
}

// StatusFromFlags applies the precedence checkmate > stalemate > draw > check > active
func StatusFromFlags(isCheck, isCheckmate, isStalemate, isDraw bool) Status {
	switch {
	case isCheckmate:
		return StatusCheckmate
	case isStalemate:
		return StatusStalemate
	case isDraw:
		return StatusDraw
	case isCheck:
		return StatusCheck
	default:
		return StatusActive
	}
}
