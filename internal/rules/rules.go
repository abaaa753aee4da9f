// Package rules is the boundary to the chess rules library. Callers treat
// positions as opaque FEN strings and moves as SAN strings produced here.
package rules

import (
	"errors"
	"regexp"
	"sort"
)

const (
	StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidSquare   = errors.New("invalid square")
	ErrIllegalMove     = errors.New("illegal move")
)

var squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

// Engine enumerates, applies and classifies moves. Implementations must be
// safe for concurrent use.
type Engine interface {
	// Analyze classifies fen. history is the SAN sequence that produced fen
	// from the starting position; when it replays to fen, repetition draws
	// are detected as well.
	Analyze(fen string, history []string) (Analysis, error)
	// LegalMoves lists legal moves of the piece on from, or every legal
	// move when from is empty.
	LegalMoves(fen string, from string) ([]Move, error)
	// Apply plays in against fen and returns the resulting position.
	Apply(fen string, history []string, in MoveInput) (Applied, error)
}

type Analysis struct {
	Turn        string `json:"turn"` // "white" or "black"
	IsCheck     bool   `json:"isCheck"`
	IsCheckmate bool   `json:"isCheckmate"`
	IsStalemate bool   `json:"isStalemate"`
	IsDraw      bool   `json:"isDraw"`
	DrawReason  string `json:"drawReason,omitempty"`
}

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MoveInput is a proposed move. An empty Promotion means queen when the
// move turns out to be a promotion.
type MoveInput struct {
	From      string
	To        string
	Promotion string
}

type Applied struct {
	From     string
	To       string
	SAN      string
	FEN      string
	Analysis Analysis
}

// ValidSquare reports whether s names a board square, e.g. "e4"
func ValidSquare(s string) bool {
	return squarePattern.MatchString(s)
}

// Destinations returns the distinct target squares of moves in board order
func Destinations(moves []Move) []string {
	seen := make(map[string]struct{}, len(moves))
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		if _, ok := seen[m.To]; ok {
			continue
		}
		seen[m.To] = struct{}{}
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}
