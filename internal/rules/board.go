package rules

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ASCII renders fen as an 8x8 grid, white pieces upper case, empty squares
// as '.', rank 8 at the top.
func ASCII(fen string) (string, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	squares := chess.NewGame(opt).Position().Board().SquareMap()

	byName := make(map[string]chess.Piece, len(squares))
	for sq, p := range squares {
		byName[sq.String()] = p
	}

	var sb strings.Builder
	sb.WriteString("  a b c d e f g h\n")
	for rank := '8'; rank >= '1'; rank-- {
		sb.WriteString(fmt.Sprintf("%c ", rank))
		for file := 'a'; file <= 'h'; file++ {
			p, ok := byName[fmt.Sprintf("%c%c", file, rank)]
			if !ok || p == chess.NoPiece {
				sb.WriteString(". ")
				continue
			}
			sb.WriteString(fmt.Sprintf("%c ", pieceLetter(p)))
		}
		sb.WriteString(fmt.Sprintf(" %c\n", rank))
	}
	sb.WriteString("  a b c d e f g h")

	return sb.String(), nil
}

func pieceLetter(p chess.Piece) rune {
	var r rune
	switch p.Type() {
	case chess.King:
		r = 'k'
	case chess.Queen:
		r = 'q'
	case chess.Rook:
		r = 'r'
	case chess.Bishop:
		r = 'b'
	case chess.Knight:
		r = 'n'
	case chess.Pawn:
		r = 'p'
	default:
		return '?'
	}
	if p.Color() == chess.White {
		r -= 'a' - 'A'
	}
	return r
}
