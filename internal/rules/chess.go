package rules

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ChessEngine implements Engine on top of notnil/chess. It keeps no state
// between calls; every call rebuilds a game from its arguments.
type ChessEngine struct{}

func NewChessEngine() *ChessEngine {
	return &ChessEngine{}
}

func (e *ChessEngine) Analyze(fen string, history []string) (Analysis, error) {
	g, err := load(fen, history)
	if err != nil {
		return Analysis{}, err
	}
	return analyze(g), nil
}

func (e *ChessEngine) LegalMoves(fen string, from string) ([]Move, error) {
	if from != "" && !ValidSquare(from) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSquare, from)
	}

	g, err := load(fen, nil)
	if err != nil {
		return nil, err
	}

	moves := []Move{}
	for _, m := range g.ValidMoves() {
		if from != "" && m.S1().String() != from {
			continue
		}
		moves = append(moves, Move{
			From:      m.S1().String(),
			To:        m.S2().String(),
			Promotion: promotionLetter(m.Promo()),
		})
	}
	return moves, nil
}

func (e *ChessEngine) Apply(fen string, history []string, in MoveInput) (Applied, error) {
	if !ValidSquare(in.From) {
		return Applied{}, fmt.Errorf("%w: from %q", ErrInvalidSquare, in.From)
	}
	if !ValidSquare(in.To) {
		return Applied{}, fmt.Errorf("%w: to %q", ErrInvalidSquare, in.To)
	}

	g, err := load(fen, history)
	if err != nil {
		return Applied{}, err
	}

	mv, err := pickMove(g, in)
	if err != nil {
		return Applied{}, err
	}

	// SAN must be encoded against the position before the move
	san := chess.AlgebraicNotation{}.Encode(g.Position(), mv)
	if err = g.Move(mv); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	return Applied{
		From:     in.From,
		To:       in.To,
		SAN:      san,
		FEN:      g.Position().String(),
		Analysis: analyze(g),
	}, nil
}

// pickMove finds the legal move matching in. Promotion is only consulted
// when the from/to pair is a promotion.
func pickMove(g *chess.Game, in MoveInput) (*chess.Move, error) {
	var candidates []*chess.Move
	for _, m := range g.ValidMoves() {
		if m.S1().String() == in.From && m.S2().String() == in.To {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s%s", ErrIllegalMove, in.From, in.To)
	}
	if candidates[0].Promo() == chess.NoPieceType {
		return candidates[0], nil
	}

	want, ok := promotionPiece(in.Promotion)
	if !ok {
		return nil, fmt.Errorf("%w: bad promotion piece %q", ErrIllegalMove, in.Promotion)
	}
	for _, m := range candidates {
		if m.Promo() == want {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s%s%s", ErrIllegalMove, in.From, in.To, in.Promotion)
}

// load rebuilds a game. Replaying history keeps the repetition record; when
// history does not lead to fen, the position alone is used.
func load(fen string, history []string) (*chess.Game, error) {
	if len(history) > 0 {
		if g, ok := replay(history); ok && g.Position().String() == fen {
			return g, nil
		}
	}

	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return chess.NewGame(opt), nil
}

func replay(history []string) (*chess.Game, bool) {
	g := chess.NewGame()
	for _, san := range history {
		if err := g.MoveStr(san); err != nil {
			return nil, false
		}
	}
	return g, true
}

func analyze(g *chess.Game) Analysis {
	pos := g.Position()
	a := Analysis{Turn: colorName(pos.Turn())}

	switch pos.Status() {
	case chess.Checkmate:
		a.IsCheckmate = true
	case chess.Stalemate:
		a.IsStalemate = true
	}

	a.IsCheck = a.IsCheckmate || inCheck(pos)

	if g.Outcome() == chess.Draw {
		a.IsDraw = true
		if g.Method() != chess.Stalemate {
			a.DrawReason = g.Method().String()
		}
	}
	for _, m := range g.EligibleDraws() {
		if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
			a.IsDraw = true
			if a.DrawReason == "" {
				a.DrawReason = m.String()
			}
		}
	}
	if a.IsStalemate {
		a.IsDraw = true
		a.DrawReason = chess.Stalemate.String()
	}

	return a
}

func colorName(c chess.Color) string {
	if c == chess.Black {
		return "black"
	}
	return "white"
}

func promotionPiece(s string) (chess.PieceType, bool) {
	switch strings.ToLower(s) {
	case "", "q":
		return chess.Queen, true
	case "r":
		return chess.Rook, true
	case "b":
		return chess.Bishop, true
	case "n":
		return chess.Knight, true
	default:
		return chess.NoPieceType, false
	}
}

func promotionLetter(p chess.PieceType) string {
	switch p {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return ""
	}
}
