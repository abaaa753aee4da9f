package rules

import "github.com/notnil/chess"

var (
	knightSteps   = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps     = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	straightSteps = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonalSteps = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// inCheck reports whether the side to move has its king attacked. It reads
// only the board, so it holds for positions loaded from FEN without moves.
func inCheck(pos *chess.Position) bool {
	board := pos.Board()
	side := pos.Turn()

	king := chess.NoSquare
	for sq, p := range board.SquareMap() {
		if p == chess.NewPiece(chess.King, side) {
			king = sq
			break
		}
	}
	if king == chess.NoSquare {
		return false
	}
	return attacked(board, king, side.Other())
}

// attacked reports whether any piece of color by attacks sq
func attacked(board *chess.Board, sq chess.Square, by chess.Color) bool {
	f, r := int(sq.File()), int(sq.Rank())

	onBoard := func(df, dr int) bool {
		return f+df >= 0 && f+df <= 7 && r+dr >= 0 && r+dr <= 7
	}
	pieceAt := func(df, dr int) chess.Piece {
		if !onBoard(df, dr) {
			return chess.NoPiece
		}
		return board.Piece(chess.NewSquare(chess.File(f+df), chess.Rank(r+dr)))
	}

	// A white pawn attacks upward, so it sits one rank below its target
	pawnRank := -1
	if by == chess.Black {
		pawnRank = 1
	}
	pawn := chess.NewPiece(chess.Pawn, by)
	if pieceAt(-1, pawnRank) == pawn || pieceAt(1, pawnRank) == pawn {
		return true
	}

	for _, s := range knightSteps {
		if pieceAt(s[0], s[1]) == chess.NewPiece(chess.Knight, by) {
			return true
		}
	}
	for _, s := range kingSteps {
		if pieceAt(s[0], s[1]) == chess.NewPiece(chess.King, by) {
			return true
		}
	}

	slides := func(steps [][2]int, slider chess.PieceType) bool {
		for _, s := range steps {
			for n := 1; onBoard(s[0]*n, s[1]*n); n++ {
				p := pieceAt(s[0]*n, s[1]*n)
				if p == chess.NoPiece {
					continue
				}
				if p.Color() == by && (p.Type() == slider || p.Type() == chess.Queen) {
					return true
				}
				break
			}
		}
		return false
	}
	return slides(straightSteps, chess.Rook) || slides(diagonalSteps, chess.Bishop)
}
