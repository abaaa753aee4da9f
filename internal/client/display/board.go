package display

import (
	"fmt"
	"io"
	"strings"

	"chesssync/internal/rules"
)

// Highlight marks squares on a rendered board
type Highlight struct {
	Selected string   // Square of the selected piece
	Targets  []string // Legal destinations of the selection
}

// RenderBoard draws fen with white pieces in blue and black pieces in red.
// The selected square and its targets get a background color.
func RenderBoard(w io.Writer, fen string, hl Highlight) error {
	ascii, err := rules.ASCII(fen)
	if err != nil {
		return err
	}

	targets := make(map[string]bool, len(hl.Targets))
	for _, sq := range hl.Targets {
		targets[sq] = true
	}

	lines := strings.Split(ascii, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Header and footer carry file letters
		if i == 0 || i == len(lines)-1 {
			fmt.Fprintf(w, "%s%s%s\n", Cyan, line, Reset)
			continue
		}

		rank := line[0]
		var sb strings.Builder
		for col, char := range line {
			file := byte('a' + (col-2)/2)
			onSquare := col >= 2 && col <= 16 && col%2 == 0
			square := ""
			if onSquare {
				square = string([]byte{file, rank})
			}

			bg := ""
			switch {
			case square != "" && square == hl.Selected:
				bg = BgYellow
			case square != "" && targets[square]:
				bg = BgGreen
			}

			switch {
			case !onSquare && char >= '1' && char <= '8':
				sb.WriteString(Cyan + string(char) + Reset)
			case char >= 'A' && char <= 'Z':
				sb.WriteString(bg + Blue + string(char) + Reset)
			case char >= 'a' && char <= 'z':
				sb.WriteString(bg + Red + string(char) + Reset)
			case char == '.' && bg != "":
				sb.WriteString(bg + "." + Reset)
			default:
				sb.WriteRune(char)
			}
		}
		fmt.Fprintln(w, sb.String())
	}
	return nil
}

// ColorForTurn returns colored turn indicator
func ColorForTurn(turn string) string {
	if turn == "white" {
		return Blue + "White" + Reset
	}
	return Red + "Black" + Reset
}
