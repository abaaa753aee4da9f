package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrettyPrintJSON prints formatted JSON
func PrettyPrintJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%sError formatting JSON: %s%s\n", Red, err.Error(), Reset)
		return
	}
	fmt.Fprintln(w, string(data))
}

// MovePairs groups SAN history into numbered full moves: "1. e4 e5"
func MovePairs(history []string) []string {
	pairs := make([]string, 0, (len(history)+1)/2)
	for i := 0; i < len(history); i += 2 {
		line := fmt.Sprintf("%d. %s", i/2+1, history[i])
		if i+1 < len(history) {
			line += " " + history[i+1]
		}
		pairs = append(pairs, line)
	}
	return pairs
}

// FormatHistory renders the move list on one line, or "(no moves)"
func FormatHistory(history []string) string {
	if len(history) == 0 {
		return "(no moves)"
	}
	return strings.Join(MovePairs(history), "  ")
}

// StatusText colors a game status for the prompt and state output
func StatusText(status string) string {
	switch status {
	case "check":
		return Yellow + "check" + Reset
	case "checkmate", "stalemate", "draw":
		return Magenta + status + Reset
	default:
		return Green + status + Reset
	}
}
