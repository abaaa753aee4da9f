package commands

import (
	"context"
	"fmt"
	"strings"

	"chesssync/internal/client/display"
	"chesssync/internal/client/poller"
	"chesssync/internal/rules"
)

func (r *Registry) registerGameCommands() {
	r.Register(&Command{
		Name:        "state",
		ShortName:   "s",
		Description: "Fetch and show game state",
		Usage:       "state [raw]",
		Handler:     stateHandler,
	})

	r.Register(&Command{
		Name:        "board",
		ShortName:   "b",
		Description: "Show the board",
		Usage:       "board [server]",
		Handler:     boardHandler,
	})

	r.Register(&Command{
		Name:        "select",
		ShortName:   "c",
		Description: "Select a piece and show its moves",
		Usage:       "select <square>",
		Handler:     selectHandler,
	})

	r.Register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Make a move",
		Usage:       "move <from> <to> [promotion] | move <uci-move>",
		Handler:     moveHandler,
	})

	r.Register(&Command{
		Name:        "history",
		ShortName:   "h",
		Description: "Show move history",
		Usage:       "history",
		Handler:     historyHandler,
	})

	r.Register(&Command{
		Name:        "watch",
		ShortName:   "w",
		Description: "Toggle background polling",
		Usage:       "watch [on|off]",
		Handler:     watchHandler,
	})

	r.Register(&Command{
		Name:        "reset",
		ShortName:   "r",
		Description: "Start a new game (admin)",
		Usage:       "reset",
		Handler:     resetHandler,
	})
}

func stateHandler(ctx context.Context, s *Session, args []string) error {
	if err := s.Poller.Refresh(ctx); err != nil {
		return err
	}
	v := s.Poller.View()

	if len(args) > 0 && args[0] == "raw" {
		display.PrettyPrintJSON(s.Out, v)
		return nil
	}
	printState(s, v)
	return nil
}

func printState(s *Session, v poller.View) {
	fmt.Fprintf(s.Out, "%sGame State:%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(s.Out, "  Turn:    %s\n", display.ColorForTurn(v.Turn))
	fmt.Fprintf(s.Out, "  Status:  %s\n", display.StatusText(v.Status))
	fmt.Fprintf(s.Out, "  Moves:   %s\n", display.FormatHistory(v.History))
	fmt.Fprintf(s.Out, "  Version: %d\n", v.Version)
	fmt.Fprintf(s.Out, "  FEN:     %s\n", v.FEN)
	if v.LastMove != nil {
		fmt.Fprintf(s.Out, "  Last:    %s (%s-%s)\n", v.LastMove.SAN, v.LastMove.From, v.LastMove.To)
	}
}

// printBoard renders the local view with the current selection
func printBoard(s *Session, v poller.View) error {
	fmt.Fprintln(s.Out)
	if err := display.RenderBoard(s.Out, v.FEN, display.Highlight{Selected: v.Selected, Targets: v.Targets}); err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "\n%s to move, %s\n", display.ColorForTurn(v.Turn), display.StatusText(v.Status))
	return nil
}

func boardHandler(ctx context.Context, s *Session, args []string) error {
	if len(args) > 0 && args[0] == "server" {
		resp, err := s.Client.GetBoard(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "\n%s\n", resp.Board)
		return nil
	}

	if !s.Poller.View().Synced {
		if err := s.Poller.Refresh(ctx); err != nil {
			return err
		}
	}
	return printBoard(s, s.Poller.View())
}

func selectHandler(ctx context.Context, s *Session, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: select <square>")
	}

	v, err := s.Poller.Select(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if v.Selected == "" {
		fmt.Fprintf(s.Out, "%sSelection cleared%s\n", display.Cyan, display.Reset)
		return nil
	}
	if err := printBoard(s, v); err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "%s%s%s can move to: %s\n", display.Cyan, v.Selected, display.Reset, strings.Join(v.Targets, " "))
	return nil
}

// parseMove accepts "e2 e4", "e7 e8 q", "e2e4" and "e7e8q"
func parseMove(args []string) (from, to, promotion string, err error) {
	switch {
	case len(args) == 1 && (len(args[0]) == 4 || len(args[0]) == 5):
		m := strings.ToLower(args[0])
		from, to, promotion = m[:2], m[2:4], m[4:]
	case len(args) == 2 || len(args) == 3:
		from, to = strings.ToLower(args[0]), strings.ToLower(args[1])
		if len(args) == 3 {
			promotion = strings.ToLower(args[2])
		}
	default:
		return "", "", "", fmt.Errorf("usage: move <from> <to> [promotion]")
	}

	if !rules.ValidSquare(from) || !rules.ValidSquare(to) {
		return "", "", "", fmt.Errorf("%w: %s %s", rules.ErrInvalidSquare, from, to)
	}
	if promotion != "" && (len(promotion) != 1 || !strings.Contains("qrbn", promotion)) {
		return "", "", "", fmt.Errorf("promotion must be one of q r b n")
	}
	return from, to, promotion, nil
}

func moveHandler(ctx context.Context, s *Session, args []string) error {
	// A single square completes a move from the selected piece
	if len(args) == 1 && len(args[0]) == 2 {
		sel := s.Poller.View().Selected
		if sel == "" {
			return fmt.Errorf("no piece selected, use select <square> first")
		}
		args = []string{sel, args[0]}
	}

	from, to, promotion, err := parseMove(args)
	if err != nil {
		return err
	}

	v, err := s.Poller.AttemptMove(ctx, from, to, promotion)
	if err != nil {
		return err
	}

	if v.LastMove != nil {
		fmt.Fprintf(s.Out, "%sMove accepted: %s%s\n", display.Green, v.LastMove.SAN, display.Reset)
	}
	return printBoard(s, v)
}

func historyHandler(ctx context.Context, s *Session, args []string) error {
	v := s.Poller.View()
	if len(v.History) == 0 {
		fmt.Fprintln(s.Out, "(no moves)")
		return nil
	}
	for _, line := range display.MovePairs(v.History) {
		fmt.Fprintln(s.Out, line)
	}
	return nil
}

func watchHandler(ctx context.Context, s *Session, args []string) error {
	mode := "toggle"
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}

	on := !s.Watching()
	switch mode {
	case "on":
		on = true
	case "off":
		on = false
	case "toggle":
	default:
		return fmt.Errorf("usage: watch [on|off]")
	}

	if on {
		// Outlive the command; StopWatch ends it
		if s.StartWatch(context.WithoutCancel(ctx)) {
			fmt.Fprintf(s.Out, "%sWatching for moves%s\n", display.Cyan, display.Reset)
		}
		return nil
	}
	if s.StopWatch() {
		fmt.Fprintf(s.Out, "%sStopped watching%s\n", display.Cyan, display.Reset)
	}
	return nil
}

func resetHandler(ctx context.Context, s *Session, args []string) error {
	v, err := s.Poller.Reset(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "%sGame reset%s\n", display.Green, display.Reset)
	return printBoard(s, v)
}
