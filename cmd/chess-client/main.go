// Package main implements an interactive terminal client for the shared
// chess game.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"chesssync/internal/client/api"
	"chesssync/internal/client/commands"
	"chesssync/internal/client/display"
	"chesssync/internal/client/poller"
	"chesssync/internal/logging"
)

func main() {
	var (
		apiURL   = pflag.String("url", "http://localhost:8080", "Chess server base URL")
		interval = pflag.Duration("interval", poller.DefaultInterval, "Poll interval for watch mode")
		longPoll = pflag.Bool("long-poll", false, "Watch with server-held requests instead of interval polling")
		history  = pflag.String("history-file", ".chess_history", "Readline history file")
		logLevel = pflag.String("log-level", "warn", "Log level for background polling")
	)
	pflag.Parse()

	logger, err := logging.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("chess"),
		HistoryFile:     *history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	out := rl.Stdout()
	client := api.New(*apiURL)
	s := &commands.Session{
		Client:       client,
		Out:          out,
		ReadPassword: commands.TerminalPassword,
	}
	s.Poller = poller.New(client, poller.Config{
		Interval: *interval,
		LongPoll: *longPoll,
		Logger:   logger,
		OnChange: func(v poller.View) {
			if !s.Watching() {
				return
			}
			fmt.Fprintf(out, "\n%s[update]%s %s to move, %s, moves: %s\n",
				display.Magenta, display.Reset,
				display.ColorForTurn(v.Turn), display.StatusText(v.Status), display.FormatHistory(v.History))
			rl.Refresh()
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "%sChess Client%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(out, "%sAPI: %s%s\n", display.Cyan, client.BaseURL(), display.Reset)
	fmt.Fprintf(out, "Type 'help' for commands\n\n")

	registry := commands.NewRegistry(s)
	defer s.StopWatch()

	for ctx.Err() == nil {
		rl.SetPrompt(buildPrompt(s))

		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" {
			line = "exit"
		}

		// Check for verbose flag
		if strings.HasSuffix(line, " -v") {
			s.Verbose = true
			line = strings.TrimSuffix(line, " -v")
		} else {
			s.Verbose = false
		}

		if err := registry.Execute(ctx, line); errors.Is(err, commands.ErrExit) {
			break
		}
	}
}

func buildPrompt(s *commands.Session) string {
	var parts []string

	if s.Poller.Admin() {
		parts = append(parts, display.Magenta+"admin"+display.Reset)
	}
	if s.Watching() {
		parts = append(parts, display.White+"watching"+display.Reset)
	}

	promptStr := "chess"
	if len(parts) > 0 {
		promptStr += display.Yellow + " [" + display.Reset + strings.Join(parts, display.Yellow+" - "+display.Reset) + display.Yellow + "]"
	}

	v := s.Poller.View()
	if v.Synced {
		promptStr += fmt.Sprintf(" - Turn:%s", display.ColorForTurn(v.Turn))
		if v.Status != "active" {
			promptStr += " " + display.StatusText(v.Status)
		}
		if v.Selected != "" {
			promptStr += " " + display.Cyan + v.Selected + display.Reset
		}
	}

	return display.Prompt(promptStr)
}
