package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chesssync/internal/client/display"
)

func (r *Registry) registerDebugCommands() {
	r.Register(&Command{
		Name:        "health",
		ShortName:   ".",
		Description: "Check server health",
		Usage:       "health",
		Handler:     healthHandler,
	})

	r.Register(&Command{
		Name:        "url",
		ShortName:   "/",
		Description: "Set API base URL",
		Usage:       "url [apiUrl]",
		Handler:     urlHandler,
	})

	r.Register(&Command{
		Name:        "raw",
		ShortName:   ":",
		Description: "Send raw API request",
		Usage:       "raw <method> <path> [json-body]",
		Handler:     rawRequestHandler,
	})

	r.Register(&Command{
		Name:        "clear",
		ShortName:   "-",
		Description: "Clear screen",
		Usage:       "clear",
		Handler:     clearHandler,
	})
}

func healthHandler(ctx context.Context, s *Session, args []string) error {
	resp, err := s.Client.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "%sServer Health:%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(s.Out, "  Status:  %s\n", resp.Status)
	t := time.Unix(resp.Time, 0)
	fmt.Fprintf(s.Out, "  Time:    %s\n", t.Format("2006-01-02 15:04:05"))
	if resp.Storage != "" {
		fmt.Fprintf(s.Out, "  Storage: %s\n", resp.Storage)
	}
	return nil
}

func urlHandler(ctx context.Context, s *Session, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.Out, "Current API URL: %s\n", s.Client.BaseURL())
		return nil
	}

	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	s.Client.SetBaseURL(url)

	fmt.Fprintf(s.Out, "%sAPI URL set to: %s%s\n", display.Cyan, url, display.Reset)
	return nil
}

func rawRequestHandler(ctx context.Context, s *Session, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: raw <method> <path> [json-body]")
	}

	method := strings.ToUpper(args[0])
	path := args[1]
	body := ""
	if len(args) > 2 {
		body = strings.Join(args[2:], " ")
	}

	resp, err := s.Client.RawRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if len(resp) > 0 {
		display.PrettyPrintJSON(s.Out, resp)
	}
	return nil
}

func clearHandler(ctx context.Context, s *Session, args []string) error {
	// ANSI clear screen and home cursor
	fmt.Fprint(s.Out, "\033[H\033[2J")
	return nil
}
