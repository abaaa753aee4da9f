package commands

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"chesssync/internal/client/display"
)

func (r *Registry) registerAuthCommands() {
	r.Register(&Command{
		Name:        "login",
		ShortName:   "l",
		Description: "Login as admin",
		Usage:       "login",
		Handler:     loginHandler,
	})

	r.Register(&Command{
		Name:        "logout",
		ShortName:   "o",
		Description: "End the admin session",
		Usage:       "logout",
		Handler:     logoutHandler,
	})

	r.Register(&Command{
		Name:        "verify",
		ShortName:   "v",
		Description: "Check the admin token",
		Usage:       "verify",
		Handler:     verifyHandler,
	})
}

// TerminalPassword reads a password from stdin without echo
func TerminalPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func loginHandler(ctx context.Context, s *Session, args []string) error {
	readPassword := s.ReadPassword
	if readPassword == nil {
		readPassword = TerminalPassword
	}

	password, err := readPassword(display.Yellow + "Admin password: " + display.Reset)
	if err != nil {
		return err
	}

	resp, err := s.Client.Login(ctx, password)
	if err != nil {
		return err
	}
	s.Poller.SetAdmin(true)

	fmt.Fprintf(s.Out, "%sLogged in as admin%s\n", display.Green, display.Reset)
	fmt.Fprintf(s.Out, "Session expires: %s\n", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func logoutHandler(ctx context.Context, s *Session, args []string) error {
	if s.Client.Token() == "" {
		fmt.Fprintf(s.Out, "%sNot logged in%s\n", display.Yellow, display.Reset)
		return nil
	}

	err := s.Client.Logout(ctx)
	s.Poller.SetAdmin(s.Client.Token() != "")
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "%sLogged out%s\n", display.Green, display.Reset)
	return nil
}

func verifyHandler(ctx context.Context, s *Session, args []string) error {
	token := s.Client.Token()
	if token == "" {
		fmt.Fprintf(s.Out, "%sNot authenticated%s\n", display.Yellow, display.Reset)
		return nil
	}

	resp, err := s.Client.Verify(ctx, token)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "%sToken valid%s until %s\n", display.Green, display.Reset, resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
