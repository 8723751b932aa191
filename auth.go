package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/config"
	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and save the token",
		Long: `Sign in with the authorization code flow. The configured redirect URI
must point at localhost; irdrive listens there for the browser to return.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("no-browser", false, "print the sign-in URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user and target drive",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	noBrowser, err := cmd.Flags().GetBool("no-browser")
	if err != nil {
		return err
	}

	manager, err := newManager(cc, session.NewMemoryStore())
	if err != nil {
		return err
	}

	sess, err := manager.NewSession(ctx)
	if err != nil {
		return err
	}

	open := func(url string) error {
		// The sign-in URL must always be visible, even with --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit:\n  %s\n", url)

		if noBrowser || !isTerminal(os.Stderr) {
			return nil
		}

		if err := openBrowser(url); err != nil {
			cc.Logger.Debug("could not open browser", "error", err)
		}

		return nil
	}

	if err := manager.LoopbackLogin(ctx, sess.ID, nil, open); err != nil {
		return err
	}

	snap, err := manager.Snapshot(ctx, sess.ID)
	if err != nil {
		return err
	}

	path := config.DefaultTokenPath()
	if err := tokenfile.WriteFile(path, snap); err != nil {
		return err
	}

	st, err := manager.Status(ctx, sess.ID)
	if err != nil {
		return err
	}

	cc.Logger.Info("login successful", "account", st.AccountID, "token_path", path)
	cc.Statusf("Signed in as %s.\n", st.Username)

	return nil
}

// openBrowser asks the desktop to open url.
func openBrowser(url string) error {
	var name string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}

	return exec.Command(name, url).Start()
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	path := config.DefaultTokenPath()

	cache, err := tokenfile.ReadFile(path)
	if err != nil {
		return err
	}

	if cache == nil {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	if err := tokenfile.Remove(path); err != nil {
		return err
	}

	cc.Logger.Info("logged out", "token_path", path)
	cc.Statusf("Logged out.\n")

	return nil
}

type whoamiOutput struct {
	User    whoamiUser  `json:"user"`
	Session auth.Status `json:"session"`
	DriveID string      `json:"drive_id"`
}

type whoamiUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	cs, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer cs.close(ctx)

	out, err := whoami(ctx, cc, cs)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	fmt.Printf("User:    %s (%s)\n", out.User.DisplayName, out.User.Email)
	fmt.Printf("ID:      %s\n", out.User.ID)
	fmt.Printf("Expires: %s\n", formatTime(out.Session.ExpiresAt))
	fmt.Printf("Drive:   %s\n", out.DriveID)

	return nil
}

func whoami(ctx context.Context, cc *CLIContext, cs *cliSession) (*whoamiOutput, error) {
	provider := newSessionProvider(cc.Cfg, cc.Logger)

	drive, err := provider.Session(ctx, cs.tokenSource(), driveTarget(cc.Cfg))
	if err != nil {
		return nil, err
	}

	user, err := drive.Meta.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}

	st, err := cs.manager.Status(ctx, cs.id)
	if err != nil {
		return nil, err
	}

	return &whoamiOutput{
		User:    whoamiUser{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email},
		Session: st,
		DriveID: drive.DriveID,
	}, nil
}
