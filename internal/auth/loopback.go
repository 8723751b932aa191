package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

const shutdownTimeout = 5 * time.Second

// CallbackFromQuery extracts the redirect parameters of an authorize
// response.
func CallbackFromQuery(q url.Values) Callback {
	return Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// LoopbackLogin signs sessionID in from a terminal. It serves the configured
// redirect URI on its loopback address, hands the authorize URL to openURL,
// and completes the callback when the browser returns. The redirect URI
// must point at localhost or a loopback IP.
func (m *Manager) LoopbackLogin(ctx context.Context, sessionID string, scopes []string, openURL func(string) error) error {
	redirect, err := url.Parse(m.cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("auth: parsing redirect uri: %w", err)
	}

	if !isLoopback(redirect.Hostname()) {
		return fmt.Errorf("auth: redirect uri %q is not a loopback address", m.cfg.RedirectURL)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.FlowTTL)
	defer cancel()

	resultCh := make(chan error, 1)
	mux := http.NewServeMux()

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		m.handleLoopbackCallback(ctx, w, r, sessionID, resultCh)
	})

	srv, err := startCallbackServer(ctx, redirect.Host, mux, resultCh, m.logger)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, m.logger)

	authURL, err := m.StartSignIn(ctx, sessionID, scopes)
	if err != nil {
		return err
	}

	launchBrowser(authURL, openURL, m.logger)

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		// Leave nothing redeemable behind.
		_ = m.Logout(context.WithoutCancel(ctx), sessionID) //nolint:errcheck // best effort
		return fmt.Errorf("auth: browser sign-in canceled: %w", ctx.Err())
	}
}

// handleLoopbackCallback completes the flow and reports the outcome both to
// the browser and to the waiting LoopbackLogin. Only the first result is
// delivered.
func (m *Manager) handleLoopbackCallback(
	ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string, resultCh chan<- error,
) {
	err := m.HandleCallback(ctx, sessionID, CallbackFromQuery(r.URL.Query()))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "<html><body><h1>Sign-in failed</h1><p>%s</p></body></html>", html.EscapeString(err.Error()))
	} else {
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
			"<p>You can close this window and return to the terminal.</p></body></html>")
	}

	select {
	case resultCh <- err:
	default:
	}
}

// startCallbackServer binds addr and serves mux in the background.
func startCallbackServer(
	ctx context.Context,
	addr string,
	mux *http.ServeMux,
	resultCh chan<- error,
	logger *slog.Logger,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("auth: binding callback listener %s: %w", addr, err)
	}

	logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- fmt.Errorf("auth: callback server error: %w", serveErr):
			default:
			}
		}
	}()

	return srv, nil
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
		return
	}

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
