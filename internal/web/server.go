// Package web serves the browser sign-in flow and the incident report API
// behind `irdrive serve`. A cookie carries the session ID; every /api/
// route obtains a valid token for that session before touching the drive.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/config"
	"github.com/tonimelisma/irdrive/internal/driveops"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	// Request bodies above this are rejected.
	maxUploadBytes = 64 << 20

	// Multipart parts up to this size are kept in memory.
	maxMultipartMemory = 32 << 20
)

// Server routes HTTP requests to the session manager and the incident
// service.
type Server struct {
	manager      *auth.Manager
	drives       *driveops.SessionProvider
	holder       *config.Holder
	logger       *slog.Logger
	callbackPath string

	// origin is the scheme and host of the redirect URI. Sign-in must
	// start there so the session cookie comes back with the callback.
	origin *url.URL
}

// NewServer returns a Server. The callback route is served at the path of
// the configured redirect URI.
func NewServer(
	manager *auth.Manager, drives *driveops.SessionProvider, holder *config.Holder, logger *slog.Logger,
) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	redirect, err := url.Parse(holder.Config().Auth.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("web: parsing redirect URI: %w", err)
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	return &Server{
		manager:      manager,
		drives:       drives,
		holder:       holder,
		logger:       logger,
		callbackPath: path,
		origin:       &url.URL{Scheme: redirect.Scheme, Host: redirect.Host},
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET "+s.callbackPath, s.handleCallback)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /api/incidents", s.withService(s.handleListIncidents))
	mux.HandleFunc("POST /api/incidents", s.withService(s.handleCreateIncident))
	mux.HandleFunc("PUT /api/incidents/{folderID}/files/{name}", s.withService(s.handleUpdateIncident))
	mux.HandleFunc("GET /api/folders/{folderID}/files", s.withService(s.handleListFiles))
	mux.HandleFunc("GET /api/items/{itemID}/content", s.withService(s.handleContent))

	return mux
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("serving", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("web: serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutting down: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: serving %s: %w", addr, err)
	}

	s.logger.Info("server stopped")

	return nil
}

// sessionID returns the session ID carried by the request cookie, or "".
func (s *Server) sessionID(r *http.Request) string {
	c, err := r.Cookie(s.holder.Config().Server.CookieName)
	if err != nil {
		return ""
	}

	return c.Value
}

// resume loads or creates the caller's session and refreshes the cookie.
func (s *Server) resume(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := s.manager.Resume(r.Context(), s.sessionID(r))
	if err != nil {
		return "", err
	}

	cfg := s.holder.Config()

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Server.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(cfg.Session.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Server.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return sess.ID, nil
}
