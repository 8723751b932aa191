package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/config"
	"github.com/tonimelisma/irdrive/internal/driveops"
	"github.com/tonimelisma/irdrive/internal/graph"
	"github.com/tonimelisma/irdrive/internal/incident"
	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/tokenfile"
)

// authConfig maps the [auth] and [session] sections onto the manager's
// configuration.
func authConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		TenantID:     cfg.Auth.TenantID,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.Auth.RedirectURI,
		Authority:    cfg.Auth.Authority,
		Prompt:       cfg.Auth.Prompt,
		ScopeProfile: cfg.Auth.ScopeProfile,
		ExpiryWindow: cfg.Auth.ExpiryWindow,
		FlowTTL:      cfg.Auth.FlowTTL,
		SessionTTL:   cfg.Session.SessionTTL,
	}
}

func newManager(cc *CLIContext, store session.Store) (*auth.Manager, error) {
	return auth.NewManager(
		authConfig(cc.Cfg), store,
		&http.Client{Timeout: cc.Cfg.Network.RequestTimeout}, cc.Logger,
	)
}

// newSessionProvider returns a provider with a short timeout for metadata
// calls and a longer one for transfers.
func newSessionProvider(cfg *config.Config, logger *slog.Logger) *driveops.SessionProvider {
	return driveops.NewSessionProvider(
		cfg.Network.GraphURL,
		&http.Client{Timeout: cfg.Network.RequestTimeout},
		&http.Client{Timeout: cfg.Network.UploadTimeout},
		cfg.Network.UserAgent,
		logger,
	)
}

func driveTarget(cfg *config.Config) driveops.Target {
	return driveops.Target{SiteURL: cfg.Storage.SiteURL, DriveID: cfg.Storage.DriveID}
}

// cliSession is a process-local session seeded from the token file. The
// refreshed cache is written back by close.
type cliSession struct {
	manager *auth.Manager
	id      string
	path    string
	cache   []byte
	logger  *slog.Logger
}

// openSession seeds an in-memory session from the token file. A missing
// token file means the user has not logged in.
func openSession(ctx context.Context, cc *CLIContext) (*cliSession, error) {
	path := config.DefaultTokenPath()

	cache, err := tokenfile.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if cache == nil {
		return nil, auth.ErrReauthRequired
	}

	manager, err := newManager(cc, session.NewMemoryStore())
	if err != nil {
		return nil, err
	}

	sess, err := manager.Seed(ctx, cache)
	if err != nil {
		return nil, err
	}

	return &cliSession{manager: manager, id: sess.ID, path: path, cache: cache, logger: cc.Logger}, nil
}

func (s *cliSession) tokenSource() graph.TokenSource {
	return s.manager.TokenSource(s.id)
}

// close persists the provider cache if a refresh rotated it. A session that
// lost its credential leaves the file alone; the next command reports that
// a login is needed.
func (s *cliSession) close(ctx context.Context) {
	snap, err := s.manager.Snapshot(context.WithoutCancel(ctx), s.id)
	if errors.Is(err, auth.ErrReauthRequired) {
		return
	}

	if err != nil {
		s.logger.Warn("reading refreshed token", slog.String("error", err.Error()))
		return
	}

	if bytes.Equal(snap, s.cache) {
		return
	}

	if err := tokenfile.WriteFile(s.path, snap); err != nil {
		s.logger.Warn("saving refreshed token", slog.String("error", err.Error()))
		return
	}

	s.logger.Debug("saved refreshed token", slog.String("path", s.path))
}

// withDrive runs fn with a drive session for the configured target.
func withDrive(ctx context.Context, cc *CLIContext, fn func(*driveops.Session) error) error {
	cs, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer cs.close(ctx)

	sess, err := newSessionProvider(cc.Cfg, cc.Logger).Session(ctx, cs.tokenSource(), driveTarget(cc.Cfg))
	if err != nil {
		return err
	}

	return fn(sess)
}

// driveFiles returns a file client on sess bounded by the configured
// upload parallelism.
func driveFiles(cc *CLIContext, sess *driveops.Session) *driveops.Files {
	return sess.Files(cc.Cfg.Storage.UploadParallelism)
}

// withIncidents runs fn with an incident service on the configured drive.
func withIncidents(ctx context.Context, cc *CLIContext, fn func(*incident.Service) error) error {
	return withDrive(ctx, cc, func(sess *driveops.Session) error {
		return fn(incident.NewService(
			sess.Resolver(),
			driveFiles(cc, sess),
			incident.Settings{Root: cc.Cfg.Storage.RootPath, Sites: cc.Cfg.Sites},
			cc.Logger,
		))
	})
}

// pathSpec builds a path below the configured root.
func pathSpec(cc *CLIContext, segments []string) (driveops.PathSpec, error) {
	spec, err := driveops.NewPathSpec(cc.Cfg.Storage.RootPath, segments...)
	if err != nil {
		return driveops.PathSpec{}, fmt.Errorf("invalid path: %w", err)
	}

	return spec, nil
}
