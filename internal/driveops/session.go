package driveops

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	gosync "sync"

	"github.com/tonimelisma/irdrive/internal/graph"
)

// Target names the drive to operate on: an explicit drive ID, or the
// default document library of a SharePoint site. With neither, the
// signed-in user's own drive is used.
type Target struct {
	SiteURL string
	DriveID string
}

// Session holds authenticated clients and the resolved drive for one
// caller. Meta (short timeout) serves metadata operations and Transfer
// (longer timeout) serves uploads and downloads.
type Session struct {
	Meta     *graph.Client
	Transfer *graph.Client
	DriveID  string
	logger   *slog.Logger
}

// Resolver returns a path resolver on the session's drive.
func (s *Session) Resolver() *Resolver {
	return NewResolver(s.Meta, s.DriveID, s.logger)
}

// Files returns a file client on the session's drive. Transfers use the
// Transfer client; item metadata reads go through it as well.
func (s *Session) Files(parallelism int) *Files {
	return NewFiles(s.Transfer, s.DriveID, parallelism, s.logger)
}

// SessionProvider creates Sessions for token sources. Drive IDs resolved
// from site URLs are cached for the life of the process because every user
// of a deployment writes to the same library.
type SessionProvider struct {
	baseURL      string
	metaHTTP     *http.Client
	transferHTTP *http.Client
	userAgent    string
	logger       *slog.Logger

	mu         gosync.Mutex
	driveCache map[string]string // keyed by normalized site URL
}

// NewSessionProvider creates a SessionProvider. An empty baseURL uses
// graph.DefaultBaseURL.
func NewSessionProvider(
	baseURL string, metaHTTP, transferHTTP *http.Client,
	userAgent string, logger *slog.Logger,
) *SessionProvider {
	if baseURL == "" {
		baseURL = graph.DefaultBaseURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SessionProvider{
		baseURL:      baseURL,
		metaHTTP:     metaHTTP,
		transferHTTP: transferHTTP,
		userAgent:    userAgent,
		logger:       logger,
		driveCache:   make(map[string]string),
	}
}

// Session binds clients to ts and resolves target to a drive ID.
func (p *SessionProvider) Session(ctx context.Context, ts graph.TokenSource, target Target) (*Session, error) {
	meta := graph.NewClient(p.baseURL, p.metaHTTP, ts, p.logger, p.userAgent)
	transfer := graph.NewClient(p.baseURL, p.transferHTTP, ts, p.logger, p.userAgent)

	driveID, err := p.resolveDrive(ctx, meta, target)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("drive session created", slog.String("drive_id", driveID))

	return &Session{
		Meta:     meta,
		Transfer: transfer,
		DriveID:  driveID,
		logger:   p.logger,
	}, nil
}

func (p *SessionProvider) resolveDrive(ctx context.Context, client *graph.Client, target Target) (string, error) {
	if target.DriveID != "" {
		return target.DriveID, nil
	}

	if target.SiteURL == "" {
		drive, err := client.MyDrive(ctx)
		if err != nil {
			return "", fmt.Errorf("driveops: resolving personal drive: %w", translate(err))
		}

		return drive.ID, nil
	}

	key := strings.ToLower(strings.TrimRight(target.SiteURL, "/"))

	p.mu.Lock()
	cached, ok := p.driveCache[key]
	p.mu.Unlock()

	if ok {
		return cached, nil
	}

	site, err := client.SiteByURL(ctx, target.SiteURL)
	if err != nil {
		return "", fmt.Errorf("driveops: resolving site %s: %w", target.SiteURL, translate(err))
	}

	drive, err := client.SiteDrive(ctx, site.ID)
	if err != nil {
		return "", fmt.Errorf("driveops: resolving drive of site %s: %w", target.SiteURL, translate(err))
	}

	p.mu.Lock()
	p.driveCache[key] = drive.ID
	p.mu.Unlock()

	p.logger.Info("resolved site drive",
		slog.String("site", site.DisplayName),
		slog.String("drive_id", drive.ID),
	)

	return drive.ID, nil
}
