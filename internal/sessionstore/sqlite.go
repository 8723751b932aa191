package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/irdrive/internal/session"
)

// SQL statements for session and flow persistence.
const (
	sqlGetSession = `SELECT data FROM sessions WHERE id = ?`

	sqlUpsertSession = `INSERT INTO sessions (id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 data = excluded.data,
		 expires_at = excluded.expires_at,
		 updated_at = excluded.updated_at`

	sqlDeleteSession = `DELETE FROM sessions WHERE id = ?`

	sqlInsertFlow = `INSERT INTO auth_flows (state, session_id, data, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(state) DO NOTHING`

	// DELETE ... RETURNING makes take-once atomic without a transaction.
	sqlTakeFlow = `DELETE FROM auth_flows WHERE state = ? RETURNING data`

	sqlDeleteFlow = `DELETE FROM auth_flows WHERE state = ?`

	sqlReapFlows    = `DELETE FROM auth_flows WHERE expires_at <= ?`
	sqlReapSessions = `DELETE FROM sessions WHERE expires_at > 0 AND expires_at <= ?`
)

// SQLiteStore is a session.Store persisted in a local SQLite database. It
// survives restarts of a single node.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs
// migrations. The database uses WAL mode with synchronous=FULL.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("sessionstore: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	version, err := migrate(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite session store initialized",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", version),
	)

	return &SQLiteStore{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, sqlGetSession, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading session: %w", err)
	}

	return decodeSession(data)
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("sessionstore: session ID is required")
	}

	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, sqlUpsertSession,
		sess.ID, data, unixNano(sess.ExpiresAt), s.nowFunc().UnixNano(),
	); err != nil {
		return fmt.Errorf("sessionstore: writing session: %w", err)
	}

	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteSession, id); err != nil {
		return fmt.Errorf("sessionstore: deleting session: %w", err)
	}

	return nil
}

func (s *SQLiteStore) PutFlow(ctx context.Context, f *session.Flow) error {
	if f == nil || f.State == "" {
		return errors.New("sessionstore: flow state is required")
	}

	data, err := encodeFlow(f)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, sqlInsertFlow, f.State, f.SessionID, data, f.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sessionstore: writing flow: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessionstore: writing flow: %w", err)
	}

	if n == 0 {
		return session.ErrStateCollision
	}

	return nil
}

func (s *SQLiteStore) TakeFlow(ctx context.Context, state string, now time.Time) (*session.Flow, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, sqlTakeFlow, state).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrFlowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: taking flow: %w", err)
	}

	f, err := decodeFlow(data)
	if err != nil {
		return nil, err
	}

	if f.Expired(now) {
		return nil, session.ErrFlowExpired
	}

	return f, nil
}

func (s *SQLiteStore) DeleteFlow(ctx context.Context, state string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteFlow, state); err != nil {
		return fmt.Errorf("sessionstore: deleting flow: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Reap(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UnixNano()

	flows, err := s.db.ExecContext(ctx, sqlReapFlows, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: reaping flows: %w", err)
	}

	sessions, err := s.db.ExecContext(ctx, sqlReapSessions, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: reaping sessions: %w", err)
	}

	nf, _ := flows.RowsAffected()    //nolint:errcheck // sqlite always reports rows affected
	ns, _ := sessions.RowsAffected() //nolint:errcheck // sqlite always reports rows affected

	if nf+ns > 0 {
		s.logger.Debug("reaped expired records",
			slog.Int64("flows", nf),
			slog.Int64("sessions", ns),
		)
	}

	return int(nf + ns), nil
}
