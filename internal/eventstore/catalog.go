package eventstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lectern/internal/config"
	"lectern/internal/session"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current catalog schema version. Bump when the schema
// changes; the catalog is a derived index, so deleting it is always safe.
const schemaVersion = 1

// ErrSchemaMismatch indicates the catalog was created by a different version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages the session catalog backed by SQLite and the per-session
// event logs beneath the log directory.
type Store struct {
	db      *sql.DB
	path    string
	logDir  string
	lockDir string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the session catalog.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:      db,
		path:    dbPath,
		logDir:  filepath.Join(cfg.Paths.LogDir, "sessions"),
		lockDir: cfg.Paths.LockDir,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: catalog has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LogDir returns the directory holding per-session event logs.
func (s *Store) LogDir() string {
	return s.logDir
}

// LogPath returns the event log location for a session identifier.
func (s *Store) LogPath(sessionID string) string {
	return filepath.Join(s.logDir, sessionID+".jsonl")
}

const sessionColumns = "id, source_url, title, status, failure_reason, config_json, log_path, report_path, slide_count, warning_count, progress_stage, progress_percent, created_at, updated_at, completed_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*session.Session, error) {
	var (
		id              string
		sourceURL       string
		title           sql.NullString
		statusStr       string
		failureReason   sql.NullString
		configJSON      sql.NullString
		logPath         string
		reportPath      sql.NullString
		slideCount      int
		warningCount    int
		progressStage   sql.NullString
		progressPercent float64
		createdRaw      string
		updatedRaw      string
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceURL,
		&title,
		&statusStr,
		&failureReason,
		&configJSON,
		&logPath,
		&reportPath,
		&slideCount,
		&warningCount,
		&progressStage,
		&progressPercent,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:            id,
		SourceURL:     sourceURL,
		Title:         title.String,
		Status:        session.Status(statusStr),
		FailureReason: failureReason.String,
		ConfigJSON:    configJSON.String,
		LogPath:       logPath,
		ReportPath:    reportPath.String,
		SlideCount:    slideCount,
		WarningCount:  warningCount,
		ProgressStage: progressStage.String,
		ProgressPct:   progressPercent,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sess.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			sess.CompletedAt = &completed
		}
	}
	return sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// NewSession inserts a catalog record for a fresh extraction run and returns
// it. The event log is created lazily on the first append.
func (s *Store) NewSession(ctx context.Context, sourceURL, configJSON string) (*session.Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	logPath := s.LogPath(id)

	if err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (
            id, source_url, status, config_json, log_path,
            slide_count, warning_count, progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sourceURL,
		session.StatusCreated,
		nullableString(configJSON),
		logPath,
		0,
		0,
		0.0,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a session by identifier, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// FindBySourceURL returns the most recent session for a source URL.
func (s *Store) FindBySourceURL(ctx context.Context, sourceURL string) (*session.Session, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+sessionColumns+` FROM sessions WHERE source_url = ? ORDER BY created_at DESC LIMIT 1`,
		sourceURL,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source url: %w", err)
	}
	return sess, nil
}

// Update persists changes to an existing session record.
func (s *Store) Update(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	sess.UpdatedAt = time.Now().UTC()
	if err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET source_url = ?, title = ?, status = ?, failure_reason = ?,
             config_json = ?, log_path = ?, report_path = ?, slide_count = ?,
             warning_count = ?, progress_stage = ?, progress_percent = ?,
             updated_at = ?, completed_at = ?
         WHERE id = ?`,
		sess.SourceURL,
		nullableString(sess.Title),
		sess.Status,
		nullableString(sess.FailureReason),
		nullableString(sess.ConfigJSON),
		sess.LogPath,
		nullableString(sess.ReportPath),
		sess.SlideCount,
		sess.WarningCount,
		nullableString(sess.ProgressStage),
		sess.ProgressPct,
		sess.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(sess.CompletedAt),
		sess.ID,
	); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// List returns sessions filtered by status set, newest first. No statuses
// means all sessions.
func (s *Store) List(ctx context.Context, statuses ...session.Status) ([]*session.Session, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + sessionColumns + ` FROM sessions`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Active returns sessions that may still be driven forward, oldest first.
func (s *Store) Active(ctx context.Context) ([]*session.Session, error) {
	ctx = ensureContext(ctx)
	var active []session.Status
	for _, status := range session.AllStatuses() {
		if !status.IsTerminal() {
			active = append(active, status)
		}
	}
	placeholders := makePlaceholders(len(active))
	args := make([]any, len(active))
	for i, status := range active {
		args[i] = status
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status IN (` + placeholders + `) ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Remove deletes a session record by identifier. The event log on disk is
// left alone; it is the durable history.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected > 0, nil
}
