package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

type SQLiteSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ SessionStore = &SQLiteSessionStore{}

// SQLiteSessionDSNForFile builds a DSN with WAL, a busy timeout and foreign
// keys enabled.
func SQLiteSessionDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func NewSQLiteSessionStore(dsn string) (*SQLiteSessionStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: open")
	}
	s := &SQLiteSessionStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteSessionStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT NOT NULL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (session_id, ordinal),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_created ON sessions(created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}

func (s *SQLiteSessionStore) SaveSession(ctx context.Context, messages []chat.Message) (SessionRecord, error) {
	if s == nil || s.db == nil {
		return SessionRecord{}, errors.New("sqlite session store: db is nil")
	}
	if err := validateMessages(messages); err != nil {
		return SessionRecord{}, err
	}
	now := s.now()
	rec := SessionRecord{
		ID:        uuid.NewString(),
		Title:     titleFor(messages),
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
		Messages:  normalizeMessages(messages, now),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SessionRecord{}, errors.Wrap(err, "sqlite session store: begin")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, title, created_at_ms) VALUES (?, ?, ?)`,
		rec.ID, rec.Title, rec.CreatedAt.UnixMilli(),
	); err != nil {
		return SessionRecord{}, errors.Wrap(err, "sqlite session store: insert session")
	}
	for i, m := range rec.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages(session_id, ordinal, sender, text, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, string(m.Sender), m.Text, m.Timestamp.UnixMilli(),
		); err != nil {
			return SessionRecord{}, errors.Wrapf(err, "sqlite session store: insert message %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return SessionRecord{}, errors.Wrap(err, "sqlite session store: commit")
	}
	return rec, nil
}

func (s *SQLiteSessionStore) GetSession(ctx context.Context, id string) (SessionRecord, bool, error) {
	if s == nil || s.db == nil {
		return SessionRecord{}, false, errors.New("sqlite session store: db is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionRecord{}, false, errors.New("sqlite session store: id is empty")
	}
	var (
		rec       SessionRecord
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, title, created_at_ms FROM sessions WHERE session_id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "sqlite session store: get session")
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	if rec.Messages, err = s.loadMessages(ctx, rec.ID); err != nil {
		return SessionRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteSessionStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite session store: db is nil")
	}
	q := `SELECT session_id, title, created_at_ms FROM sessions ORDER BY created_at_ms DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: list sessions")
	}
	var out []SessionRecord
	for rows.Next() {
		var (
			rec       SessionRecord
			createdMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &createdMs); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "sqlite session store: scan session")
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errors.Wrap(err, "sqlite session store: list sessions")
	}
	_ = rows.Close()

	for i := range out {
		if out[i].Messages, err = s.loadMessages(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteSessionStore) loadMessages(ctx context.Context, id string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, text, created_at_ms FROM session_messages WHERE session_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: load messages")
	}
	defer func() {
		_ = rows.Close()
	}()
	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m      chat.Message
			sender string
			ms     int64
		)
		if err := rows.Scan(&sender, &m.Text, &ms); err != nil {
			return nil, errors.Wrap(err, "sqlite session store: scan message")
		}
		m.Sender = chat.Sender(sender)
		m.Timestamp = time.UnixMilli(ms).UTC()
		msgs = append(msgs, m)
	}
	return msgs, errors.Wrap(rows.Err(), "sqlite session store: load messages")
}
