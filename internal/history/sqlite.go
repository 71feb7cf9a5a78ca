package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chatlog-cli/internal/activity"

	_ "modernc.org/sqlite"
)

// SQLiteSource 把历史存在一张以 sequence id 为主键的表里。
type SQLiteSource struct {
	mu sync.RWMutex
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteSource, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, ErrEmptyPath
	}
	if p != ":memory:" {
		p = filepath.Clean(p)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSource{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS history_messages (
  seq  INTEGER PRIMARY KEY,
  body TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create history_messages: %w", err)
	}
	return nil
}

func (s *SQLiteSource) conn() (*sql.DB, error) {
	if s == nil {
		return nil, ErrSourceClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrSourceClosed
	}
	return s.db, nil
}

// Import 按 sequence id upsert 消息并返回写入条数，没有可用 sequence id 的消息会跳过。
func (s *SQLiteSource) Import(ctx context.Context, msgs []activity.RawHistoryMessage) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO history_messages(seq, body) VALUES(?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, m := range msgs {
		seq, ok := activity.ParseSequenceID(m.TranscriptOriginalMessageID)
		if !ok {
			continue
		}
		body, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("encode message %d: %w", seq, err)
		}
		if _, err := stmt.ExecContext(ctx, seq, string(body)); err != nil {
			return 0, fmt.Errorf("insert message %d: %w", seq, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return n, nil
}

func (s *SQLiteSource) Page(ctx context.Context, before int64, limit int) (Page, error) {
	db, err := s.conn()
	if err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if before <= 0 {
		before = 1<<62 - 1
	}

	rows, err := db.QueryContext(ctx, `
SELECT seq, body
FROM history_messages
WHERE seq < ?
ORDER BY seq DESC
LIMIT ?
`, before, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("query history page: %w", err)
	}
	defer rows.Close()

	tmp := make([]keyed, 0, limit+1)
	for rows.Next() {
		var (
			seq  int64
			body string
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return Page{}, fmt.Errorf("scan history row: %w", err)
		}
		var m activity.RawHistoryMessage
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return Page{}, fmt.Errorf("decode message %d: %w", seq, err)
		}
		tmp = append(tmp, keyed{seq: seq, msg: m})
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("read history page: %w", err)
	}

	more := len(tmp) > limit
	if more {
		tmp = tmp[:limit]
	}
	if len(tmp) == 0 {
		return Page{}, nil
	}
	page := Page{
		Messages: make([]activity.RawHistoryMessage, 0, len(tmp)),
		Next:     tmp[len(tmp)-1].seq,
		More:     more,
	}
	for i := len(tmp) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, tmp[i].msg)
	}
	return page, nil
}

// Count 返回已存储的消息数。
func (s *SQLiteSource) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM history_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func (s *SQLiteSource) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteSource) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
