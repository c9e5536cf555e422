package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteTextStore 基于本地SQLite文件的文本存储
type SQLiteTextStore struct {
	db    *sql.DB
	path  string
	table string
}

// NewSQLiteTextStore 打开（必要时创建）SQLite数据库
func NewSQLiteTextStore(path, table string) (*SQLiteTextStore, error) {
	if table == "" {
		table = "sentences"
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteTextStore{db: db, path: path, table: table}
	if err := s.ensureTable(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTextStore) createStatement() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		full_text TEXT NOT NULL,
		sequence INTEGER NOT NULL
	)`, s.table)
}

func (s *SQLiteTextStore) ensureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createStatement()); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

func (s *SQLiteTextStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, s.table)); err != nil {
		return fmt.Errorf("dropping table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.createStatement()); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (id, full_text, sequence) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_text = excluded.full_text, sequence = excluded.sequence
	`, s.table))
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, r.Sequence); err != nil {
			return fmt.Errorf("upserting %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteTextStore) Lookup(ctx context.Context, id string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT full_text FROM %q WHERE id = ?`, s.table), id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return text, true, nil
}

func (s *SQLiteTextStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, s.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return count, nil
}

func (s *SQLiteTextStore) Ready() bool {
	return s.db.Ping() == nil
}

// Path 数据库文件路径
func (s *SQLiteTextStore) Path() string {
	return s.path
}

func (s *SQLiteTextStore) Close() error {
	return s.db.Close()
}
