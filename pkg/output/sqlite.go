package output

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Veraticus/linescan/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS lines (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    source   TEXT NOT NULL,
    line_no  INTEGER NOT NULL,
    text     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS spans (
    line_id       INTEGER NOT NULL REFERENCES lines(id),
    field         TEXT NOT NULL,
    start_offset  INTEGER NOT NULL,
    end_offset    INTEGER NOT NULL,
    value         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spans_field ON spans(field, value);
CREATE INDEX IF NOT EXISTS idx_lines_source ON lines(source, line_no);
`

// SQLiteSink stores every record in a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write stores record and its spans in one transaction.
func (s *SQLiteSink) Write(record types.LineRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO lines (source, line_no, text) VALUES (?, ?, ?)`,
		record.Source, record.Index, record.Text)
	if err != nil {
		return fmt.Errorf("insert line: %w", err)
	}
	lineID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("line id: %w", err)
	}

	for _, field := range orderedFields(record.Result) {
		for _, span := range record.Result[field] {
			if _, err := tx.Exec(`INSERT INTO spans (line_id, field, start_offset, end_offset, value) VALUES (?, ?, ?, ?, ?)`,
				lineID, field, int64(span.Start), int64(span.End), span.Text(record.Text)); err != nil {
				return fmt.Errorf("insert span: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
