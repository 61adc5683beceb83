package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists notification outcomes and dead letters to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			run_id    TEXT,
			symbol    TEXT,
			channel   TEXT,
			change    TEXT,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(timestamp)`,

		`CREATE TABLE IF NOT EXISTS dead_letters (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			source    TEXT,
			run_id    TEXT,
			reason    TEXT,
			payload   TEXT,
			attempts  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_ts ON dead_letters(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordNotification(evt *NotificationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO notifications
		(timestamp, run_id, symbol, channel, change, error)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.RunID, evt.Symbol, evt.Channel, evt.Change, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordDeadLetter(dl *DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := dl.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO dead_letters
		(timestamp, source, run_id, reason, payload, attempts)
		VALUES (?,?,?,?,?,?)`,
		ts.Unix(), dl.Source, dl.RunID, dl.Reason, dl.Payload, dl.Attempts,
	)
	return err
}

// DeadLetters returns the most recent dead letters, newest first.
func (r *SQLiteRecorder) DeadLetters(limit int) ([]DeadLetter, error) {
	rows, err := r.db.Query(`SELECT id, timestamp, source, run_id, reason, payload, attempts
		FROM dead_letters ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var ts int64
		if err := rows.Scan(&dl.ID, &ts, &dl.Source, &dl.RunID, &dl.Reason, &dl.Payload, &dl.Attempts); err != nil {
			return nil, err
		}
		dl.CreatedAt = time.Unix(ts, 0)
		out = append(out, dl)
	}
	return out, rows.Err()
}

// PurgeDeadLetters removes dead letters older than before.
func (r *SQLiteRecorder) PurgeDeadLetters(before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`DELETE FROM dead_letters WHERE timestamp < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
