package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inquiry-relay/inquiry-relay/internal/dedup"
)

// Message is one processed inbox message and what happened to it.
type Message struct {
	ID              int64
	MessageID       string
	Sender          string
	Subject         string
	DisplayTitle    string
	OriginatorEmail string
	SubmissionType  string
	Payload         string // JSON form of the extracted record
	Duplicate       bool
	WebhookSent     bool
	Archived        bool
	Error           string
	ReceivedAt      time.Time
	ProcessedAt     time.Time
}

// LogEntry is a structured pipeline event kept for the dashboard.
type LogEntry struct {
	ID        int64
	Level     string
	Message   string
	CreatedAt time.Time
}

// ErrorEntry records a failure with the stage it happened in.
type ErrorEntry struct {
	ID        int64
	Stage     string
	Message   string
	CreatedAt time.Time
}

type Stats struct {
	Total      int
	Relayed    int
	Duplicates int
	Failed     int
	Windows    int
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS processed_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		sender TEXT NOT NULL,
		subject TEXT,
		display_title TEXT,
		originator_email TEXT,
		submission_type TEXT,
		payload TEXT,
		duplicate INTEGER DEFAULT 0,
		webhook_sent INTEGER DEFAULT 0,
		archived INTEGER DEFAULT 0,
		error TEXT,
		received_at DATETIME,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pm_originator ON processed_messages(originator_email);
	CREATE INDEX IF NOT EXISTS idx_pm_processed_at ON processed_messages(processed_at);
	CREATE INDEX IF NOT EXISTS idx_pm_duplicate ON processed_messages(duplicate);

	CREATE TABLE IF NOT EXISTS submission_windows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_email TEXT NOT NULL,
		submission_type TEXT NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		first_message_id TEXT,
		last_message_id TEXT,
		display_subject TEXT,
		count INTEGER DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(sender_email, submission_type)
	);

	CREATE INDEX IF NOT EXISTS idx_sw_last_seen ON submission_windows(last_seen);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stage TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// IsProcessed reports whether a message with this Message-ID has already
// been through the pipeline. Used to survive restarts without replaying.
func (s *Store) IsProcessed(messageID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_messages WHERE message_id = ?`, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return n > 0, nil
}

func (s *Store) SaveMessage(m *Message) error {
	query := `
	INSERT INTO processed_messages (message_id, sender, subject, display_title, originator_email,
		submission_type, payload, duplicate, webhook_sent, archived, error, received_at, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		m.MessageID, m.Sender, m.Subject, m.DisplayTitle, m.OriginatorEmail,
		m.SubmissionType, m.Payload, boolInt(m.Duplicate), boolInt(m.WebhookSent),
		boolInt(m.Archived), m.Error, m.ReceivedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (s *Store) MarkWebhookSent(id int64) error {
	_, err := s.db.Exec(`UPDATE processed_messages SET webhook_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook sent: %w", err)
	}
	return nil
}

// MarkFailed records a post-save failure, typically webhook delivery, on
// the message row.
func (s *Store) MarkFailed(id int64, message string) error {
	_, err := s.db.Exec(`UPDATE processed_messages SET error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}

func (s *Store) MarkArchived(id int64) error {
	_, err := s.db.Exec(`UPDATE processed_messages SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark archived: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(limit int) ([]Message, error) {
	query := `
	SELECT id, message_id, sender, subject, display_title, originator_email, submission_type,
		duplicate, webhook_sent, archived, error, received_at, processed_at
	FROM processed_messages ORDER BY processed_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var subject, title, originator, subType, errStr sql.NullString
		var duplicate, webhookSent, archived int
		var receivedAt, processedAt sql.NullTime

		err := rows.Scan(&m.ID, &m.MessageID, &m.Sender, &subject, &title, &originator, &subType,
			&duplicate, &webhookSent, &archived, &errStr, &receivedAt, &processedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.Subject = subject.String
		m.DisplayTitle = title.String
		m.OriginatorEmail = originator.String
		m.SubmissionType = subType.String
		m.Duplicate = duplicate == 1
		m.WebhookSent = webhookSent == 1
		m.Archived = archived == 1
		m.Error = errStr.String
		m.ReceivedAt = receivedAt.Time
		m.ProcessedAt = processedAt.Time
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetWindowRecord loads the dedup state for one identity, nil when the
// identity has never been seen.
func (s *Store) GetWindowRecord(email, submissionType string) (*dedup.WindowRecord, error) {
	query := `SELECT first_seen, last_seen, first_message_id, last_message_id, display_subject,
		count, updated_at FROM submission_windows
		WHERE sender_email = ? AND submission_type = ?`

	var rec dedup.WindowRecord
	var firstSeen, lastSeen, updatedAt sql.NullTime
	var firstID, lastID, subject sql.NullString

	err := s.db.QueryRow(query, email, submissionType).Scan(
		&firstSeen, &lastSeen, &firstID, &lastID, &subject, &rec.Count, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query window record: %w", err)
	}

	rec.Identity = dedup.Identity{Email: email, Type: submissionType}
	rec.FirstSeen = firstSeen.Time
	rec.LastSeen = lastSeen.Time
	rec.FirstMessageID = firstID.String
	rec.LastMessageID = lastID.String
	rec.DisplaySubject = subject.String
	rec.UpdatedAt = updatedAt.Time
	return &rec, nil
}

// UpsertWindowRecord records a sighting. First contact creates the row;
// repeats advance last_seen, last_message_id, display_subject and the
// cumulative count while first_seen and first_message_id stay fixed.
func (s *Store) UpsertWindowRecord(email, submissionType, subject, messageID string, seenAt time.Time) error {
	query := `
	INSERT INTO submission_windows (sender_email, submission_type, first_seen, last_seen,
		first_message_id, last_message_id, display_subject, count, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
	ON CONFLICT(sender_email, submission_type) DO UPDATE SET
		last_seen = excluded.last_seen,
		last_message_id = excluded.last_message_id,
		display_subject = excluded.display_subject,
		count = count + 1,
		updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, email, submissionType, seenAt, seenAt, messageID, messageID, subject, seenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert window record: %w", err)
	}
	return nil
}

func (s *Store) RecentWindows(limit int) ([]dedup.WindowRecord, error) {
	query := `SELECT sender_email, submission_type, first_seen, last_seen,
		first_message_id, last_message_id, display_subject, count, updated_at
		FROM submission_windows ORDER BY last_seen DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}
	defer rows.Close()

	var records []dedup.WindowRecord
	for rows.Next() {
		var rec dedup.WindowRecord
		var firstSeen, lastSeen, updatedAt sql.NullTime
		var firstID, lastID, subject sql.NullString

		if err := rows.Scan(&rec.Identity.Email, &rec.Identity.Type, &firstSeen, &lastSeen,
			&firstID, &lastID, &subject, &rec.Count, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan window record: %w", err)
		}
		rec.FirstSeen = firstSeen.Time
		rec.LastSeen = lastSeen.Time
		rec.FirstMessageID = firstID.String
		rec.LastMessageID = lastID.String
		rec.DisplaySubject = subject.String
		rec.UpdatedAt = updatedAt.Time
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) AddLog(level, message string) error {
	_, err := s.db.Exec(`INSERT INTO logs (level, message) VALUES (?, ?)`, level, message)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (s *Store) RecentLogs(limit int) ([]LogEntry, error) {
	rows, err := s.db.Query(`SELECT id, level, message, created_at FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var createdAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AddError(stage, message string) error {
	_, err := s.db.Exec(`INSERT INTO errors (stage, message) VALUES (?, ?)`, stage, message)
	if err != nil {
		return fmt.Errorf("failed to insert error: %w", err)
	}
	return nil
}

func (s *Store) RecentErrors(limit int) ([]ErrorEntry, error) {
	rows, err := s.db.Query(`SELECT id, stage, message, created_at FROM errors ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var entries []ErrorEntry
	for rows.Next() {
		var e ErrorEntry
		var createdAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Stage, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	query := `SELECT COUNT(*),
		SUM(CASE WHEN webhook_sent=1 THEN 1 ELSE 0 END),
		SUM(CASE WHEN duplicate=1 THEN 1 ELSE 0 END),
		SUM(CASE WHEN error != '' THEN 1 ELSE 0 END)
		FROM processed_messages`

	var relayed, duplicates, failed sql.NullInt64
	err := s.db.QueryRow(query).Scan(&stats.Total, &relayed, &duplicates, &failed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	stats.Relayed = int(relayed.Int64)
	stats.Duplicates = int(duplicates.Int64)
	stats.Failed = int(failed.Int64)

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM submission_windows`).Scan(&stats.Windows); err != nil {
		return Stats{}, fmt.Errorf("failed to count windows: %w", err)
	}
	return stats, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "inquiry_relay.db"
	}
	return filepath.Join(home, ".inquiry-relay", "relay.db")
}
