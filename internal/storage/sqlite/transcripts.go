package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/agent-desktop/pkg/logger"
)

// TranscriptStorage handles durable storage of transcript turns.
//
// Writers are serialized by the orchestrator, but the storage also guards
// every mutation with its own mutex so readers never observe a partial write.
type TranscriptStorage struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB, logger *logger.Logger) (*TranscriptStorage, error) {
	storage := &TranscriptStorage{
		db:     db,
		logger: logger.Named("sqlite-transcripts"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize transcript storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			is_final INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_turns table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcript_turns_timestamp ON transcript_turns(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create transcript index: %w", err)
	}

	return nil
}

// Append stores a turn at the end of the transcript. It is a no-op when the
// turn repeats the immediately preceding turn's (speaker, text) pair, and
// reports whether the turn was stored.
func (s *TranscriptStorage) Append(turn TranscriptTurn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastSpeaker, lastText string
	err := s.db.QueryRow(
		`SELECT speaker, text FROM transcript_turns ORDER BY id DESC LIMIT 1`,
	).Scan(&lastSpeaker, &lastText)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to query last turn: %w", err)
	}
	if err == nil && Speaker(lastSpeaker) == turn.Speaker && lastText == turn.Text {
		s.logger.Debug("Suppressing duplicate turn",
			logger.String("speaker", string(turn.Speaker)),
			logger.String("text", turn.Text))
		return false, nil
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO transcript_turns (speaker, text, timestamp, is_final) VALUES (?, ?, ?, ?)`,
		string(turn.Speaker),
		turn.Text,
		turn.Timestamp.Format(time.RFC3339),
		boolToInt(turn.IsFinal),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert turn: %w", err)
	}

	return true, nil
}

// UpdateLastIfSpeaker finalizes an in-flight turn: when the most recent turn
// belongs to the given speaker, its text is replaced and the turn is marked
// final. Any other situation is a silent no-op.
func (s *TranscriptStorage) UpdateLastIfSpeaker(speaker Speaker, newText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE transcript_turns
		SET text = ?, is_final = 1
		WHERE id = (SELECT id FROM transcript_turns ORDER BY id DESC LIMIT 1)
		AND speaker = ?`,
		newText,
		string(speaker),
	)
	if err != nil {
		return fmt.Errorf("failed to update last turn: %w", err)
	}

	return nil
}

// Load returns all turns in insertion order
func (s *TranscriptStorage) Load() ([]TranscriptTurn, error) {
	rows, err := s.db.Query(
		`SELECT id, speaker, text, timestamp, is_final FROM transcript_turns ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	return scanTurnRows(rows)
}

// Replace atomically swaps the whole transcript for the given turns. Readers
// observe either the old transcript or the new one, never a mix.
func (s *TranscriptStorage) Replace(turns []TranscriptTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_turns`); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO transcript_turns (speaker, text, timestamp, is_final) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.Exec(
			string(turn.Speaker),
			turn.Text,
			ts.Format(time.RFC3339),
			boolToInt(turn.IsFinal),
		); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}

	return nil
}

// Clear removes all turns. Called only at session start.
func (s *TranscriptStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM transcript_turns`); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// scanTurnRows scans database rows into TranscriptTurn structs
func scanTurnRows(rows *sql.Rows) ([]TranscriptTurn, error) {
	var turns []TranscriptTurn
	for rows.Next() {
		var turn TranscriptTurn
		var speaker, timestamp string
		var isFinal int

		if err := rows.Scan(&turn.ID, &speaker, &turn.Text, &timestamp, &isFinal); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		turn.Speaker = Speaker(speaker)
		turn.Timestamp = ts
		turn.IsFinal = isFinal != 0
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
