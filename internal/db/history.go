package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/events"
)

// pruneEvery is how many recorded commands pass between automatic prunes.
const pruneEvery = 100

var historyMigrations = []string{
	`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);`,
}

// Entry is one executed command.
type Entry struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Address   string        `json:"address"`
	Command   string        `json:"command"`
	Response  string        `json:"response"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// Failed reports whether the command returned an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// HistoryDatabase records every command sent through a session.
type HistoryDatabase struct {
	db         *Database
	maxEntries int
}

// NewHistoryDatabase opens the history database and migrates its schema.
// maxEntries bounds the table size when recording from the event bus;
// zero keeps everything.
func NewHistoryDatabase(dbPath string, maxEntries int) (*HistoryDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(historyMigrations); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &HistoryDatabase{db: database, maxEntries: maxEntries}, nil
}

// Close closes the underlying database.
func (h *HistoryDatabase) Close() error {
	return h.db.Close()
}

// Record stores an entry and returns its id. A zero CreatedAt is set to now.
func (h *HistoryDatabase) Record(e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	res, err := h.db.Exec(
		`INSERT INTO history (session_id, address, command, response, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Address, e.Command, e.Response, e.Error,
		e.Duration.Milliseconds(), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record command: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (h *HistoryDatabase) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT id, session_id, address, command, response, error, duration_ms, created_at
		 FROM history ORDER BY id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEntries(rows)
}

// Search returns up to limit entries whose command or response contains
// substr, newest first. The match is case-insensitive for ASCII.
func (h *HistoryDatabase) Search(substr string, limit int) ([]Entry, error) {
	pattern := "%" + escapeLike(substr) + "%"
	rows, err := h.db.Query(
		`SELECT id, session_id, address, command, response, error, duration_ms, created_at
		 FROM history
		 WHERE command LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\'
		 ORDER BY id DESC LIMIT ?`, pattern, pattern, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	return scanEntries(rows)
}

// Count returns the number of stored entries.
func (h *HistoryDatabase) Count() (int, error) {
	var n int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// removed. keep <= 0 leaves the table untouched.
func (h *HistoryDatabase) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	var removed int64
	err := h.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY id DESC LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}

	if removed > 0 {
		log.Debug().Int64("removed", removed).Int("kept", keep).Msg("history pruned")
	}
	return removed, nil
}

// Subscribe records command events published on the bus.
func (h *HistoryDatabase) Subscribe(bus *events.EventBus) {
	handler := func(_ context.Context, event events.Event) error {
		p, ok := event.Payload.(events.CommandPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}

		id, err := h.Record(Entry{
			SessionID: p.SessionID,
			Address:   p.Address,
			Command:   p.Command,
			Response:  p.Response,
			Error:     p.Error,
			Duration:  p.Duration,
			CreatedAt: event.Time,
		})
		if err != nil {
			return err
		}

		if h.maxEntries > 0 && id%pruneEvery == 0 {
			_, err = h.Prune(h.maxEntries)
		}
		return err
	}

	bus.Subscribe(events.EventCommandExecuted, "history", handler)
	bus.Subscribe(events.EventCommandFailed, "history", handler)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Address, &e.Command, &e.Response,
			&e.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 1000
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
