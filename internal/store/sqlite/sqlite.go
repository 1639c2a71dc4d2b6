package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mivora/stagesync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS channel_values (
	session_id TEXT NOT NULL,
	channel    TEXT NOT NULL,
	sender     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, channel)
);

CREATE TABLE IF NOT EXISTS bans (
	session_id TEXT    NOT NULL,
	uid        INTEGER NOT NULL,
	until      TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, uid)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveChannelValue upserts the last value for a channel in a session.
func (s *SQLiteStore) SaveChannelValue(ctx context.Context, sessionID, channel, sender, payload string) error {
	query := `
		INSERT INTO channel_values (session_id, channel, sender, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, channel)
		DO UPDATE SET sender = excluded.sender, payload = excluded.payload, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, channel, sender, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("save channel value: %w", err)
	}
	return nil
}

// ChannelValues returns the persisted last values for a session.
func (s *SQLiteStore) ChannelValues(ctx context.Context, sessionID string) (map[string]store.PersistedMessage, error) {
	query := `
		SELECT channel, sender, payload, updated_at
		FROM channel_values
		WHERE session_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load channel values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]store.PersistedMessage)
	for rows.Next() {
		var msg store.PersistedMessage
		if err := rows.Scan(&msg.Channel, &msg.Sender, &msg.Payload, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel value: %w", err)
		}
		values[msg.Channel] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel values: %w", err)
	}
	return values, nil
}

// SaveBan records that uid is banned from the session until the given time.
func (s *SQLiteStore) SaveBan(ctx context.Context, sessionID string, uid int64, until time.Time) error {
	query := `
		INSERT INTO bans (session_id, uid, until)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, uid)
		DO UPDATE SET until = excluded.until
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, uid, until.UTC()); err != nil {
		return fmt.Errorf("save ban: %w", err)
	}
	return nil
}

// BannedUIDs returns uids with an unexpired ban in the session.
func (s *SQLiteStore) BannedUIDs(ctx context.Context, sessionID string, now time.Time) ([]int64, error) {
	query := `
		SELECT uid FROM bans
		WHERE session_id = ? AND until > ?
		ORDER BY uid
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("load bans: %w", err)
	}
	defer rows.Close()

	var uids []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return uids, nil
}
