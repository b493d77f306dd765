package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"frameworks/crowsnest/pkg/logging"
)

// SQLStore keeps the history in the crowsnest_post_log table.
type SQLStore struct {
	db     *sql.DB
	kind   string
	logger logging.Logger
}

// NewSQLStore scopes the store to kind ("news" or "reels") so both
// histories can share one table.
func NewSQLStore(db *sql.DB, kind string, logger logging.Logger) *SQLStore {
	if kind == "" {
		kind = "news"
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SQLStore{db: db, kind: kind, logger: logger}
}

// Load treats query failures as "no prior history", matching the file store.
func (s *SQLStore) Load(ctx context.Context) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT link, title, rewritten, image, img_hash, topics, hashtags, post_id, created_at
		FROM crowsnest_post_log
		WHERE kind = $1
		ORDER BY id ASC
	`, s.kind)
	if err != nil {
		s.logger.WithError(err).Error("Post log query failed, treating history as empty")
		return nil, nil
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.logger.WithError(err).Error("Post log row unreadable, treating history as empty")
			return nil, nil
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Error("Post log iteration failed, treating history as empty")
		return nil, nil
	}
	return entries, nil
}

func (s *SQLStore) Append(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	topics, err := json.Marshal(nonNil(entry.Topics))
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	hashtags, err := json.Marshal(nonNil(entry.Hashtags))
	if err != nil {
		return fmt.Errorf("encode hashtags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crowsnest_post_log (
			link, title, rewritten, image, img_hash, topics, hashtags, post_id, kind, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.Link,
		entry.Title,
		entry.Rewritten,
		entry.Image,
		entry.ImageHash,
		topics,
		hashtags,
		entry.PostID,
		s.kind,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert post log: %w", err)
	}
	return nil
}

type entryScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s entryScanner) (Entry, error) {
	var e Entry
	var topics, hashtags []byte
	if err := s.Scan(
		&e.Link,
		&e.Title,
		&e.Rewritten,
		&e.Image,
		&e.ImageHash,
		&topics,
		&hashtags,
		&e.PostID,
		&e.Timestamp,
	); err != nil {
		return Entry{}, fmt.Errorf("scan post log: %w", err)
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &e.Topics); err != nil {
			return Entry{}, fmt.Errorf("decode topics: %w", err)
		}
	}
	if len(hashtags) > 0 {
		if err := json.Unmarshal(hashtags, &e.Hashtags); err != nil {
			return Entry{}, fmt.Errorf("decode hashtags: %w", err)
		}
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
