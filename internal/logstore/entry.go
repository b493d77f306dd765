package logstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when a store has no backing handle.
var ErrUnavailable = errors.New("log store unavailable")

// DefaultTitleThreshold is the similarity above which two titles are treated as the same story.
const DefaultTitleThreshold = 0.85

// Entry records one successful publish. Entries are never mutated.
type Entry struct {
	Link      string    `json:"link"`
	Title     string    `json:"title"`
	Rewritten string    `json:"rewritten,omitempty"`
	Image     string    `json:"image,omitempty"`
	ImageHash string    `json:"imgHash,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Hashtags  []string  `json:"hashtags,omitempty"`
	PostID    string    `json:"postId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is an append-only history of published items.
type Store interface {
	// Load returns all entries oldest first. Unreadable history is reported
	// as empty with a nil error.
	Load(ctx context.Context) ([]Entry, error)
	// Append persists entry durably before returning.
	Append(ctx context.Context, entry Entry) error
}

// IsLinkPosted reports an exact link match.
func IsLinkPosted(link string, entries []Entry) bool {
	for _, e := range entries {
		if e.Link == link {
			return true
		}
	}
	return false
}

// IsTitleSimilar reports whether any logged title scores strictly above threshold.
func IsTitleSimilar(title string, entries []Entry, threshold float64) bool {
	for _, e := range entries {
		if e.Title == "" {
			continue
		}
		if Similarity(title, e.Title) > threshold {
			return true
		}
	}
	return false
}

// IsImageHashPosted reports an exact hash match. Empty hashes never match.
func IsImageHashPosted(hash string, entries []Entry) bool {
	if hash == "" {
		return false
	}
	for _, e := range entries {
		if e.ImageHash == hash {
			return true
		}
	}
	return false
}

// CountToday counts entries published on now's calendar day (UTC).
func CountToday(entries []Entry, now time.Time) int {
	y, m, d := now.UTC().Date()
	count := 0
	for _, e := range entries {
		ey, em, ed := e.Timestamp.UTC().Date()
		if ey == y && em == m && ed == d {
			count++
		}
	}
	return count
}
