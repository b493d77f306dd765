package queue

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MediaItem is an encoded image or video. The filename extension decides
// how the publisher uploads it.
type MediaItem struct {
	Data     []byte
	Filename string
}

// IsVideo reports whether the item should go through the video endpoint.
func (m MediaItem) IsVideo() bool {
	switch strings.ToLower(filepath.Ext(m.Filename)) {
	case ".mp4", ".mov", ".webm", ".mkv":
		return true
	}
	return false
}

// Post is an admitted item waiting to be published.
type Post struct {
	ID        string
	Content   string
	Media     []MediaItem
	Link      string
	Title     string
	ImageHash string
	Topics    []string
	Hashtags  []string
	RawImages []string
	QueuedAt  time.Time
}

// Summary is the byte-free view returned to status callers.
type Summary struct {
	ID         string    `json:"id"`
	Link       string    `json:"link"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ImageHash  string    `json:"imgHash,omitempty"`
	Topics     []string  `json:"topics,omitempty"`
	Hashtags   []string  `json:"hashtags,omitempty"`
	MediaCount int       `json:"mediaCount"`
	QueuedAt   time.Time `json:"queuedAt"`
}

// Queue is a FIFO of posts plus the set of image hashes already claimed by
// admitted or in-flight posts.
type Queue struct {
	mu     sync.Mutex
	items  []Post
	images map[string]struct{}
	now    func() time.Time
}

func New() *Queue {
	return &Queue{images: make(map[string]struct{}), now: time.Now}
}

// Push appends p at the tail and returns the stored copy.
func (q *Queue) Push(p Post) Post {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.QueuedAt.IsZero() {
		p.QueuedAt = q.now().UTC()
	}
	if p.ImageHash != "" {
		q.images[p.ImageHash] = struct{}{}
	}
	q.items = append(q.items, p)
	return p
}

// Shift removes and returns the head.
func (q *Queue) Shift() (Post, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Post{}, false
	}
	head := q.items[0]
	q.items[0] = Post{}
	q.items = q.items[1:]
	return head, true
}

// RemoveByLink drops every pending post with link and returns how many
// were removed. Already dequeued posts are unaffected.
func (q *Queue) RemoveByLink(link string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, p := range q.items {
		if p.Link == link {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Post{}
	}
	q.items = kept
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot lists pending posts head first.
func (q *Queue) Snapshot() []Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Summary, 0, len(q.items))
	for _, p := range q.items {
		out = append(out, Summary{
			ID:         p.ID,
			Link:       p.Link,
			Title:      p.Title,
			Content:    p.Content,
			ImageHash:  p.ImageHash,
			Topics:     p.Topics,
			Hashtags:   p.Hashtags,
			MediaCount: len(p.Media),
			QueuedAt:   p.QueuedAt,
		})
	}
	return out
}

// HasImage reports whether hash was already claimed in this process.
func (q *Queue) HasImage(hash string) bool {
	if hash == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.images[hash]
	return ok
}

// ReserveImage claims hash and reports whether it was free. Claims are
// kept for the life of the process; the log store covers restarts.
func (q *Queue) ReserveImage(hash string) bool {
	if hash == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.images[hash]; ok {
		return false
	}
	q.images[hash] = struct{}{}
	return true
}
