package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"frameworks/crowsnest/internal/crawler"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/pkg/cache"
	"frameworks/crowsnest/pkg/logging"
)

const defaultMaxImageBytes = 20 << 20

// Reason names the gate that rejected a candidate.
type Reason string

const (
	ReasonIncomplete   Reason = "incomplete"
	ReasonSeenLink     Reason = "seen_in_cycle"
	ReasonPostedLink   Reason = "link_posted"
	ReasonSimilarTitle Reason = "similar_title"
	ReasonPostedImage  Reason = "image_posted"
	// ReasonStopped is not a duplicate verdict; the loop was asked to stop
	// between image fetches.
	ReasonStopped Reason = "stopped"
)

// Decision is the outcome of Check.
type Decision struct {
	Accepted bool
	Reason   Reason
	// Detail carries the offending image URL for image rejections.
	Detail string
}

// ImageFetcher downloads raw image bytes.
type ImageFetcher interface {
	Get(ctx context.Context, url string, maxBytes int64) ([]byte, http.Header, error)
}

// ImageClaims is the in-queue seen-image set.
type ImageClaims interface {
	HasImage(hash string) bool
	ReserveImage(hash string) bool
}

type Config struct {
	Fetcher ImageFetcher
	Claims  ImageClaims
	// Threshold defaults to logstore.DefaultTitleThreshold.
	Threshold     float64
	MaxImageBytes int64
	// HashTTL bounds how long a URL's content hash is remembered.
	HashTTL time.Duration
	Logger  logging.Logger
}

// Engine applies the duplicate gates. It holds no per-cycle state.
type Engine struct {
	fetcher   ImageFetcher
	claims    ImageClaims
	threshold float64
	maxBytes  int64
	hashes    *cache.Cache[string]
	logger    logging.Logger
}

func NewEngine(cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = logstore.DefaultTitleThreshold
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.HashTTL <= 0 {
		cfg.HashTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Engine{
		fetcher:   cfg.Fetcher,
		claims:    cfg.Claims,
		threshold: cfg.Threshold,
		maxBytes:  cfg.MaxImageBytes,
		hashes:    cache.New[string](cache.Options{TTL: cfg.HashTTL, MaxEntries: 2048}, cache.MetricsHooks{}),
		logger:    cfg.Logger,
	}
}

// Cycle is the state shared by all candidates of one crawl pass.
type Cycle struct {
	Entries []logstore.Entry
	// Running, when set, is checked between image fetches.
	Running func() bool
	seen    map[string]struct{}
}

func NewCycle(entries []logstore.Entry) *Cycle {
	return &Cycle{Entries: entries, seen: make(map[string]struct{})}
}

// MarkSeen records link as handled in this cycle.
func (c *Cycle) MarkSeen(link string) {
	c.seen[link] = struct{}{}
}

func (c *Cycle) Seen(link string) bool {
	_, ok := c.seen[link]
	return ok
}

// HashBytes is the content hash used for every image comparison.
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Check runs the structural, link, title and pre-transform image gates in
// order and stops at the first rejection. It does not mutate cycle.
func (e *Engine) Check(ctx context.Context, cycle *Cycle, c crawler.Candidate) Decision {
	title := strings.TrimSpace(c.Title)
	link := strings.TrimSpace(c.Link)
	if title == "" || link == "" {
		return Decision{Reason: ReasonIncomplete}
	}
	if cycle.Seen(link) {
		return Decision{Reason: ReasonSeenLink}
	}
	if logstore.IsLinkPosted(link, cycle.Entries) {
		return Decision{Reason: ReasonPostedLink}
	}
	if logstore.IsTitleSimilar(title, cycle.Entries, e.threshold) {
		return Decision{Reason: ReasonSimilarTitle}
	}

	for _, url := range c.Images {
		if cycle.Running != nil && !cycle.Running() {
			return Decision{Reason: ReasonStopped}
		}
		hash, err := e.sourceHash(ctx, url)
		if err != nil {
			e.logger.WithError(err).WithField("image", url).Warn("Dedup: image fetch failed, continuing")
			continue
		}
		if logstore.IsImageHashPosted(hash, cycle.Entries) {
			return Decision{Reason: ReasonPostedImage, Detail: url}
		}
	}
	return Decision{Accepted: true}
}

func (e *Engine) sourceHash(ctx context.Context, url string) (string, error) {
	return e.hashes.Get(ctx, url, func(ctx context.Context, url string) (string, error) {
		data, _, err := e.fetcher.Get(ctx, url, e.maxBytes)
		if err != nil {
			return "", err
		}
		return HashBytes(data), nil
	})
}

// ClaimProcessedImage is the post-transform gate for one image. It rejects
// hashes already in the log or claimed by the queue. When primary is set a
// surviving hash is reserved in the queue's image set straight away.
func (e *Engine) ClaimProcessedImage(cycle *Cycle, hash string, primary bool) bool {
	if hash == "" {
		return false
	}
	if logstore.IsImageHashPosted(hash, cycle.Entries) {
		return false
	}
	if e.claims == nil {
		return true
	}
	if primary {
		return e.claims.ReserveImage(hash)
	}
	return !e.claims.HasImage(hash)
}
