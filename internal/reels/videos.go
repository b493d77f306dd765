// Package reels is the short-video variant of the news loop: channel feeds
// in, captioned clips out onto a separate queue.
package reels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/pkg/logging"
)

const (
	// MaxVideosPerSource caps items taken from one channel feed.
	MaxVideosPerSource = 5

	maxFeedBytes     = 5 << 20
	defaultMaxVideo  = 200 << 20
	youtubeFeedBase  = "https://www.youtube.com/feeds/videos.xml"
	youtubeWatchBase = "https://www.youtube.com/watch?v="
)

var (
	// ErrUnsupportedSource is returned for hosts without a feed strategy.
	ErrUnsupportedSource = errors.New("unsupported video source")
	// ErrNotVideo means the download did not return video bytes.
	ErrNotVideo = errors.New("response is not a video")

	channelIDRe = regexp.MustCompile(`"(?:channelId|externalId)":"(UC[\w-]{22})"`)
)

// Video is one discovered clip.
type Video struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description,omitempty"`
	// MediaURL is a direct file URL when the feed advertises one.
	MediaURL string `json:"mediaUrl,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Fetcher is the subset of clients.Fetcher used here.
type Fetcher interface {
	Get(ctx context.Context, url string, maxBytes int64) ([]byte, http.Header, error)
}

type FinderConfig struct {
	Fetcher Fetcher
	Logger  logging.Logger
	// MaxVideoBytes bounds a single download.
	MaxVideoBytes int64
}

// Finder reads channel feeds and downloads clips.
type Finder struct {
	fetcher  Fetcher
	parser   *gofeed.Parser
	logger   logging.Logger
	maxBytes int64
}

func NewFinder(cfg FinderConfig) *Finder {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.MaxVideoBytes <= 0 {
		cfg.MaxVideoBytes = defaultMaxVideo
	}
	return &Finder{
		fetcher:  cfg.Fetcher,
		parser:   gofeed.NewParser(),
		logger:   cfg.Logger,
		maxBytes: cfg.MaxVideoBytes,
	}
}

// Find collects up to MaxVideosPerSource videos from every source. A
// failing source is logged and skipped.
func (f *Finder) Find(ctx context.Context, sources []string) []Video {
	var out []Video
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		videos, err := f.fromSource(ctx, src)
		if err != nil {
			metrics.CrawlErrorsTotal.WithLabelValues("video").Inc()
			f.logger.WithError(err).WithField("video_source", src).Warn("Video crawler: source failed")
			continue
		}
		out = append(out, videos...)
	}
	return out
}

func (f *Finder) fromSource(ctx context.Context, raw string) ([]Video, error) {
	feedURL, err := f.FeedURL(ctx, raw)
	if err != nil {
		return nil, err
	}
	body, _, err := f.fetcher.Get(ctx, feedURL, maxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var out []Video
	for _, it := range feed.Items {
		if len(out) >= MaxVideosPerSource {
			break
		}
		v := Video{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Description: strings.TrimSpace(mediaDescription(it)),
			MediaURL:    mediaURL(it),
			Source:      raw,
		}
		if v.Link == "" {
			if id := extensionValue(it, "yt", "videoId"); id != "" {
				v.Link = youtubeWatchBase + id
			}
		}
		if v.Title == "" || v.Link == "" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// FeedURL maps a channel page to its Atom feed. YouTube handle and custom
// URLs are resolved by reading the channel id off the page; other hosts
// are assumed to be feeds already.
func (f *Finder) FeedURL(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, host)
	case host != "youtube.com":
		return u.String(), nil
	case strings.HasPrefix(u.Path, "/feeds/"):
		return u.String(), nil
	}

	if rest, ok := strings.CutPrefix(u.Path, "/channel/"); ok {
		if id := strings.Trim(rest, "/"); id != "" {
			return youtubeFeedBase + "?channel_id=" + strings.SplitN(id, "/", 2)[0], nil
		}
	}
	if list := u.Query().Get("list"); list != "" {
		return youtubeFeedBase + "?playlist_id=" + list, nil
	}

	page, _, err := f.fetcher.Get(ctx, u.String(), maxFeedBytes)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}
	if feed := advertisedFeed(page); feed != "" {
		return feed, nil
	}
	if m := channelIDRe.FindSubmatch(page); m != nil {
		return youtubeFeedBase + "?channel_id=" + string(m[1]), nil
	}
	return "", fmt.Errorf("%w: no channel id on %s", ErrUnsupportedSource, u.String())
}

// Download fetches the clip bytes from the advertised media URL, or the
// link itself when none is known.
func (f *Finder) Download(ctx context.Context, v Video) ([]byte, error) {
	target := v.MediaURL
	if target == "" {
		target = v.Link
	}
	data, hdr, err := f.fetcher.Get(ctx, target, f.maxBytes)
	if err != nil {
		return nil, err
	}
	ct := strings.ToLower(hdr.Get("Content-Type"))
	if !strings.HasPrefix(ct, "video/") && ct != "application/octet-stream" {
		return nil, fmt.Errorf("%w: %s returned %q", ErrNotVideo, target, ct)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotVideo, target)
	}
	return data, nil
}

func advertisedFeed(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	href, _ := doc.Find(`link[rel="alternate"][type="application/rss+xml"]`).First().Attr("href")
	return strings.TrimSpace(href)
}

// mediaDescription reads media:group/media:description, falling back to
// the plain item description.
func mediaDescription(it *gofeed.Item) string {
	if groups := it.Extensions["media"]["group"]; len(groups) > 0 {
		if d := groups[0].Children["description"]; len(d) > 0 && d[0].Value != "" {
			return d[0].Value
		}
	}
	return it.Description
}

func mediaURL(it *gofeed.Item) string {
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "video/") && enc.URL != "" {
			return enc.URL
		}
	}
	contents := slices.Clip(it.Extensions["media"]["content"])
	if groups := it.Extensions["media"]["group"]; len(groups) > 0 {
		contents = append(contents, groups[0].Children["content"]...)
	}
	for _, c := range contents {
		if strings.HasPrefix(c.Attrs["type"], "video/") && c.Attrs["url"] != "" {
			return c.Attrs["url"]
		}
	}
	return ""
}

func extensionValue(it *gofeed.Item, ns, name string) string {
	if vals := it.Extensions[ns][name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}
