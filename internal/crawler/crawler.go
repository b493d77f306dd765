package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/pkg/logging"
)

const (
	MaxSources        = 5
	MaxItemsPerSource = 5
	maxPageBytes      = 5 << 20
	maxImagesPerItem  = 5
)

// Fetcher is the subset of clients.Fetcher the crawler needs.
type Fetcher interface {
	Get(ctx context.Context, url string, maxBytes int64) ([]byte, http.Header, error)
	Head(ctx context.Context, url string) (int, http.Header, error)
}

type Config struct {
	Fetcher Fetcher
	Logger  logging.Logger
	// MinImageBytes is the smallest Content-Length accepted by FetchImages
	MinImageBytes int64
}

// Crawler discovers candidate articles and fetches their bodies and images.
type Crawler struct {
	fetcher       Fetcher
	parser        *gofeed.Parser
	logger        logging.Logger
	minImageBytes int64
}

func New(cfg Config) *Crawler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.MinImageBytes <= 0 {
		cfg.MinImageBytes = 50000
	}
	return &Crawler{
		fetcher:       cfg.Fetcher,
		parser:        gofeed.NewParser(),
		logger:        cfg.Logger,
		minImageBytes: cfg.MinImageBytes,
	}
}

// Crawl visits at most MaxSources sources, falling back to DefaultSources
// when the list is empty. Per-source failures are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, sources []string) []Candidate {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	if len(sources) > MaxSources {
		sources = sources[:MaxSources]
	}

	var out []Candidate
	for _, raw := range sources {
		if ctx.Err() != nil {
			break
		}
		src, err := ResolveSource(raw)
		if err != nil {
			c.logger.WithError(err).Warn("Crawler: skipping source")
			metrics.CrawlErrorsTotal.WithLabelValues("source").Inc()
			continue
		}
		out = append(out, c.CrawlSource(ctx, src)...)
	}
	return out
}

// CrawlSource prefers the RSS feed and parses the listing page only when the
// feed yields nothing.
func (c *Crawler) CrawlSource(ctx context.Context, src Source) []Candidate {
	log := c.logger.WithField("site", src.Name)

	var home []byte
	if src.RSS == "" {
		body, _, err := c.fetcher.Get(ctx, src.Origin, maxPageBytes)
		if err != nil {
			log.WithError(err).Warn("Crawler: homepage fetch failed")
		} else {
			home = body
			src.RSS = discoverFeed(body, src.Origin)
		}
	}

	if src.RSS != "" {
		items, err := c.fromFeed(ctx, src)
		if err != nil {
			log.WithError(err).WithField("rss", src.RSS).Warn("Crawler: RSS failed")
			metrics.CrawlErrorsTotal.WithLabelValues("rss").Inc()
		}
		if len(items) > 0 {
			return items
		}
	}

	if home == nil {
		body, _, err := c.fetcher.Get(ctx, src.Origin, maxPageBytes)
		if err != nil {
			log.WithError(err).Warn("Crawler: HTML fallback failed")
			metrics.CrawlErrorsTotal.WithLabelValues("html").Inc()
			return nil
		}
		home = body
	}
	items, err := fromListing(home, src)
	if err != nil {
		log.WithError(err).Warn("Crawler: HTML parse failed")
		metrics.CrawlErrorsTotal.WithLabelValues("html").Inc()
	}
	return items
}

func (c *Crawler) fromFeed(ctx context.Context, src Source) ([]Candidate, error) {
	body, _, err := c.fetcher.Get(ctx, src.RSS, maxPageBytes)
	if err != nil {
		return nil, err
	}
	feed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, it := range feed.Items {
		if len(out) >= MaxItemsPerSource {
			break
		}
		out = append(out, Candidate{
			Source: src.Name,
			Title:  strings.TrimSpace(it.Title),
			Link:   strings.TrimSpace(it.Link),
			Images: feedItemImages(it),
		})
	}
	return out, nil
}

// feedItemImages collects enclosure and inline body images, first seen wins.
func feedItemImages(it *gofeed.Item) []string {
	var imgs []string
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" {
			imgs = append(imgs, enc.URL)
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		imgs = append(imgs, it.Image.URL)
	}
	for _, body := range []string{it.Content, it.Description} {
		if body != "" {
			imgs = append(imgs, inlineImages(body)...)
		}
	}
	return Unique(imgs)
}

// inlineImages tokenizes an HTML fragment and returns every <img src>.
func inlineImages(fragment string) []string {
	var out []string
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key == "src" && attr.Val != "" {
				out = append(out, attr.Val)
			}
		}
	}
}

// discoverFeed finds an advertised RSS or Atom link on a homepage.
func discoverFeed(page []byte, base string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	for _, typ := range []string{"application/rss+xml", "application/atom+xml"} {
		if href, ok := doc.Find(`link[type="` + typ + `"]`).First().Attr("href"); ok && href != "" {
			return normalizeURL(href, base)
		}
	}
	return ""
}

// fromListing applies the source selector to a listing page. Only links
// carrying a four-digit run (article ids, dates) are kept.
func fromListing(page []byte, src Source) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	parse := src.parse
	if parse == nil {
		parse = defaultParse
	}

	var out []Candidate
	doc.Find(src.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(out) >= MaxItemsPerSource {
			return false
		}
		it := parse(s)
		link := normalizeURL(it.link, src.Origin)
		if it.title == "" || link == "" || !isArticleLink(link) {
			return true
		}
		var images []string
		s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			if len(images) >= maxImagesPerItem {
				return false
			}
			if u := imageAttr(img); u != "" {
				images = append(images, normalizeURL(u, src.Origin))
			}
			return true
		})
		// dantri keeps the thumbnail beside the content block
		if len(images) == 0 {
			if u, ok := s.Parent().Find("img").First().Attr("data-src"); ok && u != "" {
				images = append(images, normalizeURL(u, src.Origin))
			}
		}
		out = append(out, Candidate{Source: src.Name, Title: it.title, Link: link, Images: images})
		return true
	})
	return out, nil
}

// isArticleLink looks for the digit run in the path and query only, so a
// port number never qualifies a link.
func isArticleLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return articleLinkRe.MatchString(u.Path + "?" + u.RawQuery)
}

func imageAttr(img *goquery.Selection) string {
	if u, ok := img.Attr("src"); ok && strings.TrimSpace(u) != "" {
		return u
	}
	u, _ := img.Attr("data-src")
	return u
}

// Unique drops empty and repeated entries, keeping first occurrences in order.
func Unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
