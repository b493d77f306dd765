package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const minParagraphRunes = 50

var paragraphSelectors = map[string]string{
	"vnexpress.net": ".fck_detail p",
	"cafef.vn":      ".detail-content p, .main-content-body p, .t-text-justify p",
	"tuoitre.vn":    ".detail-content p, .main-content-body p, .content-detail p",
	"dantri.com.vn": ".dt-news__content p, .singular-content p",
	"thanhnien.vn":  ".details__content p, .detail-content p",
	"vietnamnet.vn": ".maincontent p, .main-content p",
	"24h.com.vn":    ".text-conent p, .cate-24h-foot p",
}

const defaultParagraphSelector = "article p, .main-content p, .fck_detail p"

const articleImageSelector = "article img, .content-detail img, .detail-content img, .fck_detail img, .maincontent img"

// FetchContent returns the article body as paragraphs separated by blank
// lines. Site selectors are tried first; readability covers unknown layouts.
func (c *Crawler) FetchContent(ctx context.Context, link string) (string, error) {
	page, _, err := c.fetcher.Get(ctx, link, maxPageBytes)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	if text := selectParagraphs(page, link); text != "" {
		return text, nil
	}
	return readableText(page, link), nil
}

func selectParagraphs(page []byte, link string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	sel, ok := paragraphSelectors[hostOf(link)]
	if !ok {
		sel = defaultParagraphSelector
	}
	var parts []string
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len([]rune(text)) > minParagraphRunes {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

var (
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeadingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmphasisRe = regexp.MustCompile(`\*\*|__`)
)

// readableText runs readability and flattens the markdown rendering into
// plain paragraphs, keeping the same length filter as the selector path.
func readableText(page []byte, link string) string {
	pageURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err != nil || article.Node == nil {
		return ""
	}
	md, err := htmltomarkdown.ConvertNode(article.Node)
	if err != nil {
		var buf bytes.Buffer
		if article.RenderText(&buf) != nil {
			return ""
		}
		md = buf.Bytes()
	}

	text := mdImageRe.ReplaceAllString(string(md), "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdHeadingRe.ReplaceAllString(text, "")
	text = mdEmphasisRe.ReplaceAllString(text, "")

	var parts []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Join(strings.Fields(block), " ")
		if len([]rune(block)) > minParagraphRunes {
			parts = append(parts, block)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FetchImages lists large article images: each candidate is HEAD-checked
// for an image content type, at least MinImageBytes and not a GIF.
func (c *Crawler) FetchImages(ctx context.Context, link string) []string {
	page, _, err := c.fetcher.Get(ctx, link, maxPageBytes)
	if err != nil {
		c.logger.WithError(err).WithField("link", link).Warn("Crawler: article image scan failed")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	var found []string
	doc.Find(articleImageSelector).Each(func(_ int, img *goquery.Selection) {
		if u := imageAttr(img); u != "" {
			found = append(found, normalizeURL(u, link))
		}
	})

	var out []string
	for _, u := range Unique(found) {
		if c.largeImage(ctx, u) {
			out = append(out, u)
		}
	}
	return out
}

func (c *Crawler) largeImage(ctx context.Context, imageURL string) bool {
	if strings.HasSuffix(strings.ToLower(pathOf(imageURL)), ".gif") {
		return false
	}
	status, header, err := c.fetcher.Head(ctx, imageURL)
	if err != nil || status < 200 || status >= 300 {
		return false
	}
	if !strings.HasPrefix(header.Get("Content-Type"), "image/") {
		return false
	}
	// a missing Content-Length is accepted
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < c.minImageBytes {
			return false
		}
	}
	return true
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
