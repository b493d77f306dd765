package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSources are crawled when the settings list none.
var DefaultSources = []string{"https://cafef.vn", "https://tuoitre.vn", "https://dantri.com.vn"}

// item is what a listing-page parser pulls out of one matched element.
type item struct {
	title string
	link  string
}

// Preset describes a known news site: its feed and listing-page layout.
type Preset struct {
	Name     string
	RSS      string
	Selector string
	parse    func(s *goquery.Selection) item
}

// Source is a resolved crawl target.
type Source struct {
	Name     string
	Origin   string
	RSS      string
	Selector string
	parse    func(s *goquery.Selection) item
}

var presets = map[string]Preset{
	"cafef.vn": {
		Name:     "CafeF",
		RSS:      "https://cafef.vn/home.rss",
		Selector: ".topNewsList li, .list-news li",
		parse: func(s *goquery.Selection) item {
			a := s.Find("a").First()
			title := strings.TrimSpace(a.Find("h2, h3, .title").Text())
			if title == "" {
				title = strings.TrimSpace(a.Text())
			}
			href, _ := a.Attr("href")
			return item{title: title, link: href}
		},
	},
	"tuoitre.vn": {
		Name:     "Tuổi Trẻ",
		RSS:      "https://tuoitre.vn/rss/tin-moi-nhat.rss",
		Selector: ".box-category-item",
		parse: func(s *goquery.Selection) item {
			a := s.Find("a").First()
			href, _ := a.Attr("href")
			return item{title: strings.TrimSpace(a.Text()), link: href}
		},
	},
	"dantri.com.vn": {
		Name:     "Dân Trí",
		RSS:      "https://dantri.com.vn/rss/home.rss",
		Selector: ".news-item .news-item__content",
		parse: func(s *goquery.Selection) item {
			a := s.Find("h3 a").First()
			href, _ := a.Attr("href")
			return item{title: strings.TrimSpace(a.Text()), link: href}
		},
	},
	"thanhnien.vn": {
		Name:     "Thanh Niên",
		RSS:      "https://thanhnien.vn/rss/home.rss",
		Selector: ".box-list.story .story-item",
		parse: func(s *goquery.Selection) item {
			href, _ := s.Find(".story__thumb a").Attr("href")
			return item{title: strings.TrimSpace(s.Find(".story__title").Text()), link: href}
		},
	},
}

func defaultParse(s *goquery.Selection) item {
	a := s
	if !s.Is("a") {
		a = s.Find("a").First()
	}
	href, _ := a.Attr("href")
	return item{title: strings.TrimSpace(a.Text()), link: href}
}

// ResolveSource maps a configured URL to a preset or the generic listing
// parser. Bare hosts get an https scheme.
func ResolveSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Source{}, &SourceError{URL: raw, Err: err}
	}
	origin := u.Scheme + "://" + u.Host
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if p, ok := presets[host]; ok {
		return Source{Name: p.Name, Origin: origin, RSS: p.RSS, Selector: p.Selector, parse: p.parse}, nil
	}
	return Source{Name: host, Origin: origin, Selector: "a", parse: defaultParse}, nil
}

// SourceError reports an unusable source URL.
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return "invalid source url " + e.URL + ": " + e.Err.Error()
	}
	return "invalid source url " + e.URL
}

func (e *SourceError) Unwrap() error { return e.Err }

var articleLinkRe = regexp.MustCompile(`\d{4}`)

// normalizeURL resolves raw against base. Empty input stays empty.
func normalizeURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
