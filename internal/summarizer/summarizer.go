// Package summarizer builds a post from article text without any model
// call. Output is deterministic for a given title and content.
package summarizer

import (
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	minWords    = 50
	targetWords = 100
	maxWords    = 150
	minContent  = 50

	shortContentNote = "(Nội dung quá ngắn để tóm tắt)"
)

var (
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]+`)
	bracketTagRe = regexp.MustCompile(`\[[^\]]+\]\s*`)
	bulletRe     = regexp.MustCompile(`([.!?])\s+([A-ZÀ-ỸĐ])`)
	trimPunct    = "()'\",.:-;!?“”"
)

type scored struct {
	text  string
	idx   int
	score float64
}

// Summarize returns title / **summary** / body / question separated by blank
// lines. Content shorter than 50 characters yields a minimal post that
// still has a title and a bold summary.
func Summarize(title, content string) string {
	title = strings.TrimSpace(title)
	if len([]rune(strings.TrimSpace(content))) < minContent {
		return strings.Join([]string{
			"[CẬP NHẬT] " + title,
			"**" + title + "**",
			shortContentNote,
		}, "\n\n")
	}

	sentences := splitSentences(content)
	picked := pickSentences(title, content, sentences)

	cleanTitle := strings.TrimSpace(bracketTagRe.ReplaceAllString(title, ""))
	style := titleStyles[titleEmotion(cleanTitle)]
	upper := cases.Upper(language.Vietnamese)
	headline := upper.String(choose(style.tags, title) + " " + cleanTitle)
	if wordCount(headline) > 20 {
		headline = upper.String(choose(style.emojis, title) + " " + cleanTitle)
	}

	summary := "**" + title + "**"
	var body string
	if len(picked) > 0 {
		summary = "**" + picked[0].text + "**"
		rest := make([]string, 0, len(picked)-1)
		for _, s := range picked[1:] {
			rest = append(rest, s.text)
		}
		body = strings.Join(rest, " ")
	}
	if body != "" {
		body = bulletRe.ReplaceAllString(body, "$1\n- $2")
		if words := strings.Fields(body); len(words) > maxWords {
			body = strings.Join(words[:maxWords], " ") + "..."
		}
	}

	question := choose(questions[questionTopic(content)], title)

	parts := []string{headline, summary}
	if body = strings.TrimSpace(body); body != "" {
		parts = append(parts, body)
	}
	parts = append(parts, question)
	return strings.Join(parts, "\n\n")
}

func splitSentences(content string) []string {
	matches := sentenceRe.FindAllString(content, -1)
	if len(matches) == 0 {
		return []string{normalize(content) + "."}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := normalize(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func pickSentences(title, content string, sentences []string) []scored {
	freqs := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		t := strings.Trim(w, trimPunct)
		if len([]rune(t)) > 2 && !isStopWord(t) {
			freqs[t]++
		}
	}
	var titleWords []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if !isStopWord(w) {
			titleWords = append(titleWords, w)
		}
	}

	var ranked []scored
	for idx, s := range sentences {
		words := strings.Fields(s)
		if len(words) <= 4 || len(words) >= 50 {
			continue
		}
		lower := strings.Fields(strings.ToLower(s))
		score := 0.0
		for _, tw := range titleWords {
			for _, w := range lower {
				if w == tw {
					score += 10
					break
				}
			}
		}
		for _, w := range lower {
			score += float64(freqs[strings.Trim(w, trimPunct)])
		}
		for i, w := range words {
			first := []rune(w)[0]
			if i > 0 && unicode.IsUpper(first) {
				score += 5
			}
			if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
				score += 3
			}
		}
		if idx < 3 {
			score *= 1.5
		}
		if score > 0 {
			ranked = append(ranked, scored{text: s, idx: idx, score: score / math.Sqrt(float64(len(words)))})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	taken := make(map[int]bool)
	var picked []scored
	count := 0
	for _, s := range ranked {
		if n := wordCount(s.text); count+n <= targetWords {
			picked = append(picked, s)
			taken[s.idx] = true
			count += n
		}
	}
	if len(picked) < 3 {
		for _, s := range ranked {
			if n := wordCount(s.text); !taken[s.idx] && count+n <= maxWords {
				picked = append(picked, s)
				taken[s.idx] = true
				count += n
				if len(picked) >= 3 {
					break
				}
			}
		}
	}
	if count < minWords {
		for idx, s := range sentences {
			if n := wordCount(s); !taken[idx] && count+n <= maxWords {
				picked = append(picked, scored{text: s, idx: idx})
				taken[idx] = true
				count += n
			}
		}
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].idx < picked[j].idx })
	return picked
}

func titleEmotion(title string) string {
	lower := strings.ToLower(title)
	for _, rule := range titleEmotions {
		if containsAnyWord(lower, rule.keywords) {
			return rule.key
		}
	}
	return "mặc định"
}

func questionTopic(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range questionTopics {
		if containsAnyWord(lower, rule.keywords) {
			return rule.key
		}
	}
	return "mặc định"
}

// containsAnyWord matches whole words or phrases, treating any
// non-letter, non-digit rune as a boundary.
func containsAnyWord(text string, phrases []string) bool {
	for _, p := range phrases {
		from := 0
		for {
			i := strings.Index(text[from:], p)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(p)
			if isBoundary(text, start, true) && isBoundary(text, end, false) {
				return true
			}
			from = start + 1
		}
	}
	return false
}

func isBoundary(text string, pos int, before bool) bool {
	var r rune
	if before {
		if pos == 0 {
			return true
		}
		r, _ = utf8.DecodeLastRuneInString(text[:pos])
	} else {
		if pos >= len(text) {
			return true
		}
		r, _ = utf8.DecodeRuneInString(text[pos:])
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
}

// choose picks an option deterministically from the title.
func choose(options []string, seed string) string {
	if len(options) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return options[int(h.Sum32()%uint32(len(options)))]
}

func wordCount(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
