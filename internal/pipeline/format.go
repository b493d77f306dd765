package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Footer closes every news post; the link itself goes in the first comment.
const Footer = "📌 Link bài viết gốc ở phần bình luận nhé!"

const minParts = 3

var (
	inlineSpaceRe    = regexp.MustCompile(`[ \t\f\v\p{Zs}]{2,}`)
	spaceAroundNLRe  = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	extraBlankRe     = regexp.MustCompile(`\n{3,}`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([,.?!:;])`)
	sentenceStartRe  = regexp.MustCompile(`([.!?]\s+)([a-zà-ỹđ])`)
	sentenceSplitRe  = regexp.MustCompile(`([.!?])\s*([A-ZÀ-ỸĐ])`)
	glueSentenceRe   = regexp.MustCompile(`([.!?])([A-ZÀ-ỸĐ])`)
	breakSentenceRe  = regexp.MustCompile(`([.!?])\s`)
	trailingPunctRe  = regexp.MustCompile(`[.!?]$`)
)

// PostProcess tidies whitespace and sentence capitalisation. Blank lines
// between paragraphs are kept.
func PostProcess(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = inlineSpaceRe.ReplaceAllString(text, " ")
	text = spaceAroundNLRe.ReplaceAllString(text, "\n")
	text = extraBlankRe.ReplaceAllString(text, "\n\n")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")

	r, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(r)) + text[size:]

	return sentenceStartRe.ReplaceAllStringFunc(text, func(m string) string {
		last, size := utf8.DecodeLastRuneInString(m)
		return m[:len(m)-size] + string(unicode.ToUpper(last))
	})
}

// Format decomposes text into title, bold summary, optional body and
// optional closing question and lays them out with the footer. It reports
// false when fewer than three parts can be recovered.
func Format(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	var title, summary, body, question string
	if bold := strings.Split(text, "**"); len(bold) >= 3 {
		title = strings.TrimSpace(bold[0])
		summary = "**" + strings.TrimSpace(bold[1]) + "**"
		rest := strings.Split(strings.TrimSpace(strings.Join(bold[2:], "**")), "\n\n")
		if last := rest[len(rest)-1]; strings.HasSuffix(strings.TrimSpace(last), "?") {
			question = strings.TrimSpace(last)
			rest = rest[:len(rest)-1]
		}
		body = strings.Join(rest, " ")
	} else {
		parts := paragraphs(text)
		if len(parts) < minParts {
			parts = paragraphs(sentenceSplitRe.ReplaceAllString(strings.Join(parts, " "), "$1\n\n$2"))
		}
		if len(parts) < minParts {
			return "", false
		}
		title = strings.TrimSpace(parts[0])
		summary = "**" + strings.TrimSpace(strings.ReplaceAll(parts[1], "**", "")) + "**"
		rest := parts[2:]
		for i := len(rest) - 1; i >= 0; i-- {
			if strings.HasSuffix(strings.TrimSpace(rest[i]), "?") {
				question = strings.TrimSpace(rest[i])
				rest = append(rest[:i:i], rest[i+1:]...)
				break
			}
		}
		body = strings.Join(rest, " ")
	}

	if title == "" {
		return "", false
	}
	title = strings.TrimSpace(trailingPunctRe.ReplaceAllString(cases.Upper(language.Vietnamese).String(title), ""))

	if body = strings.TrimSpace(body); body != "" {
		body = glueSentenceRe.ReplaceAllString(body, "$1 $2")
		body = breakSentenceRe.ReplaceAllString(body, "$1\n\n\n")
	}

	out := []string{title, summary}
	if body != "" {
		out = append(out, body)
	}
	if question != "" {
		out = append(out, question)
	}
	out = append(out, Footer)
	return strings.Join(out, "\n\n"), true
}

// FormatHashtags renders tags as "#a #b", stripping any '#' already present.
func FormatHashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.ReplaceAll(tag, "#", ""))
		if tag != "" {
			out = append(out, "#"+tag)
		}
	}
	return strings.Join(out, " ")
}

// TruncateParagraphs keeps the first n blank-line separated paragraphs.
func TruncateParagraphs(text string, n int) string {
	parts := strings.Split(text, "\n\n")
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, "\n\n")
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
