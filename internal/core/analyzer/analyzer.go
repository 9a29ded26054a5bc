package analyzer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxKeywords bounds the ranked keyword list.
const maxKeywords = 15

// minTokenLen drops very short tokens before ranking.
const minTokenLen = 3

// PageText is one page's text as it entered analysis: native extraction or
// OCR-recovered.
type PageText struct {
	Index   int
	Text    string
	FromOCR bool
}

// Input aggregates everything the pipeline learned about a document's
// content.
type Input struct {
	Pages          []PageText
	TotalImages    int
	ImagesWithText int
	HasImages      bool
}

// Summary is the structured analysis result. All fields derive
// deterministically from the input.
type Summary struct {
	Keywords       []string
	TotalChars     int
	HasText        bool
	HasImages      bool
	ImagesWithText int
}

// Analyze aggregates page text into counts, flags and a ranked keyword list.
// It never fails: empty input yields zero counts and an empty keyword slice.
func Analyze(in Input) Summary {
	s := Summary{
		Keywords:       []string{},
		HasImages:      in.HasImages,
		ImagesWithText: in.ImagesWithText,
	}

	var all strings.Builder
	for _, p := range in.Pages {
		s.TotalChars += utf8.RuneCountInString(p.Text)
		if strings.TrimSpace(p.Text) != "" {
			s.HasText = true
		}
		all.WriteString(p.Text)
		all.WriteString("\n")
	}

	s.Keywords = Keywords(all.String())
	return s
}

// Keywords ranks word frequencies over the text. The ranking is fully
// deterministic: frequency descending, ties broken by first occurrence in
// document order.
func Keywords(text string) []string {
	tokens := Tokens(text)

	type entry struct {
		word  string
		count int
		first int
	}
	seen := map[string]*entry{}
	order := make([]*entry, 0, 64)

	for i, tok := range tokens {
		if utf8.RuneCountInString(tok) < minTokenLen || isStopword(tok) {
			continue
		}
		if e, ok := seen[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1, first: i}
		seen[tok] = e
		order = append(order, e)
	}

	sort.SliceStable(order, func(a, b int) bool {
		if order[a].count != order[b].count {
			return order[a].count > order[b].count
		}
		return order[a].first < order[b].first
	})

	n := len(order)
	if n > maxKeywords {
		n = maxKeywords
	}
	out := make([]string, 0, n)
	for _, e := range order[:n] {
		out = append(out, e.word)
	}
	return out
}

// Tokens lowercases and splits on anything that is not a letter or digit,
// keeping accented characters intact.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
