package trends

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brettboylen/trend-whisperer/models"
)

// StopWordSet builds the lookup Tokenize filters against
func StopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// Tokenize lowercases text, splits it on whitespace, strips every character that is
// not a letter or digit from each token and drops tokens shorter than minLen runes
// or found in stopWords. stopWords may be nil.
func Tokenize(text string, minLen int, stopWords map[string]struct{}) []string {
	fields := strings.Fields(strings.ToLower(text))

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := stripNonAlnum(field)
		if utf8.RuneCountInString(token) < minLen {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// normalizeText is the text keyword containment is tested against: lowercased,
// punctuation stripped from each word, words joined by single spaces.
func normalizeText(text string) string {
	fields := strings.Fields(strings.ToLower(text))

	words := make([]string, 0, len(fields))
	for _, field := range fields {
		if word := stripNonAlnum(field); word != "" {
			words = append(words, word)
		}
	}
	return strings.Join(words, " ")
}

func stripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// ExtractKeywords groups posts by candidate keyword. A token is a candidate when at
// least minFreq posts contain it (each post counted once, however often the word
// repeats). A candidate's bucket then holds every post whose normalized text contains
// the token as a substring, so "automation" also collects posts saying "automations".
// Stop words never become candidates. Buckets point into posts.
func ExtractKeywords(posts []models.Post, minLen, minFreq int, stopWords []string) map[string][]*models.Post {
	texts := make([]string, len(posts))
	frequency := make(map[string]int)
	stop := StopWordSet(stopWords)

	for i := range posts {
		texts[i] = normalizeText(posts[i].Text())

		unique := make(map[string]struct{})
		for _, token := range Tokenize(texts[i], minLen, stop) {
			unique[token] = struct{}{}
		}
		for token := range unique {
			frequency[token]++
		}
	}

	buckets := make(map[string][]*models.Post)
	for token, count := range frequency {
		if count < minFreq {
			continue
		}
		for i := range posts {
			if strings.Contains(texts[i], token) {
				buckets[token] = append(buckets[token], &posts[i])
			}
		}
	}

	return buckets
}
