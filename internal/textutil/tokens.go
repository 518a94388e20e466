// Package textutil holds the tokenizer shared by the TF-IDF embedder,
// the lexical fallback ranker and the summarizer.
package textutil

import (
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "does", "do", "did", "has", "have", "had", "tell", "me", "how", "s",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Words returns the lower-cased word tokens of text, stopwords included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Tokens returns the lower-cased word tokens of text with stopwords removed.
func Tokens(text string) []string {
	raw := Words(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TokenSet returns the distinct non-stopword tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokens(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Sentences splits text on terminal punctuation. Text without any
// terminator is returned as a single trimmed sentence.
func Sentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if t := strings.TrimSpace(text[loc[0]:loc[1]]); t != "" {
			out = append(out, t)
		}
		end = loc[1]
	}
	// trailing text after the last terminator
	if t := strings.TrimSpace(text[end:]); t != "" {
		out = append(out, t)
	}
	return out
}
