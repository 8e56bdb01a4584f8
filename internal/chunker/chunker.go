// Package chunker splits document text into bounded segments for embedding.
//
// Text is split into paragraphs on blank lines. Paragraphs shorter than
// MinChunkLen are dropped, paragraphs up to MaxChunkLen are kept whole, and
// longer paragraphs are packed greedily from their sentences. A sentence is
// never split, so a single sentence longer than MaxChunkLen becomes an
// oversized chunk. Sentence detection is a plain ". " split and does not
// recognize abbreviations or decimals.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinChunkLen is the minimum trimmed length of an emitted chunk.
	MinChunkLen = 50
	// MaxChunkLen is the target upper bound of an emitted chunk.
	MaxChunkLen = 1000
)

var (
	paragraphSep = regexp.MustCompile(`\n\n+`)
	sentenceSep  = regexp.MustCompile(`\.\s+`)
)

// Chunk splits text into ordered chunks. Lengths are counted in characters.
// The result is empty, never nil, when nothing meets the minimum length.
func Chunk(text string) []string {
	chunks := []string{}

	for _, paragraph := range paragraphSep.Split(text, -1) {
		trimmed := strings.TrimSpace(paragraph)
		n := utf8.RuneCountInString(trimmed)
		if n < MinChunkLen {
			continue
		}
		if n <= MaxChunkLen {
			chunks = append(chunks, trimmed)
			continue
		}
		chunks = append(chunks, packSentences(sentenceSep.Split(trimmed, -1))...)
	}

	return chunks
}

// packSentences accumulates sentences, rejoined with ". ", until the next one
// would overflow MaxChunkLen.
func packSentences(sentences []string) []string {
	var (
		out     []string
		current string
	)
	for _, sentence := range sentences {
		candidate := sentence
		if current != "" {
			candidate = current + ". " + sentence
		}
		if utf8.RuneCountInString(candidate) > MaxChunkLen && utf8.RuneCountInString(current) >= MinChunkLen {
			out = append(out, current)
			current = sentence
			continue
		}
		current = candidate
	}
	if utf8.RuneCountInString(current) >= MinChunkLen {
		out = append(out, current)
	}
	return out
}
