package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids. Hashed word ids start above reservedIDs.
const (
	tokenPAD    = 0
	tokenCLS    = 101
	tokenSEP    = 102
	reservedIDs = 1000
	vocabSize   = 30522
)

// Tokenizer produces BERT-style model inputs padded to a fixed length.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer lowercases text, splits it into words and punctuation, and maps each
// piece to a stable id by hashing. It needs no vocabulary file.
type HashTokenizer struct{}

// Tokenize returns [CLS] pieces... [SEP] followed by padding. Pieces beyond
// maxTokens-2 are dropped.
func (HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	n := 0
	put := func(id int64) {
		inputIDs[n] = id
		attentionMask[n] = 1
		n++
	}
	put(tokenCLS)
	for _, piece := range pieces(text) {
		if n == maxTokens-1 {
			break
		}
		put(int64(reservedIDs + HashString(piece)%(vocabSize-reservedIDs)))
	}
	put(tokenSEP)
	return inputIDs, attentionMask, tokenTypeIDs
}

// pieces splits lowercased text into runs of letters or digits, and single punctuation marks.
func pieces(text string) []string {
	var out []string
	start := -1
	text = strings.ToLower(text)
	for i, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
			continue
		case start >= 0:
			out = append(out, text[start:i])
			start = -1
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			out = append(out, string(r))
		}
	}
	if start >= 0 {
		out = append(out, text[start:])
	}
	return out
}

// HashString returns a deterministic non-negative 32-bit FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
