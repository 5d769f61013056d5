package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxWordRunes = 100

// WordPieceTokenizer implements the uncased BERT tokenizer used by sentence-transformers
// MiniLM models: lowercase, strip accents, split punctuation, greedy longest-match pieces.
type WordPieceTokenizer struct {
	vocab map[string]int64
	unk   int64
}

// NewWordPieceTokenizer builds a tokenizer from a token -> id map.
func NewWordPieceTokenizer(vocab map[string]int64) *WordPieceTokenizer {
	unk := unkID
	if id, ok := vocab["[UNK]"]; ok {
		unk = id
	}
	return &WordPieceTokenizer{vocab: vocab, unk: unk}
}

// LoadVocab reads a vocab.txt file where the line number is the token id.
func LoadVocab(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		tok := strings.TrimRight(scanner.Text(), "\r")
		if tok != "" {
			vocab[tok] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return vocab, nil
}

// Tokenize encodes text as [CLS] pieces... [SEP] padded to maxTokens.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	ids := make([]int64, 0)
	for _, word := range BasicTokens(text) {
		ids = append(ids, t.pieces(word)...)
	}
	return encodeIDs(ids, maxTokens)
}

func (t *WordPieceTokenizer) pieces(word string) []int64 {
	rs := []rune(word)
	if len(rs) > maxWordRunes {
		return []int64{t.unk}
	}
	var out []int64
	for start := 0; start < len(rs); {
		end := len(rs)
		found := int64(-1)
		for end > start {
			sub := string(rs[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int64{t.unk}
		}
		out = append(out, found)
		start = end
	}
	return out
}

// newAccentStripper returns a fresh chain per call: transform chains keep internal
// buffers and must not be shared between goroutines.
func newAccentStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// BasicTokens lowercases, strips accents and splits text on whitespace and punctuation.
// Punctuation characters become their own tokens. Safe for concurrent use.
func BasicTokens(text string) []string {
	cleaned, _, err := transform.String(newAccentStripper(), strings.ToLower(text))
	if err != nil {
		cleaned = strings.ToLower(text)
	}
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range cleaned {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
			continue
		case unicode.IsSpace(r):
			flush()
		case isPunct(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// isPunct matches BERT's definition: ASCII symbol ranges plus Unicode P* categories.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
