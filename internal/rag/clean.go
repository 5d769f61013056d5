package rag

import (
	"regexp"
	"strings"
)

// DefaultControlTokens are the special markers seq2seq and chat models leave in raw output.
var DefaultControlTokens = []string{
	"<pad>", "</s>", "<s>", "<unk>",
	"<|endoftext|>", "<|im_start|>", "<|im_end|>", "<|eot_id|>",
	"[CLS]", "[SEP]", "[PAD]",
}

var t5Sentinel = regexp.MustCompile(`<extra_id_\d+>`)

// Cleaner strips control tokens from generated text.
type Cleaner struct {
	replacer *strings.Replacer
}

// NewCleaner strips DefaultControlTokens plus extra.
func NewCleaner(extra ...string) *Cleaner {
	seen := make(map[string]bool)
	var pairs []string
	for _, tok := range append(append([]string(nil), DefaultControlTokens...), extra...) {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		pairs = append(pairs, tok, "")
	}
	return &Cleaner{replacer: strings.NewReplacer(pairs...)}
}

// Clean removes every control token, then trims surrounding whitespace.
func (c *Cleaner) Clean(raw string) string {
	out := t5Sentinel.ReplaceAllString(raw, "")
	out = c.replacer.Replace(out)
	return strings.TrimSpace(out)
}
