// Package tokens counts words and model tokens for segment bookkeeping.
package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter returns the number of model tokens in text.
type Counter func(text string) int

// Words counts whitespace separated words.
func Words(text string) int {
	return len(strings.Fields(text))
}

// Chars counts runes. Document level word_count is reported in characters.
func Chars(text string) int {
	return utf8.RuneCountInString(text)
}

// Estimate approximates tokens as one per four bytes, rounded up. Used when
// no BPE ranks are available.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

var (
	encMu sync.Mutex
	encs  = map[string]*tiktoken.Tiktoken{}
)

// Tiktoken returns a Counter using the named BPE encoding (cl100k_base when
// empty). When the ranks cannot be loaded the counter degrades to Estimate.
func Tiktoken(encoding string) Counter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	encMu.Lock()
	enc, ok := encs[encoding]
	if !ok {
		var err error
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			enc = nil
		}
		encs[encoding] = enc
	}
	encMu.Unlock()
	if enc == nil {
		return Estimate
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}
