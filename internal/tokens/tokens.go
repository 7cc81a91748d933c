// Package tokens estimates prompt sizes and trims paper text to fit a
// model's context window.
package tokens

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TruncationMarker is appended to text cut by [Counter.Truncate].
const TruncationMarker = "\n\n[... text truncated to fit the model context window ...]"

const (
	// EncodingCL100K is used for models without a published tokenizer.
	EncodingCL100K = "cl100k_base"
	// EncodingO200K is used by current OpenAI models.
	EncodingO200K = "o200k_base"

	charsPerToken = 4
)

// Counter counts and truncates text in tokens.
type Counter interface {
	Count(text string) int
	// Truncate returns text cut to at most max tokens, marker included.
	Truncate(text string, max int) string
}

var (
	encMu    sync.Mutex
	encCache = map[string]Counter{}
)

// New returns a tiktoken counter for encoding. When the encoding cannot be
// loaded (it is downloaded on first use) an approximate counter is returned.
func New(encoding string) Counter {
	encMu.Lock()
	defer encMu.Unlock()

	if c, ok := encCache[encoding]; ok {
		return c
	}
	var c Counter
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("Tokenizer unavailable, estimating token counts", "encoding", encoding, "error", err)
		c = Approx{}
	} else {
		c = tiktokenCounter{enc: enc}
	}
	encCache[encoding] = c
	return c
}

// EncodingFor returns the encoding that best approximates provider's tokenizer.
func EncodingFor(provider string) string {
	if provider == "openai" {
		return EncodingO200K
	}
	return EncodingCL100K
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t tiktokenCounter) Truncate(text string, max int) string {
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= max {
		return text
	}
	keep := max - len(t.enc.Encode(TruncationMarker, nil, nil))
	if keep <= 0 {
		return ""
	}
	return strings.TrimRightFunc(t.enc.Decode(ids[:keep]), isBrokenRune) + TruncationMarker
}

// Approx estimates one token per four characters.
type Approx struct{}

// Count implements [Counter].
func (Approx) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Truncate implements [Counter].
func (a Approx) Truncate(text string, max int) string {
	if a.Count(text) <= max {
		return text
	}
	keep := (max - a.Count(TruncationMarker)) * charsPerToken
	if keep <= 0 {
		return ""
	}
	runes := []rune(text)
	if keep > len(runes) {
		keep = len(runes)
	}
	return string(runes[:keep]) + TruncationMarker
}

// Cutting a token sequence can split a multi-byte character.
func isBrokenRune(r rune) bool {
	return r == utf8.RuneError
}
