// Package tokencount provides a best-effort approximate token count for
// message content, used to surface context-window growth in the derived
// artifact.
package tokencount

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, approx_tokens will be zero", "error", err)
			return
		}
		enc = e
	})
	return enc
}

// Count returns an approximate token count for text using the cl100k_base
// encoding. Returns 0 if the encoder could not be loaded — never fatal.
func Count(text string) int {
	if text == "" {
		return 0
	}
	e := encoding()
	if e == nil {
		return 0
	}
	return len(e.Encode(text, nil, nil))
}
