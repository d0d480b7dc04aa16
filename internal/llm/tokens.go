package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens reports the token count of text under the cl100k_base
// encoding, for per-message usage accounting. Returns 0 when the encoding
// tables cannot be loaded.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			encoding = enc
		}
	})
	if encoding == nil || text == "" {
		return 0
	}
	return len(encoding.Encode(text, nil, nil))
}
