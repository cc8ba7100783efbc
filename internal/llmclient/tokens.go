package llmclient

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size with the tiktoken encoding of a model
// family. The encoding is loaded on first use.
type TokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// encodingFor maps a model name onto its encoding, defaulting to cl100k_base.
func encodingFor(model string) string {
	for _, prefix := range []string{"gpt-4o", "gpt-4.1", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return "o200k_base"
		}
	}
	return "cl100k_base"
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{encoding: encodingFor(model)}
}

func (t *TokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count returns the number of tokens text encodes to.
func (t *TokenCounter) Count(text string) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("token counter is nil")
	}
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}
