package embedding

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer splits text into token pieces. Joining the pieces reproduces
// the input whenever it has at least one non-space character.
type Tokenizer interface {
	Name() string
	Split(text string) []string
}

func NewTokenizer(name, encoding string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "word":
		return WordTokenizer{}, nil
	case "tiktoken":
		return NewTiktokenTokenizer(encoding)
	}
	return nil, fmt.Errorf("unsupported tokenizer: %s", name)
}

// WordTokenizer counts a run of non-space ASCII as one token and every
// non-ASCII rune as its own token. Whitespace sticks to the preceding token.
type WordTokenizer struct{}

func (WordTokenizer) Name() string {
	return "word"
}

func (WordTokenizer) Split(text string) []string {
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	if i == len(text) {
		return nil
	}
	var pieces []string
	start := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r <= unicode.MaxASCII {
			for i < len(text) {
				next, nsize := utf8.DecodeRuneInString(text[i:])
				if unicode.IsSpace(next) || next > unicode.MaxASCII {
					break
				}
				i += nsize
			}
		}
		for i < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				break
			}
			i += nsize
		}
		pieces = append(pieces, text[start:i])
		start = i
	}
	return pieces
}

type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads a BPE encoding such as cl100k_base. The ranks
// file is fetched on first use unless TIKTOKEN_CACHE_DIR already holds it.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: encoding, enc: enc}, nil
}

func (t *TiktokenTokenizer) Name() string {
	return "tiktoken:" + t.encoding
}

// Split decodes each token id on its own. A piece may hold part of a
// multi-byte rune; joined pieces are byte-identical to the input.
func (t *TiktokenTokenizer) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, 0, len(ids))
	for _, id := range ids {
		pieces = append(pieces, t.enc.Decode([]int{id}))
	}
	return pieces
}
