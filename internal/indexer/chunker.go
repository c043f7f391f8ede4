package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultChunkSize = 512

type TextChunk struct {
	Content string
	Start   int
	End     int
}

type span struct {
	start int
	end   int
}

// ChunkText packs whole sentences into chunks of at most chunkSize runes. Each
// new chunk is seeded with the trailing overlap runes of the previous one when
// the seed and the next sentence fit together. Start and End are byte offsets
// into text.
func ChunkText(text string, chunkSize, overlap int) []TextChunk {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []TextChunk
	emit := func(start, end int) {
		if c, ok := trimmedChunk(text, start, end); ok {
			chunks = append(chunks, c)
		}
	}

	curStart, curEnd := sentences[0].start, sentences[0].end
	for _, s := range sentences[1:] {
		if utf8.RuneCountInString(text[curStart:s.end]) <= chunkSize {
			curEnd = s.end
			continue
		}
		emit(curStart, curEnd)
		next := s.start
		if overlap > 0 {
			seed := seedStart(text, curStart, curEnd, overlap)
			if utf8.RuneCountInString(text[seed:s.end]) <= chunkSize {
				next = seed
			}
		}
		curStart, curEnd = next, s.end
	}
	emit(curStart, curEnd)
	return chunks
}

// splitSentences returns whitespace-trimmed sentence spans. A sentence ends at
// a run of '.', '!' or '?' followed by whitespace or the end of text.
func splitSentences(text string) []span {
	var out []span
	start := -1
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if !unicode.IsSpace(r) {
				start = i
			}
			i += size
			continue
		}
		if !isTerminator(r) {
			i += size
			continue
		}
		j := i
		for j < len(text) && isTerminator(rune(text[j])) {
			j++
		}
		if j == len(text) {
			out = append(out, span{start: start, end: j})
			start = -1
			i = j
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[j:])
		if unicode.IsSpace(next) {
			out = append(out, span{start: start, end: j})
			start = -1
		}
		i = j
	}
	if start >= 0 {
		end := len(strings.TrimRightFunc(text, unicode.IsSpace))
		if end > start {
			out = append(out, span{start: start, end: end})
		}
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// seedStart walks back overlap runes from end without crossing start.
func seedStart(text string, start, end, overlap int) int {
	pos := end
	for n := 0; n < overlap && pos > start; n++ {
		_, size := utf8.DecodeLastRuneInString(text[start:pos])
		pos -= size
	}
	return pos
}

func trimmedChunk(text string, start, end int) (TextChunk, bool) {
	raw := text[start:end]
	trimmedLeft := strings.TrimLeftFunc(raw, unicode.IsSpace)
	start += len(raw) - len(trimmedLeft)
	content := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
	if content == "" {
		return TextChunk{}, false
	}
	return TextChunk{Content: content, Start: start, End: start + len(content)}, true
}
