package model

import (
	"encoding/json"
	"strconv"
)

// Payload keys shared by the indexer, the vector store and the retriever.
const (
	MetaContent       = "content"
	MetaChapterID     = "chapter_id"
	MetaChapterTitle  = "chapter_title"
	MetaChapterNumber = "chapter_number"
	MetaChunkIndex    = "chunk_index"
	MetaStartOffset   = "start_offset"
	MetaEndOffset     = "end_offset"
	MetaSection       = "section"
	MetaSource        = "source"
)

type ChunkRecord struct {
	ID          string                 `json:"id"`
	ChapterID   string                 `json:"chapter_id"`
	Content     string                 `json:"content"`
	ChunkIndex  int                    `json:"chunk_index"`
	StartOffset int                    `json:"start_offset"`
	EndOffset   int                    `json:"end_offset"`
	Metadata    map[string]interface{} `json:"metadata"`
	Ctime       int64                  `json:"ctime"`
}

type RetrievedChunk struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Source     string                 `json:"source"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkIndex int                    `json:"chunk_index"`
}

func MetaString(meta map[string]interface{}, key string) (string, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return "", false
}

// MetaInt reads an integer that may have been decoded from JSON as float64.
func MetaInt(meta map[string]interface{}, key string) (int, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case float32:
		return int(val), true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
