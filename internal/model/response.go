package model

type Source struct {
	ContentSnippet string                 `json:"content_snippet,omitempty"`
	Content        string                 `json:"content,omitempty"`
	Source         string                 `json:"source"`
	RelevanceScore float64                `json:"relevance_score"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Citation struct {
	Title          string `json:"title"`
	ChapterNumber  string `json:"chapter_number"`
	Section        string `json:"section"`
	ContentSnippet string `json:"content_snippet"`
	SourceDocument string `json:"source_document"`
	RelevanceScore string `json:"relevance_score"`
}

type ValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	ConfidenceScore float64  `json:"confidence_score"`
	Citations       []Source `json:"citations"`
	Feedback        string   `json:"feedback"`
}

type ChatResponse struct {
	Response       string   `json:"response"`
	Sources        []Source `json:"sources"`
	Confidence     float64  `json:"confidence"`
	SessionID      string   `json:"session_id"`
	ResponseTimeMs int64    `json:"response_time_ms"`
}
