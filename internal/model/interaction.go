package model

type Interaction struct {
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	StudentID      string      `json:"student_id,omitempty"`
	Query          string      `json:"query"`
	Response       string      `json:"response"`
	ContextMode    ContextMode `json:"context_mode"`
	SelectedText   string      `json:"selected_text,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	AccuracyScore  float64     `json:"accuracy_score"`
	Sources        []string    `json:"sources"`
}

type HistoryFilter struct {
	StudentID string
	SessionID string
}

type ConversationTurn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

type Feedback struct {
	ID             string `json:"id"`
	InteractionID  string `json:"interaction_id"`
	StudentID      string `json:"student_id,omitempty"`
	Rating         *int   `json:"rating,omitempty"`
	Helpful        *bool  `json:"helpful,omitempty"`
	AccuracyRating *int   `json:"accuracy_rating,omitempty"`
	FeedbackText   string `json:"feedback_text,omitempty"`
	Ctime          int64  `json:"ctime"`
}
