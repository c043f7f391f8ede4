package model

type ChapterStatus string

const (
	ChapterStatusDraft     ChapterStatus = "draft"
	ChapterStatusReview    ChapterStatus = "review"
	ChapterStatusPublished ChapterStatus = "published"
)

func (s ChapterStatus) Valid() bool {
	switch s {
	case ChapterStatusDraft, ChapterStatusReview, ChapterStatusPublished:
		return true
	}
	return false
}

type Chapter struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Slug             string        `json:"slug"`
	ChapterNumber    int           `json:"chapter_number"`
	Content          string        `json:"content"`
	Summary          string        `json:"summary"`
	LearningOutcomes []string      `json:"learning_outcomes"`
	Status           ChapterStatus `json:"status"`
	Ctime            int64         `json:"ctime"`
	Mtime            int64         `json:"mtime"`
	// Validation is filled on create and update and is not stored.
	Validation *ContentReport `json:"validation,omitempty"`
}

type ChapterProgress struct {
	StudentID            string  `json:"student_id"`
	ChapterID            string  `json:"chapter_id"`
	CompletionPercentage float64 `json:"completion_percentage"`
	Mtime                int64   `json:"mtime"`
}
