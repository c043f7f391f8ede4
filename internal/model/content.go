package model

type IssueSeverity string

const (
	IssueSeverityFail    IssueSeverity = "fail"
	IssueSeverityWarning IssueSeverity = "warning"
)

type IssueCategory string

const (
	IssueTechnicalAccuracy IssueCategory = "technical_accuracy"
	IssueReproducibility   IssueCategory = "reproducibility"
	IssueFormatting        IssueCategory = "formatting"
	IssueCompleteness      IssueCategory = "content_completeness"
	IssueQuality           IssueCategory = "content_quality"
	IssueAccessibility     IssueCategory = "accessibility"
)

type ContentIssue struct {
	ID          string        `json:"id"`
	Category    IssueCategory `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Message     string        `json:"message"`
	Location    string        `json:"location"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// ContentReport is the result of checking a chapter. Passed means no issue
// of fail severity was found.
type ContentReport struct {
	Passed   bool           `json:"passed"`
	Failures int            `json:"failures"`
	Warnings int            `json:"warnings"`
	Issues   []ContentIssue `json:"issues"`
}
