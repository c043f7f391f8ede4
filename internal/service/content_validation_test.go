package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

const wellFormedChapter = "# Robot Sensors\n\n" +
	"Lidar measures distance with a laser pulse. The perception system fuses readings.\n\n" +
	"![Lidar scan diagram](lidar.png)\n\n" +
	"Install the driver first: `go get example.com/lidar`.\n\n" +
	"```go\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"scan\") }\n```\n\n" +
	"## Learning Outcomes\n\n" +
	"- Explain how lidar measures distance\n" +
	"- Compare camera and lidar sensors\n\n" +
	"## Exercises\n\n" +
	"1. (easy) Compute the range for a 10 ns echo.\n\n" +
	"## Review Questions\n\n" +
	"1. Why do robots fuse sensors?\n"

const sloppyChapter = "# Basics\n\n" +
	"Obviously this works. It is just a toy.\n\n" +
	"```\nimport os\nprint(os.getcwd()\n```\n\n" +
	"![](robot.png)\n\n" +
	"## Exercises\n\n" +
	"1. Try the robot.\n"

func issueIDs(issues []model.ContentIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.ID)
	}
	return out
}

func TestValidateChapter_WellFormedPasses(t *testing.T) {
	report := NewContentValidator().ValidateChapter("Robot Sensors", wellFormedChapter, nil)
	require.True(t, report.Passed)
	require.Empty(t, report.Issues)
	require.Zero(t, report.Warnings)
}

func TestValidateChapter_ReportsEveryCheck(t *testing.T) {
	report := NewContentValidator().ValidateChapter("Basics", sloppyChapter, nil)
	require.False(t, report.Passed)
	require.Equal(t, 4, report.Failures)
	require.Equal(t, 7, report.Warnings)
	require.Equal(t, []string{
		"ta_1", "ta_2", "ta_3",
		"rep_1", "rep_2", "code_1", "rep_3",
		"fmt_1", "fmt_2",
		"img_1",
		"lo_1",
	}, issueIDs(report.Issues))

	require.Equal(t, "Position 10-19 in content", report.Issues[0].Location)
	require.Equal(t, "Potentially vague language detected: 'Obviously'", report.Issues[0].Message)
	require.Equal(t, "Potentially vague language detected: 'just'", report.Issues[1].Message)
	require.Equal(t, "Content may lack sufficient technical terminology", report.Issues[2].Message)
	require.Equal(t, model.IssueSeverityFail, report.Issues[4].Severity)
	require.Equal(t, "Code block 1", report.Issues[5].Location)
	require.Equal(t, "Required section missing: ## Learning Outcomes", report.Issues[7].Message)
	require.Equal(t, "Required section missing: ## Review Questions", report.Issues[8].Message)
	require.Equal(t, model.IssueAccessibility, report.Issues[9].Category)
	require.Equal(t, "No learning outcomes defined", report.Issues[10].Message)
}

func TestValidateChapter_IntroductionNeedsNoTerminology(t *testing.T) {
	report := NewContentValidator().ValidateChapter("Introduction", "Welcome, readers.", []string{"Describe the course layout"})
	for _, issue := range report.Issues {
		require.NotEqual(t, "Content may lack sufficient technical terminology", issue.Message)
	}
}

func TestValidateChapter_WordBoundaries(t *testing.T) {
	report := NewContentValidator().ValidateChapter("Control", "Adjust the controller model gain.", nil)
	for _, issue := range report.Issues {
		require.NotEqual(t, model.IssueTechnicalAccuracy, issue.Category, issue.Message)
	}
}

func TestValidateLearningOutcomes(t *testing.T) {
	v := NewContentValidator()
	issues := v.ValidateLearningOutcomes([]string{"Know robots", "Explain how a PID controller reduces error"})
	require.Len(t, issues, 2)
	require.Equal(t, "Learning outcome 1", issues[0].Location)
	require.Equal(t, "Learning outcome 1 may lack an action verb: 'Know robots'", issues[0].Message)
	require.Equal(t, "Learning outcome 1 contains a vague term: 'Know robots'", issues[1].Message)

	issues = v.ValidateLearningOutcomes([]string{"short"})
	require.Len(t, issues, 2)
	require.Equal(t, "Learning outcome 1 is too brief: 'short'", issues[0].Message)

	issues = v.ValidateLearningOutcomes(nil)
	require.Len(t, issues, 1)
	require.Equal(t, model.IssueSeverityFail, issues[0].Severity)
}

func TestValidateCodeExample(t *testing.T) {
	v := NewContentValidator()
	cases := []struct {
		language string
		code     string
		severity model.IssueSeverity
	}{
		{"go", "x := 1\nfmt.Println(x)\n", ""},
		{"go", "package main\n\nfunc main() {}\n", ""},
		{"go", "func main() {\n", model.IssueSeverityFail},
		{"json", `{"a": 1}`, ""},
		{"json", `{"a": }`, model.IssueSeverityFail},
		{"yaml", "a: [1, 2\n", model.IssueSeverityFail},
		{"yml", "a: 1\nb: [2, 3]\n", ""},
		{"python", "print(len([1, 2]))\n", ""},
		{"python", "print('(')\n", ""},
		{"python", "print((1)\n", model.IssueSeverityWarning},
		{"rust", "fn main() { }]\n", model.IssueSeverityWarning},
	}
	for _, tc := range cases {
		issues := v.ValidateCodeExample(tc.code, tc.language)
		if tc.severity == "" {
			require.Empty(t, issues, tc.code)
			continue
		}
		require.Len(t, issues, 1, tc.code)
		require.Equal(t, tc.severity, issues[0].Severity, tc.code)
	}
}

func TestChapterService_AttachesValidation(t *testing.T) {
	chapters := newMemChapters()
	svc := NewChapterService(chapters, &memProgress{}, nil)
	ctx := context.Background()

	ch, err := svc.Create(ctx, ChapterInput{Title: "Robot Sensors", Slug: "sensors", ChapterNumber: 1, Content: wellFormedChapter})
	require.NoError(t, err)
	require.NotNil(t, ch.Validation)
	require.True(t, ch.Validation.Passed)

	updated, err := svc.Update(ctx, ch.ID, ChapterInput{Title: "Robot Sensors", Slug: "sensors", ChapterNumber: 1, Content: sloppyChapter})
	require.NoError(t, err)
	require.False(t, updated.Validation.Passed)

	report, err := svc.Validate(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, updated.Validation.Failures, report.Failures)

	_, err = svc.Validate(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	report, err = svc.ValidateDraft(ChapterInput{Title: "Robot Sensors", Content: wellFormedChapter})
	require.NoError(t, err)
	require.True(t, report.Passed)
	_, err = svc.ValidateDraft(ChapterInput{Title: "Empty"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
