package service

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/booktutor/internal/model"
)

var (
	vagueLanguageRe = regexp.MustCompile(`(?i)\b(obviously|clearly|easily|simply|just|it can be shown that|it follows that)\b`)
	difficultyRe    = regexp.MustCompile(`(?i)\b(easy|medium|hard|beginner|intermediate|advanced)\b`)

	requiredSections = []string{"Learning Outcomes", "Exercises", "Review Questions"}

	technicalTerms = []string{
		"algorithm", "function", "method", "theorem", "lemma", "corollary", "proof",
		"equation", "formula", "model", "system", "architecture", "protocol", "framework", "approach",
	}
	installHints = []string{
		"pip install", "requirements.txt", "go get", "go install", "go.mod",
		"npm install", "apt install", "apt-get install", "conda install", "cargo add",
	}
	actionVerbs = []string{
		"define", "describe", "explain", "analyze", "evaluate", "compare", "contrast",
		"apply", "implement", "design", "create", "solve", "calculate", "demonstrate",
		"identify", "recognize", "classify", "summarize", "interpret", "assess",
	}
	vagueOutcomeTerms = []string{
		"understand", "know", "appreciate", "feel", "believe", "think",
		"awareness", "familiarity", "general idea",
	}
)

const (
	minOutcomeLength = 10
	minAltTextLength = 2
)

// ContentValidator runs static checks over chapter markdown: vague wording,
// required sections, learning outcomes, code block syntax and image alt text.
// Code is parsed, never executed.
type ContentValidator struct{}

func NewContentValidator() *ContentValidator {
	return &ContentValidator{}
}

type codeBlock struct {
	language string
	code     string
}

type chapterDoc struct {
	source   []byte
	headings map[string]bool
	sections map[string][][]ast.Node
	code     []codeBlock
	images   []string
	prose    []*ast.Text
}

type issueList struct {
	issues   []model.ContentIssue
	counters map[string]int
}

func (l *issueList) add(prefix string, category model.IssueCategory, severity model.IssueSeverity, location, message string, suggestions ...string) {
	if l.counters == nil {
		l.counters = map[string]int{}
	}
	l.counters[prefix]++
	l.issues = append(l.issues, model.ContentIssue{
		ID:          fmt.Sprintf("%s_%d", prefix, l.counters[prefix]),
		Category:    category,
		Severity:    severity,
		Message:     message,
		Location:    location,
		Suggestions: suggestions,
	})
}

// ValidateChapter checks a chapter. When outcomes is empty the list items
// under the "Learning Outcomes" section are used instead.
func (v *ContentValidator) ValidateChapter(title, content string, outcomes []string) *model.ContentReport {
	doc := parseChapterDoc(content)
	list := &issueList{}
	v.checkLanguage(list, doc, title)
	v.checkCode(list, doc, strings.ToLower(content))
	v.checkSections(list, doc)
	v.checkImages(list, doc)
	if len(outcomes) == 0 {
		outcomes = doc.listItems("learning outcomes")
	}
	list.issues = append(list.issues, v.ValidateLearningOutcomes(outcomes)...)
	return newContentReport(list.issues)
}

func (v *ContentValidator) checkLanguage(list *issueList, doc *chapterDoc, title string) {
	for _, t := range doc.prose {
		seg := t.Segment
		value := seg.Value(doc.source)
		for _, m := range vagueLanguageRe.FindAllIndex(value, -1) {
			list.add("ta", model.IssueTechnicalAccuracy, model.IssueSeverityWarning,
				fmt.Sprintf("Position %d-%d in content", seg.Start+m[0], seg.Start+m[1]),
				fmt.Sprintf("Potentially vague language detected: '%s'", value[m[0]:m[1]]),
				"Replace with specific technical terms", "Provide evidence or derivation")
		}
	}
	lower := strings.ToLower(string(doc.source))
	if !containsAny(lower, technicalTerms) && !strings.EqualFold(strings.TrimSpace(title), "introduction") {
		list.add("ta", model.IssueTechnicalAccuracy, model.IssueSeverityWarning, "Entire chapter",
			"Content may lack sufficient technical terminology",
			"Include more technical terms", "Add specific algorithms, methods, or systems")
	}
}

func (v *ContentValidator) checkCode(list *issueList, doc *chapterDoc, lowerContent string) {
	hasInstall := containsAny(lowerContent, installHints)
	for i, block := range doc.code {
		location := fmt.Sprintf("Code block %d", i+1)
		if block.language == "" {
			list.add("rep", model.IssueReproducibility, model.IssueSeverityWarning, location,
				fmt.Sprintf("Code block %d missing language specification", i+1),
				"Specify the programming language", "Use proper syntax highlighting")
		}
		if strings.Contains(strings.ToLower(block.code), "import") && !hasInstall {
			list.add("rep", model.IssueReproducibility, model.IssueSeverityFail, location,
				fmt.Sprintf("Code block %d has imports but no dependency installation instructions", i+1),
				"Add dependency installation instructions", "Reference the dependency manifest")
		}
		for _, issue := range v.ValidateCodeExample(block.code, block.language) {
			issue.Location = location
			list.add("code", issue.Category, issue.Severity, issue.Location, issue.Message, issue.Suggestions...)
		}
	}
	for i, body := range doc.sections["exercises"] {
		if !difficultyRe.MatchString(doc.bodyText(body)) {
			list.add("rep", model.IssueReproducibility, model.IssueSeverityWarning, fmt.Sprintf("Exercise section %d", i+1),
				fmt.Sprintf("Exercise section %d missing difficulty indicators", i+1),
				"Add difficulty levels", "Include expected learning outcomes")
		}
	}
}

func (v *ContentValidator) checkSections(list *issueList, doc *chapterDoc) {
	for _, name := range requiredSections {
		if doc.headings[strings.ToLower(name)] {
			continue
		}
		list.add("fmt", model.IssueFormatting, model.IssueSeverityFail, "Entire chapter",
			fmt.Sprintf("Required section missing: ## %s", name),
			fmt.Sprintf("Add the ## %s section", name))
	}
}

func (v *ContentValidator) checkImages(list *issueList, doc *chapterDoc) {
	for i, alt := range doc.images {
		if len([]rune(strings.TrimSpace(alt))) >= minAltTextLength {
			continue
		}
		list.add("img", model.IssueAccessibility, model.IssueSeverityWarning, fmt.Sprintf("Image %d", i+1),
			fmt.Sprintf("Image %d has insufficient alt text: '%s'", i+1, alt),
			"Add descriptive alt text")
	}
}

// ValidateLearningOutcomes checks that outcomes exist and read as measurable
// actions.
func (v *ContentValidator) ValidateLearningOutcomes(outcomes []string) []model.ContentIssue {
	list := &issueList{}
	if len(outcomes) == 0 {
		list.add("lo", model.IssueCompleteness, model.IssueSeverityFail, "Chapter learning outcomes",
			"No learning outcomes defined",
			"Add at least 3-5 specific learning outcomes", "Use action verbs like 'define', 'explain', 'analyze', 'implement'")
		return list.issues
	}
	for i, outcome := range outcomes {
		location := fmt.Sprintf("Learning outcome %d", i+1)
		trimmed := strings.TrimSpace(outcome)
		lower := strings.ToLower(trimmed)
		if len([]rune(trimmed)) < minOutcomeLength {
			list.add("lo", model.IssueQuality, model.IssueSeverityWarning, location,
				fmt.Sprintf("Learning outcome %d is too brief: '%s'", i+1, trimmed),
				"Expand the learning outcome to be more specific", "Include measurable action verbs")
		}
		if !containsAny(lower, actionVerbs) {
			list.add("lo", model.IssueQuality, model.IssueSeverityWarning, location,
				fmt.Sprintf("Learning outcome %d may lack an action verb: '%s'", i+1, trimmed),
				"Start with an action verb")
		}
		if containsAny(lower, vagueOutcomeTerms) {
			list.add("lo", model.IssueQuality, model.IssueSeverityWarning, location,
				fmt.Sprintf("Learning outcome %d contains a vague term: '%s'", i+1, trimmed),
				"Replace vague terms with measurable actions")
		}
	}
	return list.issues
}

// ValidateCodeExample parses code in the given language. Go, JSON and YAML
// get a real parse; anything else only gets a delimiter balance check.
func (v *ContentValidator) ValidateCodeExample(code, language string) []model.ContentIssue {
	list := &issueList{}
	var err error
	severity := model.IssueSeverityFail
	switch strings.ToLower(language) {
	case "go", "golang":
		err = parseGoSnippet(code)
	case "json":
		var out interface{}
		err = json.Unmarshal([]byte(code), &out)
	case "yaml", "yml":
		var out interface{}
		err = yaml.Unmarshal([]byte(code), &out)
	default:
		err = checkDelimiters(code)
		severity = model.IssueSeverityWarning
	}
	if err != nil {
		list.add("code", model.IssueReproducibility, severity, "Code example",
			fmt.Sprintf("Syntax error in code: %v", err),
			"Fix the syntax error", "Verify the code runs as shown")
	}
	return list.issues
}

func newContentReport(issues []model.ContentIssue) *model.ContentReport {
	report := &model.ContentReport{Issues: issues}
	if report.Issues == nil {
		report.Issues = []model.ContentIssue{}
	}
	for _, issue := range issues {
		switch issue.Severity {
		case model.IssueSeverityFail:
			report.Failures++
		case model.IssueSeverityWarning:
			report.Warnings++
		}
	}
	report.Passed = report.Failures == 0
	return report
}

func parseChapterDoc(content string) *chapterDoc {
	source := []byte(content)
	doc := &chapterDoc{source: source, headings: map[string]bool{}, sections: map[string][][]ast.Node{}}
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var current string
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 2 {
			current = ""
			if h.Level == 2 {
				current = strings.ToLower(strings.TrimSpace(doc.nodeText(h)))
				doc.headings[current] = true
				doc.sections[current] = append(doc.sections[current], nil)
			}
			continue
		}
		if current != "" {
			bodies := doc.sections[current]
			bodies[len(bodies)-1] = append(bodies[len(bodies)-1], node)
		}
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			doc.code = append(doc.code, codeBlock{
				language: strings.TrimSpace(string(node.Language(source))),
				code:     blockLines(node, source),
			})
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			doc.code = append(doc.code, codeBlock{code: blockLines(node, source)})
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			doc.images = append(doc.images, doc.nodeText(node))
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			doc.prose = append(doc.prose, node)
		}
		return ast.WalkContinue, nil
	})
	return doc
}

func (d *chapterDoc) nodeText(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := child.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(d.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			sb.WriteString(blockLines(node, d.source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func (d *chapterDoc) bodyText(body []ast.Node) string {
	parts := make([]string, 0, len(body))
	for _, n := range body {
		parts = append(parts, d.nodeText(n))
	}
	return strings.Join(parts, "\n")
}

// listItems returns the list item texts of every section with this name.
func (d *chapterDoc) listItems(section string) []string {
	var out []string
	for _, body := range d.sections[section] {
		for _, n := range body {
			list, ok := n.(*ast.List)
			if !ok {
				continue
			}
			for item := list.FirstChild(); item != nil; item = item.NextSibling() {
				if t := strings.TrimSpace(d.nodeText(item)); t != "" {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

// parseGoSnippet accepts a full file, top-level declarations or a list of
// statements.
func parseGoSnippet(code string) error {
	fset := token.NewFileSet()
	if strings.HasPrefix(strings.TrimSpace(code), "package ") {
		_, err := parser.ParseFile(fset, "snippet.go", code, parser.AllErrors)
		return err
	}
	if _, err := parser.ParseFile(fset, "snippet.go", "package snippet\n"+code, parser.AllErrors); err == nil {
		return nil
	}
	_, err := parser.ParseFile(fset, "snippet.go", "package snippet\nfunc _() {\n"+code+"\n}\n", parser.AllErrors)
	return err
}

// checkDelimiters reports the first unbalanced bracket outside string
// literals.
func checkDelimiters(code string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	var quote rune
	escaped := false
	for _, r := range code {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote || (r == '\n' && quote != '`'):
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("unexpected %q", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
