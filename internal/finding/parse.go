package finding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedOutput is returned when a backend response holds no usable JSON
var ErrMalformedOutput = errors.New("malformed backend output")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON returns the JSON object embedded in text: the body of a
// fenced block when present, otherwise the span from the first '{' to the
// last '}'
func extractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// lineNumber accepts JSON numbers and numeric strings
type lineNumber int

func (n *lineNumber) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("line number %q: %w", data, err)
	}
	*n = lineNumber(f)
	return nil
}

type rawFinding struct {
	Severity      string         `json:"severity"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	StartLine     lineNumber     `json:"start_line"`
	EndLine       lineNumber     `json:"end_line"`
	Line          lineNumber     `json:"line"`
	Comment       string         `json:"comment"`
	RuleID        string         `json:"rule_id"`
	CWEID         string         `json:"cwe_id"`
	OWASPCategory string         `json:"owasp_category"`
	Suggestion    string         `json:"suggestion"`
	CodeSnippet   string         `json:"code_snippet"`
	FixedCode     string         `json:"fixed_code"`
	Confidence    *float64       `json:"confidence"`
	Metadata      map[string]any `json:"metadata"`
}

type rawResponse struct {
	Findings        []rawFinding `json:"findings"`
	Vulnerabilities []rawFinding `json:"vulnerabilities"`
	CodeReview      []rawFinding `json:"code_review"`
	AutoComments    []rawFinding `json:"auto_comments"`
	Comments        []rawFinding `json:"comments"`
}

func (r rawResponse) forPass(pass Pass) []rawFinding {
	out := append([]rawFinding(nil), r.Findings...)
	switch pass {
	case PassVulnerability:
		out = append(out, r.Vulnerabilities...)
	case PassCodeReview:
		out = append(out, r.CodeReview...)
	case PassAutoComment:
		out = append(out, r.AutoComments...)
		out = append(out, r.Comments...)
	}
	return out
}

const maxCommentTitle = 80

// ParseDrafts decodes a backend response into drafts for pass. Line numbers
// in the response are 1-based within the chunk.
func ParseDrafts(pass Pass, text string) ([]Draft, error) {
	body := extractJSON(text)

	var resp rawResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var drafts []Draft
	for _, raw := range resp.forPass(pass) {
		d, ok := raw.draft(pass)
		if ok {
			drafts = append(drafts, d)
		}
	}
	return drafts, nil
}

func (raw rawFinding) draft(pass Pass) (Draft, bool) {
	start, end := int(raw.StartLine), int(raw.EndLine)
	if start <= 0 {
		start = int(raw.Line)
	}
	if start <= 0 {
		start = 1
	}
	if end < start {
		end = start
	}

	d := Draft{
		Severity:      raw.Severity,
		Title:         strings.TrimSpace(raw.Title),
		Description:   strings.TrimSpace(raw.Description),
		StartOffset:   start - 1,
		EndOffset:     end - 1,
		RuleID:        strings.TrimSpace(raw.RuleID),
		CWEID:         strings.TrimSpace(raw.CWEID),
		OWASPCategory: strings.TrimSpace(raw.OWASPCategory),
		Suggestion:    strings.TrimSpace(raw.Suggestion),
		CodeSnippet:   raw.CodeSnippet,
		FixedCode:     raw.FixedCode,
		Metadata:      raw.Metadata,
	}
	if raw.Confidence != nil {
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata["confidence"] = *raw.Confidence
	}

	if pass == PassAutoComment {
		comment := strings.TrimSpace(raw.Comment)
		if comment == "" {
			comment = d.Description
		}
		if comment == "" {
			comment = d.Title
		}
		if comment == "" {
			return Draft{}, false
		}
		if d.Title == "" {
			d.Title = truncate(comment, maxCommentTitle)
		}
		d.Description = comment
		return d, true
	}

	if d.Title == "" && d.Description == "" {
		return Draft{}, false
	}
	if d.Title == "" {
		d.Title = truncate(d.Description, maxCommentTitle)
	}
	return d, true
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
