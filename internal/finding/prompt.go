package finding

import (
	"fmt"
	"strings"

	"github.com/dshills/codeguard/pkg/types"
)

const systemPrompt = "You are an expert security engineer and code reviewer. Always respond with valid JSON only."

var passInstructions = map[Pass]string{
	PassVulnerability: `Analyze the code for security vulnerabilities: OWASP Top 10 and CWE patterns, insecure functions, hardcoded secrets, weak cryptography, SQL injection, XSS, command injection and remote code execution. Report only real, exploitable problems.`,
	PassCodeReview:    `Review the code for quality problems: performance, readability, idiomatic usage, error handling, refactoring opportunities and design. Do not report security vulnerabilities.`,
	PassAutoComment:   `Identify lines whose logic is complex, has subtle edge cases or lacks documentation, and write a short explanatory comment for each.`,
}

var passFormats = map[Pass]string{
	PassVulnerability: `{
  "findings": [
    {
      "severity": "critical|high|medium|low",
      "title": "Vulnerability title",
      "description": "Detailed description",
      "start_line": 10,
      "end_line": 15,
      "rule_id": "sql-injection",
      "cwe_id": "CWE-89",
      "owasp_category": "A03:2021 Injection",
      "suggestion": "How to fix",
      "code_snippet": "vulnerable code",
      "fixed_code": "fixed code"
    }
  ]
}`,
	PassCodeReview: `{
  "findings": [
    {
      "severity": "medium|low|info",
      "title": "Review finding title",
      "description": "Description",
      "start_line": 20,
      "end_line": 25,
      "rule_id": "short-kebab-case-id",
      "suggestion": "Improvement suggestion",
      "code_snippet": "current code",
      "fixed_code": "improved code"
    }
  ]
}`,
	PassAutoComment: `{
  "auto_comments": [
    {
      "line": 30,
      "comment": "Explanation of complex logic"
    }
  ]
}`,
}

// BuildPrompt renders the prompt for one pass over one chunk. Chunk lines
// are numbered from 1 and reported line numbers must use that numbering.
func BuildPrompt(pass Pass, chunk types.Chunk, context []types.ContextChunk) string {
	var sb strings.Builder

	sb.WriteString(passInstructions[pass])
	sb.WriteString("\n\n")

	if len(context) > 0 {
		sb.WriteString("## Related Code Context\n")
		for _, c := range context {
			sb.WriteString(fmt.Sprintf("\n### %s (lines %d-%d)\n", c.FilePath, c.StartLine, c.EndLine))
			sb.WriteString("```" + c.Language + "\n")
			sb.WriteString(c.Content)
			sb.WriteString("\n```\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Code to Analyze\n\n")
	sb.WriteString(fmt.Sprintf("File: %s (lines %d-%d)\n", chunk.FilePath, chunk.Location.StartLine, chunk.Location.EndLine))
	sb.WriteString(fmt.Sprintf("Language: %s\n", chunk.Language))
	if chunk.Location.FunctionName != "" {
		sb.WriteString(fmt.Sprintf("Enclosing declaration: %s\n", chunk.Location.FunctionName))
	}
	sb.WriteString("\n```" + chunk.Language + "\n")
	sb.WriteString(numberLines(chunk.Content))
	sb.WriteString("```\n\n")

	sb.WriteString("Line numbers refer to the numbered lines above.\n\n")
	sb.WriteString("## Output Format (JSON)\n\n")
	sb.WriteString(passFormats[pass])
	sb.WriteString("\n\nReturn an empty list when there is nothing to report. Return ONLY valid JSON, no markdown formatting or additional text.")

	return sb.String()
}

func numberLines(content string) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	width := len(fmt.Sprint(len(lines)))

	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(fmt.Sprintf("%*d| %s\n", width, i+1, line))
	}
	return sb.String()
}
