package parser

import (
	"regexp"
	"sort"
	"strings"
)

// BlockKind classifies a recognised block
type BlockKind string

const (
	KindFunction BlockKind = "function"
	KindClass    BlockKind = "class"
)

// Block is a declaration and the line range it spans (1-based, inclusive)
type Block struct {
	Name      string
	Kind      BlockKind
	StartLine int
	EndLine   int
	Indent    int
}

// Contains reports whether line falls within the block
func (b Block) Contains(line int) bool {
	return line >= b.StartLine && line <= b.EndLine
}

type style int

const (
	styleBraces style = iota
	styleIndent
)

type declPattern struct {
	re   *regexp.Regexp
	kind BlockKind
}

type language struct {
	style    style
	patterns []declPattern
	quotes   string // String delimiters, defaults to defaultQuotes
}

const defaultQuotes = "\"'`"

// keywords that look like calls or declarations in C-family grammars
var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "new": true, "else": true, "do": true, "sizeof": true,
	"throw": true, "case": true, "elif": true, "foreach": true,
}

func fn(expr string) declPattern {
	return declPattern{re: regexp.MustCompile(expr), kind: KindFunction}
}

func class(expr string) declPattern {
	return declPattern{re: regexp.MustCompile(expr), kind: KindClass}
}

var jsPatterns = []declPattern{
	fn(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*[<(]`),
	fn(`^(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::\s*[^=]+)?=>|\w+\s*=>)`),
	class(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`),
	class(`^(?:export\s+)?interface\s+(\w+)`),
}

var cPatterns = []declPattern{
	class(`^(?:typedef\s+)?(?:class|struct)\s+(\w+)[^;]*$`),
	fn(`^(?:[\w\*&:<>,]+\s+)+[\*&]*(\w+(?:::~?\w+)?)\s*\([^;]*$`),
}

var languages = map[string]language{
	"go": {style: styleBraces, patterns: []declPattern{
		fn(`^func\s+(?:\([^)]*\)\s*)?(\w+)\s*[\[(]`),
		class(`^type\s+(\w+)\s+(?:struct|interface)\b`),
	}},
	"python": {style: styleIndent, patterns: []declPattern{
		fn(`^(?:async\s+)?def\s+(\w+)\s*\(`),
		class(`^class\s+(\w+)`),
	}},
	"javascript": {style: styleBraces, patterns: jsPatterns},
	"typescript": {style: styleBraces, patterns: jsPatterns},
	"java": {style: styleBraces, patterns: []declPattern{
		class(`^(?:(?:public|private|protected|static|final|abstract|sealed)\s+)*(?:class|interface|enum|record)\s+(\w+)`),
		fn(`^(?:(?:public|private|protected|static|final|abstract|synchronized|native|default)\s+)*(?:<[^>]+>\s+)?[\w<>\[\],.?]+\s+(\w+)\s*\([^;]*$`),
	}},
	"rust": {style: styleBraces, quotes: `"`, patterns: []declPattern{
		fn(`^(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+(\w+)`),
		class(`^(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait|union)\s+(\w+)`),
		class(`^impl(?:<[^>]*>)?\s+(?:[\w:<>]+\s+for\s+)?(\w+)`),
	}},
	"c":   {style: styleBraces, patterns: cPatterns},
	"cpp": {style: styleBraces, patterns: cPatterns},
	"php": {style: styleBraces, patterns: []declPattern{
		fn(`^(?:(?:public|private|protected|static|final|abstract)\s+)*function\s+&?(\w+)\s*\(`),
		class(`^(?:(?:final|abstract|readonly)\s+)*(?:class|interface|trait|enum)\s+(\w+)`),
	}},
	"ruby": {style: styleIndent, patterns: []declPattern{
		fn(`^def\s+(?:self\.)?(\w+[?!=]?)`),
		class(`^(?:class|module)\s+(\w+(?:::\w+)*)`),
	}},
	"shell": {style: styleBraces, patterns: []declPattern{
		fn(`^function\s+([\w-]+)`),
		fn(`^([\w-]+)\s*\(\s*\)`),
	}},
	"terraform": {style: styleBraces, patterns: []declPattern{
		class(`^(?:resource|data)\s+"[^"]+"\s+"([^"]+)"`),
		class(`^(?:module|variable|output|provider)\s+"([^"]+)"`),
	}},
}

// Parser recognises blocks in source text
type Parser struct {
	languages map[string]language
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{languages: languages}
}

// Supports reports whether the language has declaration patterns
func (p *Parser) Supports(lang string) bool {
	_, ok := p.languages[lang]
	return ok
}

// Blocks returns every recognised block, including nested ones, ordered by
// start line then by descending span. The result is deterministic.
func (p *Parser) Blocks(content, lang string) []Block {
	syntax, ok := p.languages[lang]
	if !ok || content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var blocks []Block

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed) {
			continue
		}

		name, kind, ok := match(syntax.patterns, trimmed)
		if !ok {
			continue
		}

		b := Block{Name: name, Kind: kind, StartLine: i + 1, Indent: indentOf(line)}
		switch syntax.style {
		case styleIndent:
			b.StartLine = decoratorStart(lines, i, b.Indent)
			b.EndLine = indentEnd(lines, i, b.Indent, lang == "ruby")
		default:
			quotes := syntax.quotes
			if quotes == "" {
				quotes = defaultQuotes
			}
			end, body := braceEnd(lines, i, quotes)
			if !body {
				continue // prototype or forward declaration
			}
			b.EndLine = end
		}
		blocks = append(blocks, b)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].StartLine != blocks[j].StartLine {
			return blocks[i].StartLine < blocks[j].StartLine
		}
		return blocks[i].EndLine > blocks[j].EndLine
	})
	return blocks
}

// TopLevel filters blocks to those not nested inside another block
func TopLevel(blocks []Block) []Block {
	var top []Block
	lastEnd := 0
	for _, b := range blocks {
		if b.StartLine <= lastEnd {
			continue
		}
		top = append(top, b)
		lastEnd = b.EndLine
	}
	return top
}

// Enclosing returns the innermost block containing line
func Enclosing(blocks []Block, line int) (Block, bool) {
	var best Block
	found := false
	for _, b := range blocks {
		if !b.Contains(line) {
			continue
		}
		if !found || b.EndLine-b.StartLine < best.EndLine-best.StartLine {
			best = b
			found = true
		}
	}
	return best, found
}

func match(patterns []declPattern, trimmed string) (string, BlockKind, bool) {
	for _, pat := range patterns {
		m := pat.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		name := m[1]
		if controlKeywords[name] || controlKeywords[firstWord(trimmed)] {
			continue
		}
		return name, pat.kind, true
	}
	return "", "", false
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t("); i > 0 {
		return s[:i]
	}
	return s
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*")
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// decoratorStart extends a block upward over decorator lines at the same indent
func decoratorStart(lines []string, i, indent int) int {
	start := i
	for start > 0 {
		prev := lines[start-1]
		if strings.HasPrefix(strings.TrimSpace(prev), "@") && indentOf(prev) == indent {
			start--
			continue
		}
		break
	}
	return start + 1
}

// indentEnd returns the last line of an indentation-delimited block
func indentEnd(lines []string, i, indent int, closingEnd bool) int {
	end := i + 1
	for j := i + 1; j < len(lines); j++ {
		line := lines[j]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if indentOf(line) <= indent {
			if closingEnd && trimmed == "end" && indentOf(line) == indent {
				end = j + 1
			}
			break
		}
		end = j + 1
	}
	return end
}

// maxHeaderLines bounds how far a declaration may span before its body opens
const maxHeaderLines = 5

// braceEnd returns the line closing the block opened at or after line i.
// body is false when the declaration ends with ';' before any '{'.
func braceEnd(lines []string, i int, quotes string) (end int, body bool) {
	depth := 0
	opened := false
	for j := i; j < len(lines); j++ {
		open, closeCount, semi := scanBraces(lines[j], quotes)
		if !opened {
			if open == 0 {
				if semi || j-i >= maxHeaderLines {
					return i + 1, false
				}
				continue
			}
			opened = true
		}
		depth += open - closeCount
		if depth <= 0 {
			return j + 1, true
		}
	}
	if !opened {
		return i + 1, false
	}
	return len(lines), true
}

// scanBraces counts braces outside of string literals and line comments
func scanBraces(line, quotes string) (open, closeCount int, semicolon bool) {
	var quote rune
	escaped := false
	prev := rune(0)
	for _, r := range line {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			prev = r
			continue
		}
		if strings.ContainsRune(quotes, r) {
			quote = r
			prev = r
			continue
		}
		switch r {
		case '/':
			if prev == '/' {
				return open, closeCount, semicolon
			}
		case '{':
			open++
		case '}':
			closeCount++
		case ';':
			semicolon = true
		}
		prev = r
	}
	return open, closeCount, semicolon
}
