package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/codeguard/internal/parser"
	"github.com/dshills/codeguard/pkg/types"
)

const (
	// DefaultWindowLines is the window size for unstructured or oversized segments
	DefaultWindowLines = 60

	// DefaultOverlapLines is the overlap between consecutive windows
	DefaultOverlapLines = 10

	// DefaultMaxTokens is the maximum estimated token count per chunk
	DefaultMaxTokens = 1000
)

// Config controls chunk sizing. Zero values select the defaults.
type Config struct {
	WindowLines  int
	OverlapLines int
	MaxTokens    int
}

func (c Config) withDefaults() Config {
	if c.WindowLines <= 0 {
		c.WindowLines = DefaultWindowLines
		if c.OverlapLines == 0 {
			c.OverlapLines = DefaultOverlapLines
		}
	}
	if c.OverlapLines < 0 {
		c.OverlapLines = 0
	}
	if c.OverlapLines >= c.WindowLines {
		c.OverlapLines = c.WindowLines - 1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Chunker creates chunks from file contents
type Chunker struct {
	cfg    Config
	parser *parser.Parser
}

// New creates a new Chunker instance
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults(), parser: parser.New()}
}

// Config returns the effective configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// segment is an inclusive, 0-based line range. decl is the line of the
// block declaration, or -1 for code between blocks.
type segment struct {
	start, end int
	decl       int
}

// ChunkFile splits content into chunks. Whitespace-only content yields no
// chunks and no error. Invalid UTF-8 yields a *types.ChunkingError.
func (c *Chunker) ChunkFile(file types.FileDescriptor, content string) ([]types.Chunk, error) {
	if !utf8.ValidString(content) {
		return nil, &types.ChunkingError{
			FilePath: file.Path,
			Err:      fmt.Errorf("%w: invalid UTF-8", types.ErrUnparsable),
		}
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := splitLines(content)
	blocks := c.parser.Blocks(content, file.Language)

	var chunks []types.Chunk
	for _, seg := range segments(lines, parser.TopLevel(blocks)) {
		for _, win := range c.windows(lines, seg) {
			chunks = append(chunks, c.newChunk(file, lines, win, blocks))
		}
	}
	return chunks, nil
}

func (c *Chunker) newChunk(file types.FileDescriptor, lines []string, win segment, blocks []parser.Block) types.Chunk {
	start, end := win.start+1, win.end+1
	loc := types.Location{FilePath: file.Path, StartLine: start, EndLine: end}
	probe := start
	if win.decl >= win.start && win.decl <= win.end {
		probe = win.decl + 1 // skip leading comments
	}
	if b, ok := parser.Enclosing(blocks, probe); ok {
		loc.FunctionName = b.Name
	}

	chunk := types.Chunk{
		ID:       types.ChunkID(file.Path, start, end),
		FilePath: file.Path,
		Location: loc,
		Content:  strings.Join(lines[win.start:win.end+1], "\n"),
		Language: file.Language,
	}
	chunk.ComputeTokenCount()
	chunk.ComputeContentHash()
	return chunk
}

// windows splits a segment into chunk ranges that respect the line and
// token limits
func (c *Chunker) windows(lines []string, seg segment) []segment {
	if seg.end-seg.start+1 <= c.cfg.WindowLines && c.tokens(lines, seg.start, seg.end) <= c.cfg.MaxTokens {
		return []segment{seg}
	}

	var out []segment
	start := seg.start
	for {
		end := min(start+c.cfg.WindowLines-1, seg.end)
		for end > start && c.tokens(lines, start, end) > c.cfg.MaxTokens {
			end--
		}
		out = append(out, segment{start: start, end: end, decl: seg.decl})
		if end >= seg.end {
			return out
		}

		// A window shrunk by the token cap overlaps by at most half its length
		ov := min(c.cfg.OverlapLines, (end-start+1)/2)
		start = max(end-ov+1, start+1)
	}
}

func (c *Chunker) tokens(lines []string, start, end int) int {
	n := 0
	for i := start; i <= end; i++ {
		n += len(lines[i]) + 1
	}
	return (n - 1) / types.TokensPerChar
}

// segments covers every non-blank region of the file with either a
// top-level block or the gap between blocks. Comment lines directly above
// a block belong to it.
func segments(lines []string, top []parser.Block) []segment {
	var out []segment
	cursor := 0
	addGap := func(from, to int) {
		from, to = trimBlank(lines, from, to)
		if from <= to {
			out = append(out, segment{start: from, end: to, decl: -1})
		}
	}

	for _, b := range top {
		decl, end := b.StartLine-1, min(b.EndLine, len(lines))-1
		if decl < cursor {
			decl = cursor
		}
		if decl > end {
			continue
		}
		start := decl
		for start > cursor && isComment(lines[start-1]) {
			start--
		}
		addGap(cursor, start-1)
		if s, e := trimBlank(lines, start, end); s <= e {
			out = append(out, segment{start: s, end: e, decl: decl})
		}
		cursor = end + 1
	}
	addGap(cursor, len(lines)-1)
	return out
}

func isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"//", "#", "/*", "*", "--"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func trimBlank(lines []string, from, to int) (int, int) {
	for from <= to && strings.TrimSpace(lines[from]) == "" {
		from++
	}
	for to >= from && strings.TrimSpace(lines[to]) == "" {
		to--
	}
	return from, to
}

// splitLines splits content on newlines, dropping the empty element left
// by a trailing newline
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
