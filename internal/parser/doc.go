// Package parser recognises function- and class-like blocks in source text
// using lightweight, per-language declaration patterns.
//
// It does not build syntax trees. A declaration line is found by regular
// expression; the block it opens is bounded either by brace matching
// (C-family languages, Go, Rust, PHP, shell, Terraform) or by indentation
// (Python, Ruby). Results feed the chunker, which prefers block boundaries
// over fixed windows when splitting a file.
//
// # Basic Usage
//
//	p := parser.New()
//	for _, b := range p.Blocks(content, "python") {
//	    fmt.Printf("%s %s lines %d-%d\n", b.Kind, b.Name, b.StartLine, b.EndLine)
//	}
//
// # Supported Languages
//
//   - go, rust, java, c, cpp, php, javascript, typescript (braces)
//   - shell, terraform (braces)
//   - python, ruby (indentation; Ruby blocks include their closing "end")
//
// Unsupported languages (yaml, json, dockerfile, unknown) yield no blocks
// and are chunked by window only.
//
// # Limitations
//
// Brace counting ignores braces inside single-line string literals and
// trailing line comments, but not inside multi-line strings or block
// comments. A block whose braces never balance extends to end of file.
// These are acceptable for chunk boundary selection: a wrong boundary only
// changes where a window splits, never which lines are covered.
package parser
