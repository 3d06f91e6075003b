// Package report renders scan results as JSON, SARIF 2.1.0 or Markdown.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/codeguard/pkg/types"
)

// Format names an output format
type Format string

const (
	FormatJSON     Format = "json"
	FormatSARIF    Format = "sarif"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported formats
var Formats = []Format{FormatJSON, FormatSARIF, FormatMarkdown}

// ErrUnknownFormat is returned for unsupported format names
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat maps a format name, case-insensitively. "md" is accepted for
// Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "sarif":
		return FormatSARIF, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

// Write renders res to w in format
func Write(w io.Writer, format Format, res *types.ScanResult) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, res)
	case FormatSARIF:
		return WriteSARIF(w, res)
	case FormatMarkdown:
		return WriteMarkdown(w, res)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// Render returns res rendered in format
func Render(format Format, res *types.ScanResult) (string, error) {
	var b strings.Builder
	if err := Write(&b, format, res); err != nil {
		return "", err
	}
	return b.String(), nil
}

// WriteJSON writes res as indented JSON
func WriteJSON(w io.Writer, res *types.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
