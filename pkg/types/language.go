package types

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps supported file extensions to language tags
var languageByExtension = map[string]string{
	".py":     "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".java":   "java",
	".go":     "go",
	".rs":     "rust",
	".cpp":    "cpp",
	".hpp":    "cpp",
	".c":      "c",
	".h":      "c",
	".php":    "php",
	".rb":     "ruby",
	".sh":     "shell",
	".yml":    "yaml",
	".yaml":   "yaml",
	".json":   "json",
	".tf":     "terraform",
	".tfvars": "terraform",
}

// DetectLanguage returns the language tag for path, or "" when the file
// type is not supported
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	if lower == "dockerfile" || strings.HasSuffix(lower, ".dockerfile") || strings.HasPrefix(lower, "dockerfile.") {
		return "dockerfile"
	}
	return languageByExtension[strings.ToLower(filepath.Ext(base))]
}

// SupportedExtensions returns the known file extensions
func SupportedExtensions() []string {
	exts := make([]string, 0, len(languageByExtension))
	for ext := range languageByExtension {
		exts = append(exts, ext)
	}
	return exts
}
