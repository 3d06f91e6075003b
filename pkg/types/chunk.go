package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// TokensPerChar approximates model tokens from character counts
const TokensPerChar = 4

// FileDescriptor describes one file admitted into a scan
type FileDescriptor struct {
	Path     string `json:"path"` // Relative to the repository root, slash-separated
	AbsPath  string `json:"-"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

// Chunk is a bounded, located slice of a file's text
type Chunk struct {
	ID          string
	FilePath    string
	Location    Location
	Content     string
	Language    string
	TokenCount  int
	ContentHash [32]byte // SHA-256 of Content
}

// ChunkID derives the chunk identifier from its file and line range
func ChunkID(path string, startLine, endLine int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d-%d", path, startLine, endLine)))
	return hex.EncodeToString(h[:8])
}

// EstimateTokens estimates the number of tokens in text
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}

// ComputeTokenCount estimates and stores the token count of the chunk
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.Content)
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// LineCount returns the number of lines the chunk covers
func (c *Chunk) LineCount() int {
	return c.Location.Span()
}

// Validate performs validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk ID is required")
	}
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.FilePath != c.Location.FilePath {
		return errors.New("chunk file path does not match its location")
	}
	if err := c.Location.Validate(); err != nil {
		return err
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}
	return nil
}

// ContextChunk is a related chunk retrieved to give a pass surrounding
// context
type ContextChunk struct {
	ChunkID      string  `json:"chunk_id"`
	FilePath     string  `json:"file_path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Language     string  `json:"language,omitempty"`
	FunctionName string  `json:"function_name,omitempty"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}
