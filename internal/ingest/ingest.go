package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/codeguard/internal/logging"
	"github.com/dshills/codeguard/pkg/types"
)

const (
	// DefaultMaxFileSize is the largest file admitted into a scan
	DefaultMaxFileSize = 100 << 20

	// DefaultCloneTimeout bounds a remote clone
	DefaultCloneTimeout = 5 * time.Minute

	// binarySniffLen is how much of a file is inspected for NUL bytes
	binarySniffLen = 8 << 10

	tempDirPrefix = "codeguard_"
)

// DefaultIgnoreDirs are never descended into
var DefaultIgnoreDirs = []string{
	".git", "node_modules", "__pycache__", "dist", "build", ".venv", "venv", "env",
	".pytest_cache", ".mypy_cache", ".ruff_cache", "target", "vendor", ".idea", ".vscode",
}

// Config controls repository resolution
type Config struct {
	WorkDir      string // Parent directory for temporary clones, defaults to os.TempDir
	MaxFileSize  int64
	CloneTimeout time.Duration
	GitToken     string
	IgnoreDirs   []string // Added to DefaultIgnoreDirs
}

// Cloner fetches url at branch into dir. An empty branch selects the remote default.
type Cloner func(ctx context.Context, dir, url, branch, token string) error

// Source is a resolved scan target
type Source struct {
	Root    string
	Files   []types.FileDescriptor
	Skipped int

	cleanup func() error
}

// Cleanup removes any temporary clone. It is safe to call more than once.
func (s *Source) Cleanup() error {
	if s == nil || s.cleanup == nil {
		return nil
	}
	fn := s.cleanup
	s.cleanup = nil
	return fn()
}

// Ingestor resolves scan requests into file sets
type Ingestor struct {
	cfg    Config
	ignore map[string]bool
	clone  Cloner
	logger zerolog.Logger
}

// Option customises an Ingestor
type Option func(*Ingestor)

// WithCloner replaces the git clone implementation
func WithCloner(c Cloner) Option {
	return func(i *Ingestor) { i.clone = c }
}

// New creates an Ingestor
func New(cfg Config, opts ...Option) *Ingestor {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.CloneTimeout <= 0 {
		cfg.CloneTimeout = DefaultCloneTimeout
	}

	ignore := make(map[string]bool, len(DefaultIgnoreDirs)+len(cfg.IgnoreDirs))
	for _, d := range DefaultIgnoreDirs {
		ignore[d] = true
	}
	for _, d := range cfg.IgnoreDirs {
		ignore[d] = true
	}

	i := &Ingestor{
		cfg:    cfg,
		ignore: ignore,
		clone:  CloneRepository,
		logger: logging.New("ingest"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Resolve fetches or locates the target and enumerates its files
func (i *Ingestor) Resolve(ctx context.Context, req types.ScanRequest) (*Source, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	src := &Source{}
	if req.RepositoryURL != "" {
		root, err := i.fetch(ctx, req.RepositoryURL, req.Branch)
		if err != nil {
			return nil, err
		}
		src.Root = root
		src.cleanup = func() error { return os.RemoveAll(root) }
	} else {
		root, err := localRoot(req.RepositoryPath)
		if err != nil {
			return nil, err
		}
		src.Root = root
	}

	files, skipped, err := i.enumerate(ctx, src.Root, req)
	if err != nil {
		_ = src.Cleanup()
		return nil, err
	}
	src.Files = files
	src.Skipped = skipped

	i.logger.Info().
		Str("target", req.Target()).
		Int("files", len(files)).
		Int("skipped", skipped).
		Msg("resolved scan target")
	return src, nil
}

func (i *Ingestor) fetch(ctx context.Context, url, branch string) (string, error) {
	dir, err := os.MkdirTemp(i.cfg.WorkDir, tempDirPrefix)
	if err != nil {
		return "", &types.IngestionError{Kind: types.IngestFetchFailed, Target: url, Err: err}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, i.cfg.CloneTimeout)
	defer cancel()

	start := time.Now()
	if err := i.clone(cloneCtx, dir, url, branch, i.cfg.GitToken); err != nil {
		_ = os.RemoveAll(dir)
		i.logger.Error().Err(err).Str("url", url).Str("branch", branch).Msg("clone failed")
		return "", &types.IngestionError{Kind: types.IngestFetchFailed, Target: url, Err: err}
	}

	i.logger.Debug().
		Str("url", url).
		Str("dir", dir).
		Dur("elapsed", time.Since(start)).
		Msg("repository cloned")
	return dir, nil
}

func localRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &types.IngestionError{Kind: types.IngestPathNotFound, Target: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &types.IngestionError{Kind: types.IngestPathNotFound, Target: path, Err: err}
	}
	if !info.IsDir() {
		return "", &types.IngestionError{Kind: types.IngestPathNotFound, Target: path, Err: errors.New("not a directory")}
	}
	return abs, nil
}

func (i *Ingestor) enumerate(ctx context.Context, root string, req types.ScanRequest) ([]types.FileDescriptor, int, error) {
	var only map[string]bool
	if len(req.FilePaths) > 0 {
		only = make(map[string]bool, len(req.FilePaths))
		for _, p := range req.FilePaths {
			only[normalizeRel(p)] = true
		}
	}

	var files []types.FileDescriptor
	skipped := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			i.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && i.ignore[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if only != nil && !only[rel] {
			return nil
		}
		if !i.admit(rel, req.IncludePatterns, req.ExcludePatterns) {
			skipped++
			return nil
		}

		lang := types.DetectLanguage(rel)
		if lang == "" {
			skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		if info.Size() > i.cfg.MaxFileSize {
			i.logger.Debug().Str("file", rel).Int64("size", info.Size()).Msg("skipping oversized file")
			skipped++
			return nil
		}
		if isBinary(path) {
			skipped++
			return nil
		}

		files = append(files, types.FileDescriptor{
			Path:     rel,
			AbsPath:  path,
			Language: lang,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, &types.IngestionError{Kind: types.IngestPathNotFound, Target: root, Err: err}
	}

	sort.Slice(files, func(a, b int) bool { return files[a].Path < files[b].Path })
	return files, skipped, nil
}

// admit applies exclude then include patterns
func (i *Ingestor) admit(rel string, include, exclude []string) bool {
	if matchAny(exclude, rel) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchAny(include, rel)
}

// matchAny matches each pattern against the relative path and the base name
func matchAny(patterns []string, rel string) bool {
	base := filepath.Base(rel)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if wildcard.Match(p, rel) || wildcard.Match(p, base) {
			return true
		}
		// "dir/" and "dir/*" also exclude everything below dir
		if prefix := strings.TrimSuffix(strings.TrimSuffix(p, "*"), "/"); prefix != p && prefix != "" &&
			strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

func normalizeRel(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// isBinary reports whether the file has a NUL byte in its first 8 KiB
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
