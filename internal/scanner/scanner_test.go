package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeguard/internal/chunker"
	"github.com/dshills/codeguard/internal/embedder"
	"github.com/dshills/codeguard/internal/finding"
	"github.com/dshills/codeguard/internal/indexer"
	"github.com/dshills/codeguard/internal/ingest"
	"github.com/dshills/codeguard/internal/retriever"
	"github.com/dshills/codeguard/internal/retry"
	"github.com/dshills/codeguard/internal/storage"
	"github.com/dshills/codeguard/pkg/types"
)

const vulnerablePy = `import sqlite3

def get_user(conn, user_id):
    query = "SELECT * FROM users WHERE id = " + user_id
    return conn.execute(query).fetchone()
`

const helperPy = `def add(a, b):
    return a + b
`

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func newTestController(t *testing.T, capability finding.Capability, policy retry.Policy, mutate ...func(*Options)) *Controller {
	t.Helper()

	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}

	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	require.NoError(t, err)
	index := storage.NewMemoryIndex()
	t.Cleanup(func() {
		_ = index.Close()
		_ = emb.Close()
	})

	if policy.MaxAttempts == 0 {
		policy = retry.Policy{MaxAttempts: 1}
	}

	deps := Dependencies{
		Ingestor:  ingest.New(ingest.Config{}),
		Indexer:   indexer.New(chunker.New(chunker.Config{}), emb, index, indexer.Options{Workers: 2}),
		Index:     index,
		Retriever: retriever.New(index, emb, retriever.DefaultOptions()),
		Generator: finding.NewGenerator(capability, finding.Options{
			Passes: []finding.Pass{finding.PassVulnerability},
			Retry:  policy,
		}),
	}
	c := New(deps, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// markerDraft reports d on the first chunk line containing marker
type markerDraft struct {
	marker string
	draft  finding.Draft
}

func (m markerDraft) locate(chunk types.Chunk) (finding.Draft, bool) {
	for i, line := range strings.Split(chunk.Content, "\n") {
		if strings.Contains(line, m.marker) {
			d := m.draft
			d.StartOffset, d.EndOffset = i, i
			return d, true
		}
	}
	return finding.Draft{}, false
}

// byMarker reports each file's draft on the chunk holding its marker
func byMarker(drafts map[string]markerDraft) finding.Capability {
	return finding.CapabilityFunc(func(_ context.Context, req finding.Request) ([]finding.Draft, error) {
		m, ok := drafts[req.Chunk.FilePath]
		if !ok {
			return nil, nil
		}
		if d, ok := m.locate(req.Chunk); ok {
			return []finding.Draft{d}, nil
		}
		return nil, nil
	})
}

func TestRun_ThreeFileScan(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"app/db.py":     vulnerablePy,
		"app/util.py":   helperPy,
		"app/empty.py":  "",
		"docs/notes.md": "not a source file",
	})
	c := newTestController(t, byMarker(map[string]markerDraft{
		"app/db.py": {marker: "SELECT", draft: finding.Draft{
			Severity:    "high",
			Title:       "SQL Injection",
			Description: "User input concatenated into SQL",
			CWEID:       "CWE-89",
			Suggestion:  "Use parameterized queries",
		}},
		"app/util.py": {marker: "return a + b", draft: finding.Draft{Severity: "low", Title: "Missing type hints"}},
	}), retry.Policy{})

	res, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 3, res.ScannedFiles)
	require.NotNil(t, res.CompletedAt)
	assert.Empty(t, res.Error)

	require.Len(t, res.Issues, 2)
	assert.Equal(t, types.SeverityHigh, res.Issues[0].Severity)
	assert.Equal(t, "app/db.py", res.Issues[0].Location.FilePath)
	assert.Equal(t, 4, res.Issues[0].Location.StartLine)
	assert.Equal(t, "CWE-89", res.Issues[0].CWEID)
	assert.Equal(t, types.SeverityLow, res.Issues[1].Severity)

	assert.Equal(t, 2, res.Summary.TotalIssues)
	assert.Equal(t, 1, res.Summary.BySeverity.High)
	assert.Equal(t, 1, res.Summary.BySeverity.Low)
	assert.Equal(t, 2, res.Summary.ByType.Vulnerability)

	status, err := c.Status(res.ScanID)
	require.NoError(t, err)
	assert.Equal(t, res.Summary.TotalIssues, status.TotalIssues)
	assert.Equal(t, res.Summary.BySeverity, status.IssuesBySeverity)
}

func TestRun_MissingPathFails(t *testing.T) {
	c := newTestController(t, byMarker(nil), retry.Policy{})

	res, err := c.Run(context.Background(), types.ScanRequest{
		RepositoryPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, 0, res.TotalFiles)
	assert.Equal(t, 0, res.ScannedFiles)
	assert.Contains(t, res.Error, string(types.IngestPathNotFound))
	assert.NotNil(t, res.CompletedAt)
	assert.Empty(t, res.Issues)
}

func TestStart_InvalidRequest(t *testing.T) {
	c := newTestController(t, byMarker(nil), retry.Policy{})

	_, err := c.Start(context.Background(), types.ScanRequest{})
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))

	_, err = c.Start(context.Background(), types.ScanRequest{RepositoryURL: "https://x/y.git", RepositoryPath: "."})
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))
	assert.Empty(t, c.List())
}

func TestRun_SlowPassBecomesWarning(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": vulnerablePy,
		"b.py": helperPy,
		"c.py": helperPy + "\n\ndef sub(a, b):\n    return a - b\n",
	})

	capability := finding.CapabilityFunc(func(ctx context.Context, req finding.Request) ([]finding.Draft, error) {
		if req.Chunk.FilePath == "a.py" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []finding.Draft{{Severity: "medium", Title: "Style"}}, nil
	})
	c := newTestController(t, capability, retry.Policy{MaxAttempts: 1, AttemptTimeout: 20 * time.Millisecond})

	res, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, 3, res.ScannedFiles)
	assert.NotEmpty(t, res.Issues)

	var generation []types.Warning
	for _, w := range res.Warnings {
		if w.Stage == types.StageGeneration {
			generation = append(generation, w)
		}
	}
	require.NotEmpty(t, generation)
	assert.Equal(t, "a.py", generation[0].FilePath)
	assert.Equal(t, string(finding.PassVulnerability), generation[0].Pass)
}

func TestRun_FailureThreshold(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": vulnerablePy, "b.py": helperPy})

	capability := finding.CapabilityFunc(func(context.Context, finding.Request) ([]finding.Draft, error) {
		return nil, retry.Permanent(errors.New("model unavailable"))
	})
	c := newTestController(t, capability, retry.Policy{})

	res, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.Error, types.ErrFailureThreshold.Error())
	assert.Equal(t, 2, res.ScannedFiles, "failed units still resolve their files")
	assert.Empty(t, res.Issues)
}

func TestRun_ZeroFailureFraction(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": vulnerablePy, "b.py": helperPy})

	capability := finding.CapabilityFunc(func(_ context.Context, req finding.Request) ([]finding.Draft, error) {
		if req.Chunk.FilePath == "b.py" {
			return nil, retry.Permanent(errors.New("model unavailable"))
		}
		return nil, nil
	})

	lenient := newTestController(t, capability, retry.Policy{})
	res, err := lenient.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status, "one of two units is not above one half")

	strict := newTestController(t, capability, retry.Policy{}, func(o *Options) { o.MaxFailureFraction = 0 })
	res, err = strict.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.Error, types.ErrFailureThreshold.Error())
	assert.Equal(t, 2, res.ScannedFiles)
}

func TestCancel_KeepsPartialIssues(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": vulnerablePy, "b.py": helperPy})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sqli := markerDraft{marker: "SELECT", draft: finding.Draft{Severity: "critical", Title: "SQL Injection"}}
	capability := finding.CapabilityFunc(func(ctx context.Context, req finding.Request) ([]finding.Draft, error) {
		if req.Chunk.FilePath == "a.py" {
			if d, ok := sqli.locate(req.Chunk); ok {
				return []finding.Draft{d}, nil
			}
			return nil, nil
		}
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	c := newTestController(t, capability, retry.Policy{}, func(o *Options) { o.Workers = 2 })

	resp, err := c.Start(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, resp.Status)

	<-started
	require.Eventually(t, func() bool {
		res, err := c.Result(resp.ScanID)
		return err == nil && len(res.Issues) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Cancel(resp.ScanID))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Wait(ctx, resp.ScanID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, types.ErrScanCancelled.Error(), res.Error)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.SeverityCritical, res.Issues[0].Severity)

	err = c.Cancel(resp.ScanID)
	assert.True(t, errors.Is(err, types.ErrScanFinished))
}

func TestRun_ContextCancellation(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": vulnerablePy})

	started := make(chan struct{})
	var once sync.Once
	capability := finding.CapabilityFunc(func(ctx context.Context, _ finding.Request) ([]finding.Draft, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newTestController(t, capability, retry.Policy{MaxAttempts: 1, AttemptTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res, err := c.Run(ctx, types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, types.ErrScanCancelled.Error(), res.Error)
}

func TestRun_MaxDuration(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": vulnerablePy, "b.py": helperPy})

	capability := finding.CapabilityFunc(func(ctx context.Context, _ finding.Request) ([]finding.Draft, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newTestController(t, capability, retry.Policy{}, func(o *Options) {
		o.Workers = 1
		o.MaxDuration = 50 * time.Millisecond
	})

	res, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Contains(t, res.Error, types.ErrScanTimeout.Error())
}

func TestStatus_MonotonicProgress(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name+".py"] = helperPy
	}
	root := writeRepo(t, files)

	capability := finding.CapabilityFunc(func(context.Context, finding.Request) ([]finding.Draft, error) {
		time.Sleep(5 * time.Millisecond)
		return []finding.Draft{{Severity: "info", Title: "Note"}}, nil
	})
	c := newTestController(t, capability, retry.Policy{}, func(o *Options) { o.Workers = 2 })

	resp, err := c.Start(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)

	rank := map[types.ScanStatus]int{
		types.StatusPending:    0,
		types.StatusInProgress: 1,
		types.StatusCompleted:  2,
		types.StatusFailed:     2,
	}
	last := resp
	for !last.Status.Terminal() {
		cur, err := c.Status(resp.ScanID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rank[cur.Status], rank[last.Status])
		assert.GreaterOrEqual(t, cur.ScannedFiles, last.ScannedFiles)
		assert.GreaterOrEqual(t, cur.TotalIssues, last.TotalIssues)
		last = cur
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, types.StatusCompleted, last.Status)
	assert.Equal(t, 6, last.ScannedFiles)
	assert.Equal(t, 6, last.TotalIssues)
}

func TestList_DeleteAndNotFound(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.py": helperPy})
	c := newTestController(t, byMarker(nil), retry.Policy{})

	first, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	second, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ScanID, list[0].ScanID)
	assert.Equal(t, second.ScanID, list[1].ScanID)

	count, err := c.deps.Index.Count(context.Background(), first.ScanID)
	require.NoError(t, err)
	assert.Positive(t, count)

	require.NoError(t, c.Delete(context.Background(), first.ScanID))
	count, err = c.deps.Index.Count(context.Background(), first.ScanID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, c.List(), 1)

	for _, fn := range []func() error{
		func() error { _, err := c.Status(first.ScanID); return err },
		func() error { _, err := c.Result(first.ScanID); return err },
		func() error { return c.Cancel(first.ScanID) },
		func() error { return c.Delete(context.Background(), first.ScanID) },
		func() error { _, err := c.Wait(context.Background(), "nope"); return err },
	} {
		err := fn()
		assert.True(t, errors.Is(err, types.ErrScanNotFound), "got %v", err)
	}
}

func TestRun_RetrievedContextReachesCapability(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": vulnerablePy,
		"b.py": strings.ReplaceAll(vulnerablePy, "get_user", "get_account"),
	})

	var mu sync.Mutex
	contexts := map[string]int{}
	capability := finding.CapabilityFunc(func(_ context.Context, req finding.Request) ([]finding.Draft, error) {
		mu.Lock()
		contexts[req.Chunk.FilePath] = len(req.Context)
		mu.Unlock()
		for _, cc := range req.Context {
			if cc.ChunkID == req.Chunk.ID {
				return nil, errors.New("chunk retrieved as its own context")
			}
		}
		return nil, nil
	})
	c := newTestController(t, capability, retry.Policy{})

	res, err := c.Run(context.Background(), types.ScanRequest{RepositoryPath: root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status, res.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, contexts["a.py"], "similar chunks in other files are retrieved")
	assert.Positive(t, contexts["b.py"])
}
