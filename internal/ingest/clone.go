package ingest

import (
	"context"
	"fmt"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// CloneRepository shallow-clones url into dir with go-git
func CloneRepository(ctx context.Context, dir, url, branch, token string) error {
	opts := &git.CloneOptions{
		URL:          url,
		Auth:         basicAuth(token),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("error occurred during clone: %w", err)
	}
	return nil
}

func basicAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}

// RepositoryName extracts the repository name from a VCS URL for display
func RepositoryName(url string) string {
	info, err := vcsurl.Parse(url)
	if err != nil || info.Name == "" {
		return url
	}
	return info.Name
}
