// Package gitrepo answers the two questions the target resolver has about
// source repositories: which GitHub project does this code belong to, and
// where can a checkout of it be found locally.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v58/github"
)

// githubURLRe accepts the https, ssh and scp-like forms of a GitHub remote.
var githubURLRe = regexp.MustCompile(`^(?:https?://(?:www\.)?github\.com/|git@github\.com:|ssh://git@github\.com/)([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/?$`)

// ParseGitHubURL extracts the owner and repository name from a GitHub URL.
func ParseGitHubURL(raw string) (owner, repo string, err error) {
	m := githubURLRe.FindStringSubmatch(raw)
	if m == nil {
		return "", "", fmt.Errorf("'%s' is not a recognizable GitHub repository URL", raw)
	}
	return m[1], m[2], nil
}

// OriginOwnerRepo opens the working copy at path and derives the GitHub
// owner and repository from its origin remote.
func OriginOwnerRepo(path string) (owner, repo string, err error) {
	wc, err := git.PlainOpen(path)
	if err != nil {
		return "", "", fmt.Errorf("'%s' is not a git working copy: %w", path, err)
	}
	remote, err := wc.Remote("origin")
	if err != nil {
		return "", "", fmt.Errorf("working copy has no origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", errors.New("origin remote has no URLs configured")
	}
	return ParseGitHubURL(urls[0])
}

// CloneShallow clones url at depth 1 into a fresh temporary directory and
// returns the checkout path with a cleanup func that removes it. An empty
// branch clones the remote default. On error nothing is left on disk.
func CloneShallow(ctx context.Context, url, branch string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "securai-clone-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to clone '%s': %w", url, err)
	}

	cleanup := func() { os.RemoveAll(dir) }
	return dir, cleanup, nil
}

// RepoMeta is the slice of GitHub repository metadata the resolver cares
// about.
type RepoMeta struct {
	Homepage      string
	DefaultBranch string
}

// NewGitHubClient builds a GitHub API client, authenticated when a token is
// supplied. Unauthenticated clients work for public repositories within the
// anonymous rate limit.
func NewGitHubClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// FetchMeta looks up a repository's homepage and default branch.
func FetchMeta(ctx context.Context, client *github.Client, owner, name string) (*RepoMeta, error) {
	if client == nil {
		client = NewGitHubClient("")
	}
	repo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository metadata for %s/%s: %w", owner, name, err)
	}
	return &RepoMeta{
		Homepage:      repo.GetHomepage(),
		DefaultBranch: repo.GetDefaultBranch(),
	}, nil
}
