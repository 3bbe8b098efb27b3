package gitrepo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/google/go-github/v58/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitHubURL(t *testing.T) {
	testCases := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "HTTPS", url: "https://github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{name: "HTTPSWithGitSuffix", url: "https://github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "HTTPSTrailingSlash", url: "https://github.com/acme/widgets/", wantOwner: "acme", wantRepo: "widgets"},
		{name: "WWWHost", url: "https://www.github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{name: "SCPLike", url: "git@github.com:acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "SSHScheme", url: "ssh://git@github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "DottedRepoName", url: "https://github.com/acme/widgets.js", wantOwner: "acme", wantRepo: "widgets.js"},
		{name: "NotGitHub", url: "https://gitlab.com/acme/widgets", wantErr: true},
		{name: "MissingRepo", url: "https://github.com/acme", wantErr: true},
		{name: "Garbage", url: "not a url", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			owner, repo, err := ParseGitHubURL(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOwner, owner)
			assert.Equal(t, tc.wantRepo, repo)
		})
	}
}

func TestOriginOwnerRepo(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		dir := t.TempDir()
		wc, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		_, err = wc.CreateRemote(&gitconfig.RemoteConfig{
			Name: "origin",
			URLs: []string{"git@github.com:acme/widgets.git"},
		})
		require.NoError(t, err)

		owner, repo, err := OriginOwnerRepo(dir)
		require.NoError(t, err)
		assert.Equal(t, "acme", owner)
		assert.Equal(t, "widgets", repo)
	})

	t.Run("NoOriginRemote", func(t *testing.T) {
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)

		_, _, err = OriginOwnerRepo(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no origin remote")
	})

	t.Run("NotAWorkingCopy", func(t *testing.T) {
		_, _, err := OriginOwnerRepo(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a git working copy")
	})
}

func TestCloneShallow_FailureLeavesNothingBehind(t *testing.T) {
	dir, cleanup, err := CloneShallow(context.Background(), "bogus://nowhere/acme/widgets.git", "")

	require.Error(t, err)
	assert.Empty(t, dir)
	assert.Nil(t, cleanup)
}

func TestFetchMeta(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/acme/widgets", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":1,"name":"widgets","homepage":"https://widgets.example.com","default_branch":"main"}`)
		}))
		defer server.Close()

		meta, err := FetchMeta(context.Background(), apiClientFor(t, server), "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, "https://widgets.example.com", meta.Homepage)
		assert.Equal(t, "main", meta.DefaultBranch)
	})

	t.Run("NotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}))
		defer server.Close()

		_, err := FetchMeta(context.Background(), apiClientFor(t, server), "acme", "ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch repository metadata for acme/ghost")
	})
}

// apiClientFor points a GitHub client at the test server.
func apiClientFor(t *testing.T, server *httptest.Server) *github.Client {
	t.Helper()
	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}
