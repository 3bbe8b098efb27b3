// Package target resolves a scannable DAST endpoint for a repository. Four
// strategies run in strict order: a caller-provided URL, hosted-deployment
// detection, an ephemeral local container, and a terminal UNAVAILABLE
// outcome carrying remediation guidance. Each skipped tier leaves a note
// explaining why it did not apply.
package target

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/gitrepo"
)

const (
	defaultProbeTimeout    = 10 * time.Second
	defaultBuildTimeout    = 5 * time.Minute
	defaultContainerBudget = 2 * time.Minute
	teardownTimeout        = 30 * time.Second
)

// Resolver implements schemas.TargetResolver. A single Resolver may serve
// concurrent Resolve calls; the containerized tier is serialized so only
// one build/run cycle owns the docker daemon at a time.
type Resolver struct {
	cfg     config.ResolverConfig
	logger  *zap.Logger
	probe   *http.Client
	gh      *github.Client
	runtime ContainerRuntime

	containerSem   *semaphore.Weighted
	backoffFactory func() backoff.BackOff
}

// NewResolver wires a Resolver. A nil runtime disables the containerized
// tier outright.
func NewResolver(cfg config.ResolverConfig, runtime ContainerRuntime, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = defaultBuildTimeout
	}
	if cfg.ContainerBudget <= 0 {
		cfg.ContainerBudget = defaultContainerBudget
	}

	// Probes deliberately accept self-signed certificates: the point is
	// "is something answering", not trust.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
	}

	r := &Resolver{
		cfg:          cfg,
		logger:       logger.Named("target_resolver"),
		probe:        &http.Client{Transport: transport},
		gh:           gitrepo.NewGitHubClient(cfg.GitHubToken),
		runtime:      runtime,
		containerSem: semaphore.NewWeighted(1),
	}
	r.backoffFactory = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 5 * time.Second
		bo.MaxElapsedTime = r.cfg.ContainerBudget
		return bo
	}
	return r
}

// resolution carries state across tier attempts.
type resolution struct {
	req    schemas.ResolveRequest
	target schemas.ScanTarget
	owner  string
	repo   string
	meta   *gitrepo.RepoMeta
	notes  []string
}

func (res *resolution) note(format string, args ...any) {
	res.notes = append(res.notes, fmt.Sprintf(format, args...))
}

type strategy struct {
	tier schemas.ResolutionTier
	try  func(ctx context.Context, res *resolution) (bool, error)
}

// Resolve walks the tiers until one produces a target. Errors are reserved
// for the resolver's own failures (a cancelled context); "nothing worked"
// is the UNAVAILABLE outcome, which always resolves.
func (r *Resolver) Resolve(ctx context.Context, req schemas.ResolveRequest) (*schemas.ScanTarget, error) {
	res := &resolution{req: req}
	res.target.RepoURL = req.RepoURL

	strategies := []strategy{
		{schemas.TierUserProvided, r.tryUserProvided},
		{schemas.TierAutoDetected, r.tryAutoDetected},
		{schemas.TierContainerized, r.tryContainerized},
		{schemas.TierUnavailable, r.finishUnavailable},
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.logger.Debug("Attempting resolution tier", zap.String("tier", string(s.tier)))

		resolved, err := s.try(ctx, res)
		if err != nil {
			return nil, err
		}
		if resolved {
			res.target.Tier = s.tier
			res.target.Detection.TierNotes = res.notes
			r.logger.Info("DAST target resolution finished",
				zap.String("tier", string(s.tier)),
				zap.String("resolved_url", res.target.ResolvedURL),
				zap.Int("tier_notes", len(res.notes)),
			)
			return &res.target, nil
		}
	}
	return nil, errors.New("no resolution strategy applied")
}

// Teardown releases the docker artifacts behind a CONTAINERIZED target. It
// uses a fresh background context so a cancelled run still cleans up.
func (r *Resolver) Teardown(target *schemas.ScanTarget) {
	if target == nil || target.Tier != schemas.TierContainerized || r.runtime == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	det := target.Detection
	if det.ContainerID != "" {
		if err := r.runtime.Stop(ctx, det.Image); err != nil {
			r.logger.Warn("Failed to stop scan container", zap.String("container", det.Image), zap.Error(err))
		}
		if err := r.runtime.Remove(ctx, det.Image); err != nil {
			r.logger.Warn("Failed to remove scan container", zap.String("container", det.Image), zap.Error(err))
		}
	}
	if det.Image != "" {
		if err := r.runtime.RemoveImage(ctx, det.Image); err != nil {
			r.logger.Warn("Failed to remove scan image", zap.String("image", det.Image), zap.Error(err))
		}
	}
}

// -- Tier 1: USER_PROVIDED --

func (r *Resolver) tryUserProvided(ctx context.Context, res *resolution) (bool, error) {
	if res.req.TargetURL == "" {
		res.note("USER_PROVIDED: no target URL supplied")
		return false, nil
	}
	if r.probeURL(ctx, res.req.TargetURL) {
		res.target.ResolvedURL = res.req.TargetURL
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res.note("USER_PROVIDED: '%s' did not answer", res.req.TargetURL)
	return false, nil
}

// -- Tier 2: AUTO_DETECTED --

func (r *Resolver) tryAutoDetected(ctx context.Context, res *resolution) (bool, error) {
	owner, repo, err := r.deriveOwnerRepo(res.req)
	if err != nil {
		res.note("AUTO_DETECTED: %v", err)
		return false, nil
	}
	res.owner, res.repo = owner, repo

	meta, err := gitrepo.FetchMeta(ctx, r.gh, owner, repo)
	switch {
	case err == nil:
		res.meta = meta
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		// Metadata is an enrichment, not a requirement.
		r.logger.Debug("GitHub metadata lookup failed", zap.String("repo", owner+"/"+repo), zap.Error(err))
	}

	for _, candidate := range candidateURLs(owner, repo, res.meta) {
		if r.probeURL(ctx, candidate) {
			res.target.ResolvedURL = candidate
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	res.note("AUTO_DETECTED: no hosted deployment answered for %s/%s", owner, repo)
	return false, nil
}

func (r *Resolver) deriveOwnerRepo(req schemas.ResolveRequest) (string, string, error) {
	if req.RepoURL != "" {
		return gitrepo.ParseGitHubURL(req.RepoURL)
	}
	if req.RepoPath != "" {
		return gitrepo.OriginOwnerRepo(req.RepoPath)
	}
	return "", "", errors.New("no repository URL or local checkout to derive candidates from")
}

// candidateURLs lists hosted deployments to probe. The repository homepage
// leads when GitHub knows one; the hosting-provider conventions follow in
// fixed order, deduplicated against the homepage.
func candidateURLs(owner, repo string, meta *gitrepo.RepoMeta) []string {
	candidates := make([]string, 0, 7)
	seen := make(map[string]struct{}, 7)
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u)
	}

	if meta != nil {
		add(meta.Homepage)
	}
	add(fmt.Sprintf("https://%s.github.io/%s", owner, repo))
	add(fmt.Sprintf("https://%s.github.io", owner))
	add(fmt.Sprintf("https://%s.vercel.app", repo))
	add(fmt.Sprintf("https://%s.netlify.app", repo))
	add(fmt.Sprintf("https://%s.onrender.com", repo))
	add(fmt.Sprintf("https://%s.herokuapp.com", repo))
	return candidates
}

// -- Tier 3: CONTAINERIZED --

func (r *Resolver) tryContainerized(ctx context.Context, res *resolution) (bool, error) {
	if r.runtime == nil || !r.runtime.Available() {
		res.note("CONTAINERIZED: no container engine available on this host")
		return false, nil
	}

	if err := r.containerSem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer r.containerSem.Release(1)

	checkout := res.req.RepoPath
	if checkout == "" {
		if res.req.RepoURL == "" {
			res.note("CONTAINERIZED: no local checkout or repository URL to build from")
			return false, nil
		}
		branch := res.req.Branch
		if branch == "" && res.meta != nil {
			branch = res.meta.DefaultBranch
		}
		dir, cleanup, err := gitrepo.CloneShallow(ctx, res.req.RepoURL, branch)
		if err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			res.note("CONTAINERIZED: %v", err)
			return false, nil
		}
		defer cleanup()
		checkout = dir
	}

	fw, ok := DetectFramework(checkout)
	if !ok {
		res.note("CONTAINERIZED: no recognizable application framework in the checkout")
		return false, nil
	}
	res.target.Detection.Framework = fw.Name
	res.target.Detection.Port = fw.Port

	// The checkout stays pristine: a synthesized Dockerfile lives outside
	// the build context and is passed with -f.
	dockerfile := ""
	if !fw.HasDockerfile {
		if !fw.Containerizable() {
			res.note("CONTAINERIZED: no Dockerfile template for framework '%s'", fw.Name)
			return false, nil
		}
		path, removeDockerfile, err := writeTempDockerfile(fw.Dockerfile)
		if err != nil {
			res.note("CONTAINERIZED: %v", err)
			return false, nil
		}
		defer removeDockerfile()
		dockerfile = path
		res.target.Detection.DockerfileGenerated = true
	}

	image := fmt.Sprintf("dast-scan-%d", time.Now().UnixNano())

	// Everything created from here on is torn down on any failure path,
	// including panics and cancellation. Success hands ownership of the
	// container to the caller, who releases it via Teardown.
	built, started, succeeded := false, false, false
	defer func() {
		if succeeded {
			return
		}
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if started {
			if err := r.runtime.Stop(tctx, image); err != nil {
				r.logger.Warn("Failed to stop scan container", zap.String("container", image), zap.Error(err))
			}
			if err := r.runtime.Remove(tctx, image); err != nil {
				r.logger.Warn("Failed to remove scan container", zap.String("container", image), zap.Error(err))
			}
		}
		if built {
			if err := r.runtime.RemoveImage(tctx, image); err != nil {
				r.logger.Warn("Failed to remove scan image", zap.String("image", image), zap.Error(err))
			}
		}
	}()

	buildCtx, cancelBuild := context.WithTimeout(ctx, r.cfg.BuildTimeout)
	defer cancelBuild()
	r.logger.Info("Building scan image",
		zap.String("image", image),
		zap.String("framework", fw.Name),
		zap.Bool("dockerfile_generated", dockerfile != ""),
	)
	if err := r.runtime.Build(buildCtx, image, dockerfile, checkout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		res.note("CONTAINERIZED: image build failed: %v", err)
		return false, nil
	}
	built = true

	hostPort, err := ephemeralPort()
	if err != nil {
		res.note("CONTAINERIZED: %v", err)
		return false, nil
	}

	containerID, err := r.runtime.Run(ctx, image, image, hostPort, fw.Port)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		res.note("CONTAINERIZED: container start failed: %v", err)
		return false, nil
	}
	started = true

	localURL := fmt.Sprintf("http://127.0.0.1:%d", hostPort)
	if err := r.awaitReady(ctx, localURL); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		res.note("CONTAINERIZED: application never became ready: %v", err)
		return false, nil
	}

	res.target.ResolvedURL = localURL
	res.target.Detection.Image = image
	res.target.Detection.ContainerID = containerID
	succeeded = true
	return true, nil
}

// -- Tier 4: UNAVAILABLE --

func (r *Resolver) finishUnavailable(_ context.Context, res *resolution) (bool, error) {
	res.target.Detection.Guidance = []string{
		"Provide a live deployment URL for immediate scanning",
		"Deploy to GitHub Pages, Vercel, Netlify, Render, or Heroku for automatic detection",
		"Add a Dockerfile so the application can be built and scanned locally",
		"Dynamic scanning requires a running application; static and dependency findings are unaffected",
	}
	return true, nil
}

// -- Shared Plumbing --

// probeURL reports whether the URL answers with a non-error status within
// the probe timeout. Redirects are followed.
func (r *Resolver) probeURL(ctx context.Context, rawURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.probe.Do(req)
	if err != nil {
		r.logger.Debug("Probe failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func (r *Resolver) awaitReady(ctx context.Context, url string) error {
	operation := func() error {
		if r.probeURL(ctx, url) {
			return nil
		}
		return fmt.Errorf("'%s' is not answering yet", url)
	}
	return backoff.Retry(operation, backoff.WithContext(r.backoffFactory(), ctx))
}

func ephemeralPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate a host port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func writeTempDockerfile(content string) (string, func(), error) {
	f, err := os.CreateTemp("", "securai-dockerfile-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to stage a Dockerfile: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to stage a Dockerfile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to stage a Dockerfile: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
