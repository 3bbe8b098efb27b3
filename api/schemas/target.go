package schemas

// -- DAST Target Resolution Schemas --

// ResolutionTier identifies which strategy produced (or failed to produce)
// a scannable DAST target. Tiers are attempted strictly in the order they
// are declared here.
type ResolutionTier string

const (
	TierUserProvided  ResolutionTier = "USER_PROVIDED"
	TierAutoDetected  ResolutionTier = "AUTO_DETECTED"
	TierContainerized ResolutionTier = "CONTAINERIZED"
	TierUnavailable   ResolutionTier = "UNAVAILABLE"
)

// ResolveRequest describes where the resolver may look for a running
// instance of the application under test.
type ResolveRequest struct {
	// TargetURL is a caller-supplied URL. When set and reachable it always
	// wins over every other strategy.
	TargetURL string `json:"target_url,omitempty"`
	// RepoURL is the GitHub repository the application lives in, used to
	// derive hosted-deployment candidates and for cloning.
	RepoURL string `json:"repo_url,omitempty"`
	// RepoPath points at an existing local checkout. When empty and a
	// containerized attempt needs sources, RepoURL is shallow-cloned.
	RepoPath string `json:"repo_path,omitempty"`
	// Branch narrows the clone. Empty means the remote default.
	Branch string `json:"branch,omitempty"`
}

// Detection carries what the resolver learned while resolving.
type Detection struct {
	// Framework is the detected application framework (flask, django,
	// nextjs, react, vue, nodejs, static, php) when tier 3 ran.
	Framework string `json:"framework,omitempty"`
	// Port is the container port the application listens on.
	Port int `json:"port,omitempty"`
	// Image and ContainerID identify the ephemeral docker artifacts while
	// a containerized target is live.
	Image       string `json:"image,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	// DockerfileGenerated is true when the resolver synthesized a
	// Dockerfile rather than using one from the repository.
	DockerfileGenerated bool `json:"dockerfile_generated,omitempty"`
	// TierNotes records, per attempted tier, why it did not resolve.
	TierNotes []string `json:"tier_notes,omitempty"`
	// Guidance holds remediation steps when resolution ends UNAVAILABLE.
	Guidance []string `json:"guidance,omitempty"`
}

// ScanTarget is the resolver's outcome. UNAVAILABLE is a valid, successful
// outcome: ResolvedURL is empty and Detection.Guidance explains what the
// user can do to make a target reachable.
type ScanTarget struct {
	RepoURL     string         `json:"repo_url,omitempty"`
	ResolvedURL string         `json:"resolved_url,omitempty"`
	Tier        ResolutionTier `json:"tier"`
	Detection   Detection      `json:"detection"`
}

// Scannable reports whether the target can actually be scanned.
func (t *ScanTarget) Scannable() bool {
	return t.Tier != TierUnavailable && t.ResolvedURL != ""
}
