// File: internal/normalize/sca.go
package normalize

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/package-url/packageurl-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// npmAdvisory mirrors one entry of the `vulnerabilities` map in `npm audit
// --json` output. fixAvailable is a boolean or an object depending on
// whether npm can compute an upgrade path, so it stays raw until inspected.
type npmAdvisory struct {
	Title    string   `json:"title"`
	Severity string   `json:"severity"`
	CWE      []string `json:"cwe"`
	URL      string   `json:"url"`
	Range    string   `json:"range"`
	Findings []struct {
		Version string `json:"version"`
	} `json:"findings"`
	FixAvailable json.RawMessage `json:"fixAvailable"`
}

// pipAuditReport mirrors the subset of `pip-audit --format json` we consume.
type pipAuditReport struct {
	Dependencies []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Vulns   []struct {
			ID                 string `json:"id"`
			Severity           string `json:"severity"`
			Description        string `json:"description"`
			VulnerableVersions string `json:"vulnerable_versions"`
			FixedVersion       string `json:"fixed_version"`
		} `json:"vulns"`
	} `json:"dependencies"`
}

// parseSCA detects the SCA tool by the report's top-level shape. npm audit
// carries "vulnerabilities", pip-audit carries "dependencies", osv-scanner
// carries "results".
func (p *Parser) parseSCA(data []byte) ([]schemas.VulnerabilityRecord, error) {
	probe, err := topLevelKeys(data)
	if err != nil {
		return nil, schemas.NewValidationError("SCA report is not valid JSON: %v", err)
	}
	if _, ok := probe["vulnerabilities"]; ok {
		return p.parseNPMAudit(probe["vulnerabilities"])
	}
	if _, ok := probe["dependencies"]; ok {
		return p.parsePipAudit(data)
	}
	if _, ok := probe["results"]; ok {
		return p.parseOSVScanner(data)
	}
	return nil, schemas.NewValidationError("unrecognized SCA report format: expected npm audit, pip-audit or osv-scanner output")
}

// parseNPMAudit normalizes `npm audit --json` output. The vulnerabilities
// map is keyed by package name; entries are a single advisory object or a
// list of them. Packages are walked in sorted order so record order is
// stable across runs.
func (p *Parser) parseNPMAudit(vulnerabilities json.RawMessage) ([]schemas.VulnerabilityRecord, error) {
	var byPackage map[string]json.RawMessage
	if err := json.Unmarshal(vulnerabilities, &byPackage); err != nil {
		return nil, schemas.NewValidationError("failed to decode npm audit vulnerabilities: %v", err)
	}

	names := make([]string, 0, len(byPackage))
	for name := range byPackage {
		names = append(names, name)
	}
	sort.Strings(names)

	var records []schemas.VulnerabilityRecord
	for _, name := range names {
		advisories, err := decodeAdvisories(byPackage[name])
		if err != nil {
			p.logger.Warn("Skipping malformed npm audit entry",
				zap.String("package", name), zap.Error(err))
			continue
		}
		for _, adv := range advisories {
			records = append(records, p.npmRecord(name, adv, len(records)))
		}
	}
	p.logger.Info("Parsed npm audit report",
		zap.Int("packages", len(byPackage)),
		zap.Int("records", len(records)))
	return records, nil
}

// decodeAdvisories accepts both entry shapes npm has shipped: a bare
// advisory object and an array of them.
func decodeAdvisories(raw json.RawMessage) ([]npmAdvisory, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []npmAdvisory
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one npmAdvisory
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []npmAdvisory{one}, nil
}

func (p *Parser) npmRecord(name string, adv npmAdvisory, index int) schemas.VulnerabilityRecord {
	version := "Unknown"
	if len(adv.Findings) > 0 && adv.Findings[0].Version != "" {
		version = adv.Findings[0].Version
	}

	identifier := "N/A"
	if len(adv.CWE) > 0 && adv.CWE[0] != "" {
		identifier = adv.CWE[0]
	} else if id := ghsaFromURL(adv.URL); id != "" {
		identifier = id
	}

	fixAvailable, patched := npmFix(adv.FixAvailable)

	pkg := &schemas.PackageRef{
		Name:            name,
		Version:         version,
		Ecosystem:       packageurl.TypeNPM,
		PURL:            buildPURL(packageurl.TypeNPM, name, version),
		VulnerableRange: orDefault(adv.Range, "Unknown"),
		FixedVersion:    patched,
	}

	return schemas.VulnerabilityRecord{
		ID:             newRecordID(),
		Title:          fmt.Sprintf("%s vulnerability", name),
		Description:    orDefault(adv.Title, "No description available"),
		Severity:       NormalizeSeverity(adv.Severity),
		SourceType:     schemas.SourceSCA,
		Category:       "Vulnerable Dependency",
		Location:       fmt.Sprintf("%s@%s", name, version),
		Identifier:     identifier,
		Recommendation: upgradeAdvice(name, fixAvailable, patched),
		Package:        pkg,
		ReportIndex:    index,
	}
}

func (p *Parser) parsePipAudit(data []byte) ([]schemas.VulnerabilityRecord, error) {
	var report pipAuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, schemas.NewValidationError("failed to decode pip-audit report: %v", err)
	}

	var records []schemas.VulnerabilityRecord
	for _, dep := range report.Dependencies {
		name := orDefault(dep.Name, "Unknown")
		version := orDefault(dep.Version, "Unknown")
		for _, v := range dep.Vulns {
			fixAvailable := v.FixedVersion != ""
			pkg := &schemas.PackageRef{
				Name:            name,
				Version:         version,
				Ecosystem:       packageurl.TypePyPi,
				PURL:            buildPURL(packageurl.TypePyPi, name, version),
				VulnerableRange: orDefault(v.VulnerableVersions, "Unknown"),
				FixedVersion:    v.FixedVersion,
			}
			records = append(records, schemas.VulnerabilityRecord{
				ID:             newRecordID(),
				Title:          fmt.Sprintf("%s vulnerability", name),
				Description:    orDefault(v.Description, "No description"),
				Severity:       NormalizeSeverity(v.Severity),
				SourceType:     schemas.SourceSCA,
				Category:       "Vulnerable Dependency",
				Location:       fmt.Sprintf("%s@%s", name, version),
				Identifier:     orDefault(v.ID, "N/A"),
				Recommendation: upgradeAdvice(name, fixAvailable, v.FixedVersion),
				Package:        pkg,
				ReportIndex:    len(records),
			})
		}
	}
	p.logger.Info("Parsed pip-audit report",
		zap.Int("dependencies", len(report.Dependencies)),
		zap.Int("records", len(records)))
	return records, nil
}

// npmFix inspects the polymorphic fixAvailable field. Only the object form
// carries an actionable upgrade; `true` alone means npm could not name one.
func npmFix(raw json.RawMessage) (available bool, version string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false, ""
	}
	var fix struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(trimmed, &fix); err != nil {
		return false, ""
	}
	return true, fix.Version
}

// ghsaFromURL pulls a GHSA advisory id out of an advisory URL such as
// https://github.com/advisories/GHSA-p6mc-m468-83gw.
func ghsaFromURL(url string) string {
	_, after, found := strings.Cut(url, "GHSA-")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "/")
	return "GHSA-" + id
}

func upgradeAdvice(name string, fixAvailable bool, patched string) string {
	switch {
	case fixAvailable && patched != "":
		return fmt.Sprintf("Upgrade %s to version %s", name, patched)
	case fixAvailable:
		return fmt.Sprintf("Upgrade %s to a non-vulnerable version", name)
	default:
		return "No fix available yet; monitor the advisory for updates"
	}
}

// buildPURL renders a package URL, splitting npm scopes into the namespace
// component. Unknown versions are omitted rather than encoded.
func buildPURL(purlType, name, version string) string {
	namespace := ""
	if purlType == packageurl.TypeNPM && strings.HasPrefix(name, "@") {
		if scope, rest, found := strings.Cut(name, "/"); found {
			namespace, name = scope, rest
		}
	}
	if version == "Unknown" {
		version = ""
	}
	return packageurl.NewPackageURL(purlType, namespace, name, version, nil, "").ToString()
}
