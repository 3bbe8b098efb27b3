// File: internal/normalize/osv.go
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/osv-scanner/pkg/models"
	json "github.com/json-iterator/go"
	"github.com/package-url/packageurl-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// parseOSVScanner normalizes `osv-scanner --format json` output using the
// scanner's own result models.
func (p *Parser) parseOSVScanner(data []byte) ([]schemas.VulnerabilityRecord, error) {
	var results models.VulnerabilityResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, schemas.NewValidationError("failed to decode osv-scanner report: %v", err)
	}

	var records []schemas.VulnerabilityRecord
	for _, source := range results.Results {
		for _, pkgVulns := range source.Packages {
			name := pkgVulns.Package.Name
			version := pkgVulns.Package.Version
			ecosystem := string(pkgVulns.Package.Ecosystem)

			for _, vuln := range pkgVulns.Vulnerabilities {
				fixed := lowestFixedVersion(name, vuln.Affected)
				pkg := &schemas.PackageRef{
					Name:            name,
					Version:         version,
					Ecosystem:       ecosystem,
					PURL:            buildPURL(purlTypeForEcosystem(ecosystem), name, version),
					VulnerableRange: affectedRange(name, vuln.Affected),
					FixedVersion:    fixed,
				}
				description := vuln.Summary
				if description == "" {
					description = vuln.Details
				}
				records = append(records, schemas.VulnerabilityRecord{
					ID:             newRecordID(),
					Title:          fmt.Sprintf("%s vulnerability", name),
					Description:    orDefault(description, "No description available"),
					Severity:       osvSeverity(vuln, pkgVulns.Groups),
					SourceType:     schemas.SourceSCA,
					Category:       "Vulnerable Dependency",
					Location:       fmt.Sprintf("%s@%s (%s)", name, version, source.Source.Path),
					Identifier:     orDefault(vuln.ID, "N/A"),
					Recommendation: upgradeAdvice(name, fixed != "", fixed),
					Package:        pkg,
					ReportIndex:    len(records),
				})
			}
		}
	}
	p.logger.Info("Parsed osv-scanner report",
		zap.Int("sources", len(results.Results)),
		zap.Int("records", len(records)))
	return records, nil
}

// osvSeverity derives a canonical severity from the scanner's grouped
// max_severity score, falling back to any numeric severity score on the
// vulnerability itself. CVSS vectors without a computed score are not
// evaluated here; those default to MEDIUM.
func osvSeverity(vuln models.Vulnerability, groups []models.GroupInfo) schemas.Severity {
	for _, group := range groups {
		for _, id := range group.IDs {
			if id != vuln.ID {
				continue
			}
			if score, err := strconv.ParseFloat(group.MaxSeverity, 64); err == nil {
				return cvssSeverity(score)
			}
		}
	}
	for _, sev := range vuln.Severity {
		if score, err := strconv.ParseFloat(sev.Score, 64); err == nil {
			return cvssSeverity(score)
		}
	}
	return schemas.SeverityMedium
}

// cvssSeverity buckets a CVSS base score per the v3 qualitative scale.
func cvssSeverity(score float64) schemas.Severity {
	switch {
	case score >= 9.0:
		return schemas.SeverityCritical
	case score >= 7.0:
		return schemas.SeverityHigh
	case score >= 4.0:
		return schemas.SeverityMedium
	default:
		return schemas.SeverityLow
	}
}

// lowestFixedVersion picks the smallest fixed version announced for the
// package across SEMVER and ECOSYSTEM ranges. The smallest is the least
// disruptive upgrade that clears the advisory.
func lowestFixedVersion(pkgName string, affected []models.Affected) string {
	var lowest *semver.Version
	var fallback string
	for _, aff := range affected {
		if aff.Package.Name != "" && aff.Package.Name != pkgName {
			continue
		}
		for _, vrange := range aff.Ranges {
			if vrange.Type != models.RangeEcosystem && vrange.Type != models.RangeSemVer {
				continue
			}
			for _, event := range vrange.Events {
				if event.Fixed == "" {
					continue
				}
				parsed, err := semver.NewVersion(event.Fixed)
				if err != nil {
					if fallback == "" {
						fallback = event.Fixed
					}
					continue
				}
				if lowest == nil || parsed.LessThan(lowest) {
					lowest = parsed
				}
			}
		}
	}
	if lowest != nil {
		return lowest.Original()
	}
	return fallback
}

// affectedRange renders a human-readable range expression from the first
// matching OSV range, e.g. ">=2.0.0, <2.4.1".
func affectedRange(pkgName string, affected []models.Affected) string {
	for _, aff := range affected {
		if aff.Package.Name != "" && aff.Package.Name != pkgName {
			continue
		}
		for _, vrange := range aff.Ranges {
			var parts []string
			for _, event := range vrange.Events {
				switch {
				case event.Introduced != "" && event.Introduced != "0":
					parts = append(parts, ">="+event.Introduced)
				case event.Fixed != "":
					parts = append(parts, "<"+event.Fixed)
				case event.LastAffected != "":
					parts = append(parts, "<="+event.LastAffected)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
		if len(aff.Versions) > 0 {
			return strings.Join(aff.Versions, ", ")
		}
	}
	return "Unknown"
}

// purlTypeForEcosystem maps OSV ecosystem names onto purl types.
func purlTypeForEcosystem(ecosystem string) string {
	switch strings.ToLower(ecosystem) {
	case "npm":
		return packageurl.TypeNPM
	case "pypi":
		return packageurl.TypePyPi
	case "go":
		return packageurl.TypeGolang
	case "maven":
		return packageurl.TypeMaven
	case "crates.io":
		return packageurl.TypeCargo
	case "rubygems":
		return packageurl.TypeGem
	case "packagist":
		return packageurl.TypeComposer
	case "nuget":
		return packageurl.TypeNuget
	default:
		return packageurl.TypeGeneric
	}
}
