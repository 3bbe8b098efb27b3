// Package drafter turns normalized vulnerabilities into drafted security
// policies. Prompt composition is pure string building: identical inputs
// produce byte-identical prompts, which keeps generation reproducible up to
// the model itself.
package drafter

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/securai/api/schemas"
)

// SystemPrompt anchors every generation request. It is fixed; per-request
// variation lives entirely in the user prompt.
const SystemPrompt = `You are an expert cybersecurity policy analyst and technical writer specializing in translating technical vulnerability reports into professional security policies that comply with international standards (NIST Cybersecurity Framework and ISO/IEC 27001).

Your role is to:
1. Analyze technical security vulnerabilities
2. Map them to specific NIST CSF and ISO 27001 controls
3. Generate clear, actionable security policy sections
4. Provide business context and risk explanations
5. Recommend specific remediation steps with timelines

Guidelines:
- Use professional, formal language suitable for executive review
- Reference specific NIST CSF functions/categories and ISO 27001 Annex A controls
- Provide both technical and business impact descriptions
- Include measurable success criteria
- Assign clear ownership and deadlines based on severity
- Follow industry best practices (OWASP, CWE, CVE standards)`

// noContextBlock is rendered in place of retrieved passages when the
// retriever is degraded or returned nothing above the score threshold.
const noContextBlock = "No relevant compliance sections found."

const promptDivider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// FormatContexts renders retrieved compliance passages as numbered blocks
// the model can cite by control id.
func FormatContexts(contexts []schemas.ComplianceContext) string {
	if len(contexts) == 0 {
		return noContextBlock
	}
	sections := make([]string, 0, len(contexts))
	for i, c := range contexts {
		sections = append(sections, fmt.Sprintf("[%d] %s - %s\n%s\n", i+1, c.Framework, c.ControlID, c.TextSnippet))
	}
	return strings.Join(sections, "\n")
}

// RemediationOwner maps a severity to the role accountable for the fix.
func RemediationOwner(sev schemas.Severity) string {
	switch sev {
	case schemas.SeverityCritical:
		return "CTO"
	case schemas.SeverityHigh:
		return "Security Lead"
	case schemas.SeverityMedium:
		return "Development Lead"
	default:
		return "Developer"
	}
}

// RemediationDeadline maps a severity to its remediation window.
func RemediationDeadline(sev schemas.Severity) string {
	switch sev {
	case schemas.SeverityCritical:
		return "24-48 hours"
	case schemas.SeverityHigh:
		return "1 week"
	case schemas.SeverityMedium:
		return "2 weeks"
	default:
		return "1 month"
	}
}

// BuildUserPrompt selects the template for the record's source type and the
// requested expertise level and fills it. Unknown levels fall back to
// intermediate, matching the default audience.
func BuildUserPrompt(rec schemas.VulnerabilityRecord, contextBlock string, level schemas.ExpertiseLevel) string {
	if !level.Valid() {
		level = schemas.ExpertiseIntermediate
	}

	switch rec.SourceType {
	case schemas.SourceSCA:
		switch level {
		case schemas.ExpertiseBeginner:
			return beginnerSCAPrompt(rec, contextBlock)
		case schemas.ExpertiseAdvanced:
			return advancedSCAPrompt(rec, contextBlock)
		default:
			return intermediateSCAPrompt(rec, contextBlock)
		}
	case schemas.SourceDAST:
		switch level {
		case schemas.ExpertiseBeginner:
			return beginnerDASTPrompt(rec, contextBlock)
		case schemas.ExpertiseAdvanced:
			return advancedDASTPrompt(rec, contextBlock)
		default:
			return intermediateDASTPrompt(rec, contextBlock)
		}
	default:
		switch level {
		case schemas.ExpertiseBeginner:
			return beginnerSASTPrompt(rec, contextBlock)
		case schemas.ExpertiseAdvanced:
			return advancedSASTPrompt(rec, contextBlock)
		default:
			return intermediateSASTPrompt(rec, contextBlock)
		}
	}
}

// -- Detail Blocks --

func sastDetails(rec schemas.VulnerabilityRecord) string {
	var sb strings.Builder
	sb.WriteString("VULNERABILITY DETAILS:\n")
	sb.WriteString(promptDivider + "\n")
	fmt.Fprintf(&sb, "Title: %s\n", rec.Title)
	fmt.Fprintf(&sb, "Category: %s\n", rec.Category)
	fmt.Fprintf(&sb, "Severity: %s\n", rec.Severity)
	if rec.Identifier != "" {
		fmt.Fprintf(&sb, "CWE: %s\n", rec.Identifier)
	}
	fmt.Fprintf(&sb, "Location: %s\n", rec.Location)
	fmt.Fprintf(&sb, "\nDescription:\n%s\n", rec.Description)
	if rec.Recommendation != "" {
		fmt.Fprintf(&sb, "\nTechnical Recommendation: %s\n", rec.Recommendation)
	}
	return sb.String()
}

func scaDetails(rec schemas.VulnerabilityRecord) string {
	name, version, fixed, ecosystem := "", "", "", ""
	if rec.Package != nil {
		name = rec.Package.Name
		version = rec.Package.Version
		fixed = rec.Package.FixedVersion
		ecosystem = rec.Package.Ecosystem
	}
	if name == "" {
		name = rec.Title
	}

	var sb strings.Builder
	sb.WriteString("VULNERABLE DEPENDENCY:\n")
	sb.WriteString(promptDivider + "\n")
	fmt.Fprintf(&sb, "Package: %s\n", name)
	fmt.Fprintf(&sb, "Current Version: %s\n", version)
	if fixed != "" {
		fmt.Fprintf(&sb, "Fixed Version: %s\n", fixed)
	}
	if ecosystem != "" {
		fmt.Fprintf(&sb, "Ecosystem: %s\n", ecosystem)
	}
	if rec.Identifier != "" {
		fmt.Fprintf(&sb, "Advisory: %s\n", rec.Identifier)
	}
	fmt.Fprintf(&sb, "Severity: %s\n", rec.Severity)
	fmt.Fprintf(&sb, "\nDescription:\n%s\n", rec.Description)
	return sb.String()
}

func dastDetails(rec schemas.VulnerabilityRecord) string {
	var sb strings.Builder
	sb.WriteString("WEB VULNERABILITY:\n")
	sb.WriteString(promptDivider + "\n")
	fmt.Fprintf(&sb, "Issue: %s\n", rec.Title)
	fmt.Fprintf(&sb, "Endpoint: %s\n", rec.Endpoint)
	fmt.Fprintf(&sb, "HTTP Method: %s\n", rec.Method)
	fmt.Fprintf(&sb, "Risk Level: %s\n", rec.Severity)
	if rec.Identifier != "" {
		fmt.Fprintf(&sb, "CWE: %s\n", rec.Identifier)
	}
	fmt.Fprintf(&sb, "\nDescription:\n%s\n", rec.Description)
	if rec.Recommendation != "" {
		fmt.Fprintf(&sb, "\nSuggested Solution: %s\n", rec.Recommendation)
	}
	return sb.String()
}

func complianceBlock(contextBlock string) string {
	return "RELEVANT COMPLIANCE REQUIREMENTS:\n" + promptDivider + "\n" + contextBlock
}

func taskHeader() string {
	return "TASK:\n" + promptDivider
}

// -- SAST Templates --

func beginnerSASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a beginner-friendly security policy for a JUNIOR DEVELOPER with limited security experience.\n\n")
	sb.WriteString(sastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nWrite a policy section that:\n")
	sb.WriteString("- Starts by explaining what this vulnerability is in simple terms, as if to a friend.\n")
	sb.WriteString("- Explains why it is dangerous using a concrete real-world example.\n")
	sb.WriteString("- Shows BEFORE (vulnerable) and AFTER (secure) code examples with line-by-line comments.\n")
	sb.WriteString("- Gives numbered, step-by-step remediation instructions.\n")
	sb.WriteString("- Explains how to verify the fix works, including a test the reader can run.\n")
	sb.WriteString("- Lists learning resources (OWASP guides, tutorials, documentation).\n")
	sb.WriteString("- Avoids security jargon, or explains every technical term it uses.\n\n")
	sb.WriteString("Structure the response with these sections:\n")
	sb.WriteString("## Understanding the Issue\n## How to Fix It\n## Testing Your Fix\n## Learn More\n## Compliance\n## Timeline\n\n")
	sb.WriteString("In the Compliance section, cite the specific NIST CSF and ISO 27001 controls from the compliance requirements above.\n")
	fmt.Fprintf(&sb, "In the Timeline section, assign the fix to the %s with a deadline of %s.\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func intermediateSASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a technical security policy for a SENIOR DEVELOPER with solid programming skills.\n\n")
	sb.WriteString(sastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nGenerate a professional security policy section that includes:\n\n")
	sb.WriteString("1. POLICY IDENTIFIER\n   - Unique policy ID (format: SP-YYYY-NNN)\n   - Policy title aligned with the vulnerability category\n\n")
	sb.WriteString("2. RISK STATEMENT\n   - Business impact in non-technical language\n   - Potential consequences if exploited\n   - Affected systems, data, and users\n\n")
	sb.WriteString("3. COMPLIANCE MAPPING\n   - Specific NIST CSF references (Function.Category format, e.g., PR.DS-5)\n   - Specific ISO 27001 Annex A controls (e.g., A.14.2.5)\n   - Relevant industry standards (OWASP, CWE)\n\n")
	sb.WriteString("4. POLICY REQUIREMENTS\n   - Clear security controls to implement, with code examples using modern frameworks\n   - Technical and procedural requirements\n   - Success criteria and validation methods, including a code review checklist\n\n")
	fmt.Fprintf(&sb, "5. REMEDIATION PLAN\n   - Specific technical actions required\n   - Responsible party: %s\n   - Timeline: %s\n   - Verification steps (code review, re-scan, regression test)\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("6. MONITORING AND DETECTION\n   - How to detect similar vulnerabilities in the future, including CI/CD scanner configuration\n   - Logging and alerting requirements\n\n")
	sb.WriteString("FORMAT REQUIREMENTS:\n- Use clear section headers\n- Professional tone suitable for compliance audits\n- Concrete, actionable language\n- Maximum length: 400-500 words\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func advancedSASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a comprehensive security policy for a SECURITY ENGINEER with deep security expertise.\n\n")
	sb.WriteString(sastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nSkip basic explanations and code walkthroughs. Produce a control-centric policy section covering:\n\n")
	sb.WriteString("1. RISK ANALYSIS\n   - CVSS v3.1 vector estimate with per-metric reasoning\n   - Attack chain and relevant MITRE ATT&CK techniques\n\n")
	sb.WriteString("2. COMPLIANCE MAPPING\n   - For each NIST CSF control cited: function, category, implementation requirement, audit evidence\n   - For each ISO 27001 Annex A control cited: objective and implementation guidance\n\n")
	sb.WriteString("3. DEFENSE-IN-DEPTH\n   - Prevention at code, framework, and infrastructure layers\n   - Detection: SIEM correlation rules, WAF signatures, log patterns to alert on\n   - Response: containment, investigation, and recovery steps if exploited\n\n")
	fmt.Fprintf(&sb, "4. REMEDIATION STRATEGIES\n   - At least two options with security/complexity trade-offs and a recommendation\n   - Accountable owner: %s; remediation window: %s\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("5. METRICS\n   - Success criteria, detection SLAs, and the scanner gate that proves non-regression\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

// -- SCA Templates --

func beginnerSCAPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a beginner-friendly security policy for updating a vulnerable dependency.\n\n")
	sb.WriteString(scaDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nWrite a policy section that:\n")
	sb.WriteString("- Explains what package dependencies are and why this one is used.\n")
	sb.WriteString("- Explains in simple terms why the current version is dangerous.\n")
	sb.WriteString("- Gives step-by-step update commands for the package manager, with before/after manifest examples.\n")
	sb.WriteString("- Explains how to verify the update worked and that the application still runs.\n")
	sb.WriteString("- Lists learning resources about the advisory and dependency management.\n\n")
	sb.WriteString("Structure the response with these sections:\n")
	sb.WriteString("## Understanding Package Dependencies\n## How to Fix It\n## Testing Your Update\n## Learn More\n## Compliance\n## Timeline\n\n")
	sb.WriteString("In the Compliance section, cite the specific NIST CSF and ISO 27001 controls from the compliance requirements above.\n")
	fmt.Fprintf(&sb, "In the Timeline section, assign the update to the %s with a deadline of %s.\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func intermediateSCAPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a dependency update policy for a SENIOR DEVELOPER.\n\n")
	sb.WriteString(scaDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nGenerate a professional security policy section that includes:\n\n")
	sb.WriteString("1. POLICY IDENTIFIER\n   - Unique policy ID (format: SP-YYYY-NNN)\n\n")
	sb.WriteString("2. VULNERABILITY ASSESSMENT\n   - Advisory summary, affected version range, exploitability\n   - Business impact of leaving the dependency unpatched\n\n")
	sb.WriteString("3. COMPLIANCE MAPPING\n   - Specific NIST CSF references and ISO 27001 Annex A controls from the context above\n\n")
	sb.WriteString("4. REMEDIATION STRATEGY\n   - Exact upgrade path with migration steps (changelog review, lock file update, test run)\n   - Potential breaking changes to check for\n   - Automated scanning integration to prevent regression (dependency audit in CI)\n\n")
	fmt.Fprintf(&sb, "5. REMEDIATION PLAN\n   - Responsible party: %s\n   - Timeline: %s\n   - Verification: dependency scan shows the advisory resolved, test suite passes\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("FORMAT REQUIREMENTS:\n- Use clear section headers\n- Professional tone suitable for compliance audits\n- Maximum length: 400-500 words\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func advancedSCAPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a comprehensive supply chain security policy for a SECURITY ENGINEER.\n\n")
	sb.WriteString(scaDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nProduce a supply-chain-focused policy section covering:\n\n")
	sb.WriteString("1. THREAT INTELLIGENCE\n   - Advisory analysis: exploitation status, patch availability, attack surface (direct vs transitive)\n\n")
	sb.WriteString("2. SUPPLY CHAIN RISK\n   - Package trust assessment and dependency chain exposure\n   - SBOM entry for the affected component\n\n")
	sb.WriteString("3. COMPLIANCE MAPPING\n   - NIST CSF and ISO 27001 controls from the context above with evidence requirements\n\n")
	sb.WriteString("4. REMEDIATION OPTIONS\n   - Direct update, alternative package, or temporary mitigation with monitoring; trade-offs and a recommendation\n")
	fmt.Fprintf(&sb, "   - Accountable owner: %s; remediation window: %s\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("5. CONTINUOUS MONITORING\n   - CI/CD dependency scanning gates and alerting for newly published advisories\n   - Incident response steps if exploitation is detected before the patch lands\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

// -- DAST Templates --

func beginnerDASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a beginner-friendly web security policy.\n\n")
	sb.WriteString(dastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nWrite a policy section that:\n")
	sb.WriteString("- Explains what this web vulnerability is in simple terms.\n")
	sb.WriteString("- Explains why it is dangerous on a website, with an example of what an attacker could do.\n")
	sb.WriteString("- Describes the current insecure behavior and gives step-by-step instructions to fix it.\n")
	sb.WriteString("- Shows a before/after configuration or code example for a common web framework.\n")
	sb.WriteString("- Explains how to manually re-test the endpoint, including with browser developer tools.\n\n")
	sb.WriteString("Structure the response with these sections:\n")
	sb.WriteString("## Understanding Web Security\n## How to Fix It\n## Testing Your Fix\n## Learn More\n## Compliance\n## Timeline\n\n")
	sb.WriteString("In the Compliance section, cite the specific NIST CSF and ISO 27001 controls from the compliance requirements above.\n")
	fmt.Fprintf(&sb, "In the Timeline section, assign the fix to the %s with a deadline of %s.\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func intermediateDASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a web application security policy for a SENIOR DEVELOPER.\n\n")
	sb.WriteString(dastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nGenerate a professional security policy section that includes:\n\n")
	sb.WriteString("1. POLICY IDENTIFIER\n   - Unique policy ID (format: SP-YYYY-NNN)\n\n")
	sb.WriteString("2. VULNERABILITY ANALYSIS\n   - Attack vector for this endpoint and method\n   - Business impact if exploited\n\n")
	sb.WriteString("3. COMPLIANCE MAPPING\n   - Specific NIST CSF references and ISO 27001 Annex A controls from the context above\n\n")
	sb.WriteString("4. TECHNICAL REMEDIATION\n   - Web framework configuration and required security headers\n   - Implementation example for the affected endpoint\n   - WAF rule as an interim mitigation where applicable\n\n")
	fmt.Fprintf(&sb, "5. REMEDIATION PLAN\n   - Responsible party: %s\n   - Timeline: %s\n   - Verification: re-run the dynamic scan against the endpoint and confirm the alert is gone\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("FORMAT REQUIREMENTS:\n- Use clear section headers\n- Professional tone suitable for compliance audits\n- Maximum length: 400-500 words\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}

func advancedDASTPrompt(rec schemas.VulnerabilityRecord, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Generate a comprehensive web security policy for a SECURITY ENGINEER.\n\n")
	sb.WriteString(dastDetails(rec))
	sb.WriteString("\n")
	sb.WriteString(complianceBlock(contextBlock))
	sb.WriteString("\n\n")
	sb.WriteString(taskHeader())
	sb.WriteString("\nProduce a defense-in-depth policy section covering:\n\n")
	sb.WriteString("1. THREAT ASSESSMENT\n   - Attack surface of the endpoint, required attacker skill, known tooling\n\n")
	sb.WriteString("2. COMPLIANCE MAPPING\n   - NIST CSF and ISO 27001 controls from the context above with evidence requirements\n\n")
	sb.WriteString("3. LAYERED DEFENSES\n   - Application code controls\n   - WAF rule for this attack pattern\n   - Network controls (rate limiting, IP reputation) where relevant\n   - Detection: log patterns and SIEM correlation rule for exploitation attempts\n\n")
	fmt.Fprintf(&sb, "4. RESPONSE AND REMEDIATION\n   - Incident response indicators and playbook outline\n   - Accountable owner: %s; remediation window: %s\n\n", RemediationOwner(rec.Severity), RemediationDeadline(rec.Severity))
	sb.WriteString("5. VALIDATION\n   - Automated re-test of the endpoint and detection SLAs\n\n")
	sb.WriteString("Generate the policy section now:")
	return sb.String()
}
