package scoring

// DefaultReference is the built-in golden policy used for quality scoring
// when the operator does not supply one. It deliberately exercises the full
// section vocabulary and security term lexicon so scores stay meaningful
// against arbitrary generated policies.
const DefaultReference = `SECURITY POLICY: APPLICATION VULNERABILITY REMEDIATION

Executive Summary:
This policy establishes the organization's baseline for remediating security
vulnerabilities discovered in applications and their dependencies. It covers
secure development practices, access control, encryption of sensitive data,
and continuous monitoring, and it maps remediation duties to compliance
requirements under NIST CSF and ISO 27001.

Purpose:
Reduce organizational risk by ensuring every confirmed vulnerability is
assessed, prioritized, and remediated within defined timeframes, with
verification and audit evidence retained.

Scope:
All production applications, services, and third-party dependencies, and all
personnel involved in their development, deployment, and operation.

Policy Statement:
The organization maintains a vulnerability management procedure that covers
identification, triage, remediation, and verification. Input validation and
output sanitization are mandatory for all externally supplied data to
prevent injection attacks including SQL injection, XSS, and CSRF. Secrets,
credentials, tokens, and session identifiers must never be hardcoded and
must be protected with strong encryption in transit (TLS/HTTPS) and at rest.

Risk Assessment:
Each vulnerability receives a severity rating reflecting exploitability and
impact on confidentiality, integrity, and availability. Critical findings
represent an immediate threat and require executive visibility.

Security Controls:
- Enforce authentication and authorization on every privileged operation,
  applying the principle of least privilege for permissions.
- Use parameterized queries and validated input handling in all data access.
- Apply vendor patch and update processes for vulnerable dependencies.
- Maintain firewall and network segmentation controls around exposed services.
- Enable centralized logging and security monitoring with alerting.

Implementation:
Development teams remediate findings per severity timeframes: critical
within 48 hours with escalation to the CTO, high within one week, medium
within two weeks, low within one month. Fixes require code review and a
passing security regression test before release.

Roles and Responsibilities:
Developers implement fixes and validation. Security leads triage findings,
verify remediation, and run detection tooling. Management ensures resourcing
and enforces this policy.

Compliance:
This policy supports NIST CSF functions Identify, Protect, Detect, Respond,
and Recover, and ISO 27001 Annex A controls for access control, operations
security, and system acquisition, development and maintenance.

Monitoring:
Security monitoring, audit logging, and periodic scans confirm that
remediated vulnerabilities do not recur. Incident response and recovery
procedures, including backup restoration, are tested quarterly.

Review:
This policy is reviewed annually and after any major security incident.

Enforcement:
Violations are handled through the corrective action process; repeated
prevention failures trigger mandatory secure development training.

References:
NIST Cybersecurity Framework; ISO/IEC 27001 Annex A; internal secure
development procedure; threat mitigation and prevention guidelines.
`
