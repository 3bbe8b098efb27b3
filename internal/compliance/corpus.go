// Package compliance provides the retrieval side of policy generation: a
// deterministic in-process index over NIST CSF and ISO 27001 control texts,
// and a coverage analyzer for tracked policies.
package compliance

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/securai/api/schemas"
)

// Document is one indexed compliance chunk: a framework control or category
// with its descriptive text.
type Document struct {
	ID        string
	Name      string
	Framework schemas.Framework
	Text      string
}

// chunkHeaderRE matches the "ID - Name" header line that starts a chunk in
// external corpus files. NIST ids look like PR.AC or PR.AC-4, ISO ids like
// A.9 or A.9.4.1.
var chunkHeaderRE = regexp.MustCompile(`^([A-Z]{2}\.[A-Z]{2}(?:-\d+)?|A\.\d+(?:\.\d+)*)\s*-\s*(.+)$`)

// nistIDRE distinguishes NIST CSF identifiers from ISO ones.
var nistIDRE = regexp.MustCompile(`^[A-Z]{2}\.[A-Z]{2}`)

// builtinCorpus seeds the index so retrieval works out of the box. NIST CSF
// entries are category-level summaries; ISO 27001 entries are the Annex A
// controls most relevant to application security findings.
var builtinCorpus = []Document{
	// NIST Cybersecurity Framework v1.1 categories.
	{"ID.AM", "Asset Management", schemas.FrameworkNISTCSF,
		"The data, personnel, devices, systems, and facilities that enable the organization to achieve business purposes are identified and managed. Software platforms and applications are inventoried, data flows are mapped, and resources are prioritized by classification and business value."},
	{"ID.BE", "Business Environment", schemas.FrameworkNISTCSF,
		"The organization's mission, objectives, stakeholders, and activities are understood and prioritized. Dependencies and critical functions for delivery of services are established, and resilience requirements are set for all operating states."},
	{"ID.GV", "Governance", schemas.FrameworkNISTCSF,
		"The policies, procedures, and processes to manage and monitor the organization's regulatory, legal, risk, environmental, and operational requirements are understood. Organizational security policy is established and communicated, and governance processes address cybersecurity risk."},
	{"ID.RA", "Risk Assessment", schemas.FrameworkNISTCSF,
		"The organization understands the cybersecurity risk to operations, assets, and individuals. Asset vulnerabilities are identified and documented, threat intelligence is received from information sharing forums, threats are identified, potential business impacts are analyzed, and risk responses are prioritized."},
	{"ID.RM", "Risk Management Strategy", schemas.FrameworkNISTCSF,
		"The organization's priorities, constraints, risk tolerances, and assumptions are established and used to support operational risk decisions. Risk management processes are agreed to by organizational stakeholders and risk tolerance is informed by the organization's role in critical infrastructure."},
	{"ID.SC", "Supply Chain Risk Management", schemas.FrameworkNISTCSF,
		"Supply chain risk management processes are identified, established, assessed, and managed. Suppliers and third-party partners of information systems, components, and services are identified, assessed with audits and testing, and held to contractual security obligations. Third-party software dependencies and their known vulnerabilities are evaluated before adoption."},
	{"PR.AC", "Identity Management, Authentication and Access Control", schemas.FrameworkNISTCSF,
		"Access to physical and logical assets is limited to authorized users, processes, and devices. Identities and credentials are issued, managed, verified, revoked, and audited. Access permissions are managed with least privilege and separation of duties, network integrity is protected through segmentation, and users, devices, and other assets are authenticated commensurate with the risk of the transaction, including multi-factor authentication."},
	{"PR.AT", "Awareness and Training", schemas.FrameworkNISTCSF,
		"The organization's personnel and partners are provided cybersecurity awareness education and are trained to perform their information security duties. Privileged users, senior executives, and physical and cybersecurity personnel understand their roles and responsibilities, including secure coding training for developers."},
	{"PR.DS", "Data Security", schemas.FrameworkNISTCSF,
		"Information and records are managed consistent with the organization's risk strategy to protect confidentiality, integrity, and availability. Data at rest and data in transit are protected with encryption, protections against data leaks are implemented, integrity checking mechanisms verify software and information, and development and testing environments are separated from production."},
	{"PR.IP", "Information Protection Processes and Procedures", schemas.FrameworkNISTCSF,
		"Security policies, processes, and procedures are maintained and used to manage protection of systems and assets. A baseline configuration is created and maintained, a system development life cycle with secure development practices is implemented, configuration change control processes are in place, backups are conducted and tested, and a vulnerability management plan is developed and implemented."},
	{"PR.MA", "Maintenance", schemas.FrameworkNISTCSF,
		"Maintenance and repairs of industrial control and information system components are performed consistent with policies and procedures, with approved and logged tools. Remote maintenance is approved, logged, and performed in a manner that prevents unauthorized access."},
	{"PR.PT", "Protective Technology", schemas.FrameworkNISTCSF,
		"Technical security solutions are managed to ensure the security and resilience of systems. Audit and log records are determined, documented, implemented, and reviewed, removable media is protected, the principle of least functionality is enforced by disabling unneeded services, and communications and control networks are protected."},
	{"DE.AE", "Anomalies and Events", schemas.FrameworkNISTCSF,
		"Anomalous activity is detected and the potential impact of events is understood. A baseline of network operations and expected data flows is established, detected events are analyzed to understand attack targets and methods, event data are collected and correlated from multiple sources, and incident alert thresholds are established."},
	{"DE.CM", "Security Continuous Monitoring", schemas.FrameworkNISTCSF,
		"The information system and assets are monitored to identify cybersecurity events and verify the effectiveness of protective measures. The network is monitored for unauthorized connections and malicious code, personnel activity is monitored for unauthorized access, vulnerability scans are performed, and monitoring covers external service providers and unauthorized software."},
	{"DE.DP", "Detection Processes", schemas.FrameworkNISTCSF,
		"Detection processes and procedures are maintained and tested to ensure awareness of anomalous events. Roles and responsibilities for detection are well defined, detection activities comply with applicable requirements, detection processes are tested, and event detection information is communicated."},
	{"RS.RP", "Response Planning", schemas.FrameworkNISTCSF,
		"Response processes and procedures are executed and maintained to ensure response to detected cybersecurity incidents. The response plan is executed during or after an incident."},
	{"RS.CO", "Communications", schemas.FrameworkNISTCSF,
		"Response activities are coordinated with internal and external stakeholders. Personnel know their roles and order of operations when a response is needed, incidents are reported consistent with established criteria, and information is shared with stakeholders and voluntarily with external parties to achieve broader situational awareness."},
	{"RS.AN", "Analysis", schemas.FrameworkNISTCSF,
		"Analysis is conducted to ensure effective response and support recovery activities. Notifications from detection systems are investigated, the impact of incidents is understood, forensics are performed, incidents are categorized consistent with response plans, and processes are established to receive and analyze vulnerability disclosures."},
	{"RS.MI", "Mitigation", schemas.FrameworkNISTCSF,
		"Activities are performed to prevent expansion of an event, mitigate its effects, and resolve the incident. Incidents are contained and mitigated, and newly identified vulnerabilities are mitigated or documented as accepted risks."},
	{"RS.IM", "Improvements", schemas.FrameworkNISTCSF,
		"Organizational response activities are improved by incorporating lessons learned from current and previous detection and response activities. Response plans incorporate lessons learned and response strategies are updated."},
	{"RC.RP", "Recovery Planning", schemas.FrameworkNISTCSF,
		"Recovery processes and procedures are executed and maintained to ensure restoration of systems or assets affected by cybersecurity incidents. The recovery plan is executed during or after a cybersecurity incident."},
	{"RC.IM", "Recovery Improvements", schemas.FrameworkNISTCSF,
		"Recovery planning and processes are improved by incorporating lessons learned into future activities. Recovery plans incorporate lessons learned and recovery strategies are updated."},
	{"RC.CO", "Recovery Communications", schemas.FrameworkNISTCSF,
		"Restoration activities are coordinated with internal and external parties. Public relations are managed, reputation is repaired after an incident, and recovery activities are communicated to internal and external stakeholders and executive and management teams."},

	// ISO/IEC 27001:2013 Annex A controls relevant to application findings.
	{"A.5.1.1", "Policies for information security", schemas.FrameworkISO27001,
		"A set of policies for information security shall be defined, approved by management, published, and communicated to employees and relevant external parties. Policies establish management direction and support for information security."},
	{"A.6.1.2", "Segregation of duties", schemas.FrameworkISO27001,
		"Conflicting duties and areas of responsibility shall be segregated to reduce opportunities for unauthorized or unintentional modification or misuse of the organization's assets."},
	{"A.8.1.1", "Inventory of assets", schemas.FrameworkISO27001,
		"Assets associated with information and information processing facilities shall be identified, and an inventory of these assets shall be drawn up and maintained, including software components and third-party libraries."},
	{"A.9.1.2", "Access to networks and network services", schemas.FrameworkISO27001,
		"Users shall only be provided with access to the network and network services that they have been specifically authorized to use. Unauthorized network access paths must be controlled."},
	{"A.9.2.3", "Management of privileged access rights", schemas.FrameworkISO27001,
		"The allocation and use of privileged access rights shall be restricted and controlled. Privileged accounts are allocated on a need-to-use basis, tracked, and reviewed regularly."},
	{"A.9.4.1", "Information access restriction", schemas.FrameworkISO27001,
		"Access to information and application system functions shall be restricted in accordance with the access control policy. Applications enforce authorization on every request and restrict access to data and functions by role."},
	{"A.9.4.2", "Secure log-on procedures", schemas.FrameworkISO27001,
		"Where required by the access control policy, access to systems and applications shall be controlled by a secure log-on procedure. Authentication does not disclose credentials, resists brute force attempts, and protects session identifiers from hijacking and fixation."},
	{"A.9.4.3", "Password management system", schemas.FrameworkISO27001,
		"Password management systems shall be interactive and shall ensure quality passwords. Passwords are stored and transmitted in protected hashed form, never hardcoded in source code or configuration."},
	{"A.10.1.1", "Policy on the use of cryptographic controls", schemas.FrameworkISO27001,
		"A policy on the use of cryptographic controls for protection of information shall be developed and implemented. Strong, current algorithms and key lengths are mandated; weak or deprecated ciphers, hash functions, and insecure random number generation are prohibited."},
	{"A.10.1.2", "Key management", schemas.FrameworkISO27001,
		"A policy on the use, protection, and lifetime of cryptographic keys shall be developed and implemented through their whole lifecycle. Keys and secrets are generated, stored, distributed, and retired securely, never embedded in code."},
	{"A.12.1.2", "Change management", schemas.FrameworkISO27001,
		"Changes to the organization, business processes, information processing facilities, and systems that affect information security shall be controlled through a formal change management process."},
	{"A.12.1.4", "Separation of development, testing and operational environments", schemas.FrameworkISO27001,
		"Development, testing, and operational environments shall be separated to reduce the risks of unauthorized access or changes to the operational environment. Production data and credentials are not used in development."},
	{"A.12.4.1", "Event logging", schemas.FrameworkISO27001,
		"Event logs recording user activities, exceptions, faults, and information security events shall be produced, kept, and regularly reviewed. Security-relevant application events such as authentication failures and access control violations are logged."},
	{"A.12.6.1", "Management of technical vulnerabilities", schemas.FrameworkISO27001,
		"Information about technical vulnerabilities of information systems being used shall be obtained in a timely fashion, the organization's exposure to such vulnerabilities evaluated, and appropriate measures taken to address the associated risk, including timely patching and dependency upgrades."},
	{"A.13.1.1", "Network controls", schemas.FrameworkISO27001,
		"Networks shall be managed and controlled to protect information in systems and applications, including segregation, restriction of connection capability, and protection of data traversing public networks."},
	{"A.13.2.3", "Electronic messaging", schemas.FrameworkISO27001,
		"Information involved in electronic messaging shall be appropriately protected against unauthorized access, modification, and denial of service."},
	{"A.14.1.2", "Securing application services on public networks", schemas.FrameworkISO27001,
		"Information involved in application services passing over public networks shall be protected from fraudulent activity, contract dispute, and unauthorized disclosure and modification. Web applications validate input, encode output, enforce transport encryption, and set protective security headers."},
	{"A.14.1.3", "Protecting application services transactions", schemas.FrameworkISO27001,
		"Information involved in application service transactions shall be protected to prevent incomplete transmission, misrouting, unauthorized message alteration, unauthorized disclosure, and unauthorized message duplication or replay."},
	{"A.14.2.1", "Secure development policy", schemas.FrameworkISO27001,
		"Rules for the development of software and systems shall be established and applied to developments within the organization. Secure coding standards address injection flaws, cross-site scripting, insecure deserialization, and the handling of untrusted input."},
	{"A.14.2.5", "Secure system engineering principles", schemas.FrameworkISO27001,
		"Principles for engineering secure systems shall be established, documented, maintained, and applied to any information system implementation efforts, including defense in depth, secure defaults, least privilege, and input validation at trust boundaries."},
	{"A.14.2.8", "System security testing", schemas.FrameworkISO27001,
		"Testing of security functionality shall be carried out during development. Static analysis, dependency scanning, and dynamic application security testing are integrated into the development lifecycle and findings are remediated before release."},
	{"A.14.3.1", "Protection of test data", schemas.FrameworkISO27001,
		"Test data shall be selected carefully, protected, and controlled. Production data containing personal or sensitive information is not copied into test environments without protection."},
	{"A.15.1.1", "Information security policy for supplier relationships", schemas.FrameworkISO27001,
		"Information security requirements for mitigating the risks associated with supplier access to the organization's assets shall be agreed with the supplier and documented, including requirements on third-party software components."},
	{"A.16.1.1", "Responsibilities and procedures", schemas.FrameworkISO27001,
		"Management responsibilities and procedures shall be established to ensure a quick, effective, and orderly response to information security incidents, including vulnerabilities reported in production applications."},
	{"A.16.1.4", "Assessment of and decision on information security events", schemas.FrameworkISO27001,
		"Information security events shall be assessed and it shall be decided if they are to be classified as information security incidents. Severity assessment considers exploitability and business impact."},
	{"A.18.1.3", "Protection of records", schemas.FrameworkISO27001,
		"Records shall be protected from loss, destruction, falsification, unauthorized access, and unauthorized release, in accordance with legislative, regulatory, contractual, and business requirements."},
	{"A.18.2.3", "Technical compliance review", schemas.FrameworkISO27001,
		"Information systems shall be regularly reviewed for compliance with the organization's information security policies and standards, including automated vulnerability scanning and penetration testing of operational systems."},
}

// BuiltinCorpus returns a copy of the seed corpus.
func BuiltinCorpus() []Document {
	docs := make([]Document, len(builtinCorpus))
	copy(docs, builtinCorpus)
	return docs
}

// LoadDirectory reads every *.txt file under dir and chunks it into
// documents. Files are visited in sorted order so the resulting corpus, and
// therefore the index, is identical across runs.
func LoadDirectory(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, ChunkText(string(content))...)
	}
	return docs, nil
}

// ChunkText splits corpus text into documents. Every line matching the
// "ID - Name" header contract starts a new chunk; following lines up to the
// next header form its text. Content before the first header is ignored.
func ChunkText(content string) []Document {
	var docs []Document
	var current *Document
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Text != "" {
			docs = append(docs, *current)
		}
		current = nil
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := chunkHeaderRE.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = &Document{
				ID:        m[1],
				Name:      strings.TrimSpace(m[2]),
				Framework: frameworkForID(m[1]),
			}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return docs
}

func frameworkForID(id string) schemas.Framework {
	if nistIDRE.MatchString(id) {
		return schemas.FrameworkNISTCSF
	}
	return schemas.FrameworkISO27001
}
