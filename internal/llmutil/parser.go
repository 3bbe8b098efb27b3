// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// codeBlockRegex extracts content wrapped in markdown fences, supporting language tags (markdown, text, etc.).
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

	// nistControlRegex matches CSF subcategory ids such as PR.AC-4 or DE.CM-7.
	nistControlRegex = regexp.MustCompile(`\b[A-Z]{2}\.[A-Z]{2}-\d{1,2}\b`)
	// isoControlRegex matches Annex A ids with two or three numeric segments,
	// such as A.14.2 or A.14.2.5.
	isoControlRegex = regexp.MustCompile(`\bA\.\d{1,2}(?:\.\d{1,2}){1,2}\b`)
)

// CleanPolicyOutput removes markdown artifacts from a generated policy.
// Models frequently wrap the whole document in a fenced block even when
// asked not to; the policy itself must never carry the fence.
func CleanPolicyOutput(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		matches := codeBlockRegex.FindStringSubmatch(content)
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

// ExtractNISTControls returns the NIST CSF subcategory ids cited in text,
// deduplicated in order of first appearance.
func ExtractNISTControls(text string) []string {
	return dedupe(nistControlRegex.FindAllString(text, -1))
}

// ExtractISOControls returns the ISO 27001 Annex A control ids cited in
// text, deduplicated in order of first appearance.
func ExtractISOControls(text string) []string {
	return dedupe(isoControlRegex.FindAllString(text, -1))
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
