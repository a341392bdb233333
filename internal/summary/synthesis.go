package summary

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"researchrun/internal/model"
)

// RequiredSynthesisHeadings mirrors gates.RequiredSynthesisHeadings; kept
// here too so synthesis writing and Gate E evaluation can be grounded on
// the same constant without an import cycle between the two packages.
var RequiredSynthesisHeadings = []string{"## Findings", "## Citations", "## Open Questions"}

var numericClaimRe = regexp.MustCompile(`\b\d[\d,.]*%?\b`)
var citationRefRe = regexp.MustCompile(`\[cid_[0-9a-f]{8,}\]`)

// WriteSynthesis composes draft-synthesis.md from the summary pack and the
// set of validated citations, producing a document with every heading
// Gate E requires.
func WriteSynthesis(pack *model.SummaryPack, citations []model.Citation) string {
	var b strings.Builder
	b.WriteString("# Synthesis\n\n")

	b.WriteString("## Findings\n\n")
	for _, entry := range pack.Entries {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", entry.PerspectiveID, entry.SummaryMD)
	}

	b.WriteString("## Citations\n\n")
	sorted := make([]model.Citation, len(citations))
	copy(sorted, citations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CID < sorted[j].CID })
	for _, c := range sorted {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", c.CID, c.URL, c.Status)
	}
	b.WriteString("\n")

	b.WriteString("## Open Questions\n\n")
	b.WriteString("- None identified.\n")

	return b.String()
}

// UncitedNumericClaims counts lines in the Findings section that contain a
// numeric token and no [cid_...] reference anywhere on the same line, the
// hard check behind Gate E's uncited_numeric_claims metric.
func UncitedNumericClaims(synthesisMD string) int {
	findings := extractSection(synthesisMD, "## Findings")
	count := 0
	for _, line := range strings.Split(findings, "\n") {
		if !numericClaimRe.MatchString(line) {
			continue
		}
		if !citationRefRe.MatchString(line) {
			count++
		}
	}
	return count
}

// CitationUtilization is the fraction of validated citations actually
// referenced ([cid_...]) somewhere in the synthesis markdown.
func CitationUtilization(synthesisMD string, citations []model.Citation) float64 {
	if len(citations) == 0 {
		return 1
	}
	referenced := 0
	for _, c := range citations {
		if strings.Contains(synthesisMD, "["+c.CID+"]") {
			referenced++
		}
	}
	return float64(referenced) / float64(len(citations))
}

// DuplicateCitationRate is the fraction of citation references in the
// synthesis that repeat a cid already referenced earlier in the document.
func DuplicateCitationRate(synthesisMD string) float64 {
	refs := citationRefRe.FindAllString(synthesisMD, -1)
	if len(refs) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(refs))
	duplicates := 0
	for _, ref := range refs {
		if seen[ref] {
			duplicates++
		}
		seen[ref] = true
	}
	return float64(duplicates) / float64(len(refs))
}

func extractSection(markdown, heading string) string {
	idx := strings.Index(markdown, heading)
	if idx < 0 {
		return ""
	}
	rest := markdown[idx+len(heading):]
	if next := strings.Index(rest, "\n## "); next >= 0 {
		rest = rest[:next]
	}
	return rest
}
