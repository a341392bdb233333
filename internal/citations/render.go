package citations

import (
	"fmt"
	"sort"
	"strings"

	"researchrun/internal/model"
)

// RenderMarkdown produces deterministic markdown for validated-citations.md:
// records sorted by (normalized_url, cid), one section per cid (spec.md
// §4.7).
func RenderMarkdown(records []model.Citation) string {
	sorted := make([]model.Citation, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NormalizedURL != sorted[j].NormalizedURL {
			return sorted[i].NormalizedURL < sorted[j].NormalizedURL
		}
		return sorted[i].CID < sorted[j].CID
	})

	var b strings.Builder
	b.WriteString("# Validated Citations\n\n")
	for _, c := range sorted {
		fmt.Fprintf(&b, "## %s\n\n", c.CID)
		fmt.Fprintf(&b, "- URL: %s\n", c.URL)
		fmt.Fprintf(&b, "- Status: %s\n", c.Status)
		if c.Title != "" {
			fmt.Fprintf(&b, "- Title: %s\n", c.Title)
		}
		if c.Publisher != "" {
			fmt.Fprintf(&b, "- Publisher: %s\n", c.Publisher)
		}
		b.WriteString("\n")
	}
	return b.String()
}
