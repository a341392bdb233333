package pivot

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"researchrun/internal/model"
	"researchrun/internal/toolsurface"
)

var gapLineRe = regexp.MustCompile(`^-\s*\((P[0-3])\)\s*(.+)$`)
var tagRe = regexp.MustCompile(`#(\w+)`)

// ParseGapsSection extracts gap entries from a wave-1 output's "## Gaps"
// markdown section. Lines not shaped "- (P[0-3]) <text>" are ignored.
// gap_id is "gap_<perspectiveID>_<ordinal>" (spec.md §4.6).
func ParseGapsSection(perspectiveID, outputMD string) ([]model.Gap, error) {
	scanner := bufio.NewScanner(strings.NewReader(outputMD))
	inGaps := false
	var gaps []model.Gap
	ordinal := 0

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && strings.EqualFold(strings.TrimLeft(trimmed, "# "), "gaps") {
			inGaps = true
			continue
		}
		if inGaps && strings.HasPrefix(trimmed, "#") {
			break
		}
		if !inGaps {
			continue
		}

		m := gapLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		ordinal++
		tags := extractTags(m[2])
		gaps = append(gaps, model.Gap{
			GapID:    fmt.Sprintf("gap_%s_%d", perspectiveID, ordinal),
			Priority: model.GapPriority(m[1]),
			Text:     m[2],
			Tags:     tags,
			Source:   model.GapSourceParsedWave1,
		})
	}

	if !inGaps {
		return nil, toolsurface.NewError(toolsurface.CodeGapsSectionNotFound,
			"perspective "+perspectiveID+" output has no Gaps section", nil)
	}
	return gaps, nil
}

func extractTags(text string) []string {
	matches := tagRe.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}
