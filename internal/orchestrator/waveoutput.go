package orchestrator

import (
	"strconv"
	"strings"
	"time"

	"researchrun/internal/citations"
	"researchrun/internal/model"
)

// Retryable wave_output_validate failure codes (spec.md §4.9).
const (
	CodeMissingRequiredSection = "MISSING_REQUIRED_SECTION"
	CodeTooManyWords           = "TOO_MANY_WORDS"
	CodeMalformedSources       = "MALFORMED_SOURCES"
	CodeTooManySources         = "TOO_MANY_SOURCES"
)

var retryableWaveOutputCodes = map[string]bool{
	CodeMissingRequiredSection: true,
	CodeTooManyWords:           true,
	CodeMalformedSources:       true,
	CodeTooManySources:         true,
}

// sourcesHeading is the markdown heading a wave output's source list lives
// under, mirroring the "## Scope Contract" convention in gates.EvaluateA.
const sourcesHeading = "## Sources"

// validateWaveOutput checks one perspective's markdown output against its
// prompt contract, returning the sidecar plus the first retryable failure
// code found (empty if the output is clean). Section/word/source checks
// run in that order so the sidecar always reports every missing section at
// once, but only the first-encountered class of violation is treated as
// the retry code (spec.md names the codes as alternatives, not a combined
// failure).
func validateWaveOutput(p model.Perspective, outputMD, promptDigest string) (model.WaveOutputSidecar, string) {
	sidecar := model.WaveOutputSidecar{
		PerspectiveID: p.ID,
		AgentType:     p.AgentType,
		OutputMD:      outputMD,
		PromptDigest:  promptDigest,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	var missing []string
	for _, section := range p.PromptContract.MustIncludeSections {
		if !strings.Contains(outputMD, section) {
			missing = append(missing, section)
		}
	}
	sidecar.MissingSections = missing
	if len(missing) > 0 {
		return sidecar, CodeMissingRequiredSection
	}

	if p.PromptContract.MaxWords > 0 {
		words := len(strings.Fields(outputMD))
		if words > p.PromptContract.MaxWords {
			return sidecar, CodeTooManyWords
		}
	}

	if strings.Contains(outputMD, sourcesHeading) {
		section := extractSourcesSection(outputMD)
		urls := citations.ExtractURLs(section)
		if len(urls) == 0 {
			return sidecar, CodeMalformedSources
		}
		if p.PromptContract.MaxSources > 0 && len(urls) > p.PromptContract.MaxSources {
			return sidecar, CodeTooManySources
		}
	}

	return sidecar, ""
}

func extractSourcesSection(markdown string) string {
	idx := strings.Index(markdown, sourcesHeading)
	if idx < 0 {
		return ""
	}
	rest := markdown[idx+len(sourcesHeading):]
	if next := strings.Index(rest, "\n## "); next >= 0 {
		rest = rest[:next]
	}
	return rest
}

func changeNoteFor(code string, attempt int) string {
	return code + ": retry attempt " + strconv.Itoa(attempt)
}
