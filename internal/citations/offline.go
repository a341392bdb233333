package citations

import "researchrun/internal/model"

// OfflineFixtures maps normalized_url to a pre-recorded citation record,
// used when sensitivity=no_web or in dry-run/offline test modes (spec.md
// §4.7).
type OfflineFixtures map[string]model.Citation

// ValidateOffline looks up normalizedURL in fixtures; an absent entry
// yields status=invalid with the note the spec specifies verbatim.
func ValidateOffline(fixtures OfflineFixtures, urlOriginal, normalizedURL string) model.Citation {
	if c, ok := fixtures[normalizedURL]; ok {
		c.NormalizedURL = normalizedURL
		c.URLOriginal = urlOriginal
		c.CID = Fingerprint(normalizedURL)
		return c
	}
	return model.Citation{
		NormalizedURL: normalizedURL,
		CID:           Fingerprint(normalizedURL),
		URLOriginal:   urlOriginal,
		Status:        model.CitationInvalid,
		Notes:         "offline fixture not found",
	}
}
