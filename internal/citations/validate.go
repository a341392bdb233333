package citations

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"researchrun/internal/model"
)

const maxBodyBytes = 2 << 20 // 2 MiB, per spec.md §4.7
const maxRedirectHops = 5

// Endpoint is a fallback citation-validation service (bright-data or
// apify) invoked with {url, ladder_step} and expected to return a
// citation.v1-shaped response.
type Endpoint interface {
	Validate(ctx context.Context, normalizedURL string, ladderStep string) (*model.Citation, error)
}

// Ladder runs the three-step online validation ladder for one normalized
// URL: SSRF preflight, direct HTTP fetch, then configured fallback
// endpoints (spec.md §4.7).
type Ladder struct {
	Client    *http.Client
	Endpoints []Endpoint // bright-data first, then apify
	DryRun    bool
}

// NewLadder builds a Ladder with the spec's default 5s per-step timeout.
func NewLadder(endpoints ...Endpoint) *Ladder {
	return &Ladder{
		Client:    &http.Client{Timeout: 5 * time.Second},
		Endpoints: endpoints,
	}
}

// Validate runs the ladder for one URL, returning a fully populated
// Citation. On total failure, status is "blocked" with an attempt trace in
// Notes.
func (l *Ladder) Validate(ctx context.Context, urlOriginal, normalizedURL string) model.Citation {
	cid := Fingerprint(normalizedURL)
	base := model.Citation{
		NormalizedURL: normalizedURL,
		CID:           cid,
		URL:           Redact(normalizedURL),
		URLOriginal:   urlOriginal,
		CheckedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if l.DryRun {
		base.Status = model.CitationBlocked
		base.FoundBy = []string{}
		base.Notes = "dry run: all ladder steps skipped"
		return base
	}

	var trace []string

	if err := Preflight(normalizedURL); err != nil {
		base.Status = model.CitationInvalid
		base.Notes = "ssrf_preflight: " + err.Error()
		return base
	}
	trace = append(trace, "ssrf_preflight:ok")

	if c, ok := l.directFetch(ctx, normalizedURL, base); ok {
		c.FoundBy = append([]string{"direct_fetch"}, c.FoundBy...)
		return c
	}
	trace = append(trace, "direct_fetch:failed")

	stepNames := []string{"bright_data", "apify"}
	for i, ep := range l.Endpoints {
		step := "apify"
		if i < len(stepNames) {
			step = stepNames[i]
		}
		result, err := ep.Validate(ctx, normalizedURL, step)
		if err != nil || result == nil || result.Status == model.CitationBlocked {
			trace = append(trace, step+":failed")
			continue
		}
		result.NormalizedURL = normalizedURL
		result.CID = cid
		result.URLOriginal = urlOriginal
		result.URL = Redact(normalizedURL)
		result.CheckedAt = base.CheckedAt
		result.FoundBy = append([]string{step}, result.FoundBy...)
		return *result
	}

	base.Status = model.CitationBlocked
	base.FoundBy = []string{}
	base.Notes = "all ladder steps failed: " + strings.Join(trace, ", ")
	return base
}

func (l *Ladder) directFetch(ctx context.Context, normalizedURL string, base model.Citation) (model.Citation, bool) {
	current := normalizedURL
	for hop := 0; hop <= maxRedirectHops; hop++ {
		if err := Preflight(current); err != nil {
			return model.Citation{}, false
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return model.Citation{}, false
		}
		req.Header.Set("User-Agent", "researchrun-citation-validator/1.0")

		client := l.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		noRedirectClient := &http.Client{
			Timeout: client.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		resp, err := noRedirectClient.Do(req)
		if err != nil {
			return model.Citation{}, false
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return model.Citation{}, false
			}
			current = location
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()

		status, httpStatus := classifyHTTPStatus(resp.StatusCode)
		base.Status = status
		base.HTTPStatus = &httpStatus
		if status == model.CitationValid {
			base.Title, base.EvidenceSnippet = extractTitleAndSnippet(string(body))
		}
		return base, true
	}
	return model.Citation{}, false
}

func classifyHTTPStatus(code int) (model.CitationStatus, int) {
	switch {
	case code >= 200 && code < 300:
		return model.CitationValid, code
	case code == 401 || code == 402 || code == 403 || code == 451:
		return model.CitationPaywalled, code
	case code == 404 || code == 410:
		return model.CitationInvalid, code
	default:
		return model.CitationBlocked, code
	}
}

func extractTitleAndSnippet(body string) (title, snippet string) {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	inTitle := false
	var textChunks []string

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle && title == "" {
				title = text
				inTitle = false
				continue
			}
			if len(textChunks) < 3 {
				textChunks = append(textChunks, text)
			}
		}
		if title != "" && len(textChunks) >= 3 {
			break
		}
	}

	snippet = strings.Join(textChunks, " ")
	if len(snippet) > 280 {
		snippet = snippet[:280]
	}
	return title, snippet
}
