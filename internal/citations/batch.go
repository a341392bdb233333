package citations

import (
	"context"

	"golang.org/x/sync/errgroup"

	"researchrun/internal/model"
)

// ValidateBatch runs the online ladder over urlToNormalized concurrently,
// bounded by maxConcurrency, since each URL's state transitions are
// independent (spec.md §5's concurrency model). Results are returned keyed
// by normalized URL.
func (l *Ladder) ValidateBatch(ctx context.Context, urlsOriginal map[string]string, maxConcurrency int) (map[string]model.Citation, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	results := make(map[string]model.Citation, len(urlsOriginal))
	resultCh := make(chan model.Citation, len(urlsOriginal))

	for normalizedURL, original := range urlsOriginal {
		normalizedURL, original := normalizedURL, original
		g.Go(func() error {
			resultCh <- l.Validate(ctx, original, normalizedURL)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resultCh)
	for c := range resultCh {
		results[c.NormalizedURL] = c
	}
	return results, nil
}
