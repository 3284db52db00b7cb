package torznab

import (
	"context"
	"sync"
	"time"
)

type searchTaskResult struct {
	indexer Indexer
	results []SearchResult
	err     error
}

// SearchAll queries every eligible indexer concurrently and collects each
// outcome independently, so one indexer's failure never aborts the others.
// Indexers must be enabled, torrent-protocol and search-capable; an optional
// ID filter restricts the set further; snoozed indexers are skipped.
func (c *Client) SearchAll(ctx context.Context, query string, indexerFilter []int64) (*SearchOutcome, error) {
	indexers, err := c.ListIndexers(ctx)
	if err != nil {
		return nil, err
	}

	filter := make(map[int64]bool, len(indexerFilter))
	for _, id := range indexerFilter {
		filter[id] = true
	}

	outcome := &SearchOutcome{}
	eligible := make([]Indexer, 0, len(indexers))
	for _, idx := range indexers {
		if !idx.Enable || idx.Protocol != "torrent" || !idx.SupportsSearch() {
			continue
		}
		if len(filter) > 0 && !filter[idx.ID] {
			continue
		}
		if c.snoozed(ctx, idx.ID) {
			outcome.Skipped++
			c.logger.Debug().
				Int64("indexerId", idx.ID).
				Str("indexer", idx.Name).
				Msg("skipping snoozed indexer")
			continue
		}
		eligible = append(eligible, idx)
	}

	if len(eligible) == 0 {
		return outcome, nil
	}

	var wg sync.WaitGroup
	resultsChan := make(chan searchTaskResult, len(eligible))

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	for _, idx := range eligible {
		wg.Add(1)
		go func(idx Indexer) {
			defer wg.Done()
			results, err := c.searchIndexer(searchCtx, idx, query)
			resultsChan <- searchTaskResult{indexer: idx, results: results, err: err}
		}(idx)
	}

	wg.Wait()
	close(resultsChan)

	for task := range resultsChan {
		outcome.IndexersUsed++
		if task.err != nil {
			outcome.Errors = append(outcome.Errors, IndexerError{
				IndexerID: task.indexer.ID,
				Indexer:   task.indexer.Name,
				Error:     task.err.Error(),
			})
			continue
		}
		outcome.Results = append(outcome.Results, task.results...)
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(outcome.Results)).
		Int("indexersUsed", outcome.IndexersUsed).
		Int("skipped", outcome.Skipped).
		Int("errors", len(outcome.Errors)).
		Msg("search fan-out completed")

	return outcome, nil
}

const (
	maxDownloadRetries = 3
	downloadRetryDelay = 5 * time.Second
	downloadBudget     = 45 * time.Second
)

// DownloadTorrent fetches one candidate's metadata file. Magnet links and
// 429 responses fail permanently; other failures retry with a fixed delay
// as long as the next attempt would still start within the overall budget.
func (c *Client) DownloadTorrent(ctx context.Context, link string) ([]byte, error) {
	if isMagnet(link) {
		return nil, ErrMagnetLink
	}

	deadline := c.now().Add(downloadBudget)

	var lastErr error
	for attempt := 0; attempt <= maxDownloadRetries; attempt++ {
		data, retryAfter, err := c.fetchTorrent(ctx, link)
		if err == nil {
			return data, nil
		}
		if isPermanent(err) {
			return nil, err
		}
		lastErr = err

		delay := c.retryDelay
		if retryAfter > delay {
			delay = retryAfter
		}
		if c.now().Add(delay).After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *Client) fetchTorrent(ctx context.Context, link string) ([]byte, time.Duration, error) {
	resp, err := c.do(ctx, "GET", relativePath(c.baseURL, link))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 429:
		return nil, 0, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var retryAfter time.Duration
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
			retryAfter = d
		}
		return nil, retryAfter, &httpError{status: resp.StatusCode}
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, 0, err
	}
	if isMagnetPayload(data) {
		return nil, 0, ErrMagnetLink
	}
	return data, 0, nil
}
