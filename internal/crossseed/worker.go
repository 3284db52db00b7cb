package crossseed

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crossarr/crossarr/internal/bencode"
	"github.com/crossarr/crossarr/internal/cache"
	"github.com/crossarr/crossarr/internal/matcher"
	"github.com/crossarr/crossarr/internal/store"
	"github.com/crossarr/crossarr/internal/torrentclient"
	"github.com/crossarr/crossarr/internal/torznab"
)

// Search dispatches are paced no faster than this regardless of config.
const minSearchDelay = 10 * time.Second

// TorrentClient is the slice of the client API the worker needs.
type TorrentClient interface {
	Login(ctx context.Context) error
	ListTorrents(ctx context.Context) ([]torrentclient.Torrent, error)
	TorrentFiles(ctx context.Context, hash string) ([]torrentclient.TorrentFile, error)
	Properties(ctx context.Context, hash string) (torrentclient.TorrentProperties, error)
	AddTorrent(ctx context.Context, data []byte, opts torrentclient.AddOptions) error
	Start(ctx context.Context, hashes ...string) error
	Recheck(ctx context.Context, hashes ...string) error
	HashPresent(ctx context.Context, hash string) (bool, error)
}

// Searcher is the slice of the Torznab client the worker needs.
type Searcher interface {
	SearchAll(ctx context.Context, query string, indexerFilter []int64) (*torznab.SearchOutcome, error)
	DownloadTorrent(ctx context.Context, link string) ([]byte, error)
}

// ClientFactory builds a torrent client from stored instance credentials.
type ClientFactory func(inst store.ClientInstance) TorrentClient

// SearcherFactory builds a search client from stored provider credentials.
type SearcherFactory func(p store.SearchProvider) (Searcher, error)

// RunResult summarizes one scan invocation.
type RunResult struct {
	RunID      string    `json:"runId"`
	InstanceID int64     `json:"instanceId"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Scanned    int       `json:"scanned"`
	Candidates int       `json:"candidates"`
	Injected   int       `json:"injected"`
	Simulated  int       `json:"simulated"`
	Rejected   int       `json:"rejected"`
	Aborted    bool      `json:"aborted"`
	Errors     []string  `json:"errors,omitempty"`
}

// Worker executes one scan at a time for one instance.
type Worker struct {
	store       *store.Store
	cache       *cache.Cache
	broadcaster Broadcaster
	newClient   ClientFactory
	newSearcher SearcherFactory
	logger      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker wires a worker with its dependencies.
func NewWorker(st *store.Store, ca *cache.Cache, broadcaster Broadcaster,
	newClient ClientFactory, newSearcher SearcherFactory, logger zerolog.Logger) *Worker {
	return &Worker{
		store:       st,
		cache:       ca,
		broadcaster: broadcaster,
		newClient:   newClient,
		newSearcher: newSearcher,
		logger:      logger.With().Str("component", "crossseed-worker").Logger(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// RunScan performs one full scan for an instance. Configuration is read
// once up front; missing config, credentials or authentication fail fast
// before any torrent is touched. Per-candidate failures are recorded in the
// result and never abort the scan; cancellation is honored between torrents.
func (w *Worker) RunScan(ctx context.Context, instanceID int64, force bool) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString(), InstanceID: instanceID, Started: w.now()}
	logger := w.logger.With().Int64("instanceId", instanceID).Logger()

	cfg, err := w.store.GetScanConfig(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan config: %w", err)
	}
	inst, err := w.store.GetClientInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load client instance: %w", err)
	}
	provider, err := w.store.GetSearchProvider(ctx, cfg.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load search provider: %w", err)
	}

	client := w.newClient(inst)
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("client authentication failed: %w", err)
	}
	searcher, err := w.newSearcher(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to build search client: %w", err)
	}

	torrents, err := client.ListTorrents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}

	complete := torrents[:0:0]
	for _, t := range torrents {
		if t.Complete() {
			complete = append(complete, t)
		}
	}
	logger.Info().
		Int("total", len(torrents)).
		Int("complete", len(complete)).
		Bool("force", force).
		Msg("scan started")
	w.broadcast(EventScanStarted, ScanStartedPayload{InstanceID: instanceID, Forced: force})

	delay := time.Duration(cfg.SearchDelaySeconds) * time.Second
	if delay < minSearchDelay {
		delay = minSearchDelay
	}

	var lastDispatch time.Time
	for i, t := range complete {
		if ctx.Err() != nil {
			result.Aborted = true
			break
		}
		w.broadcast(EventScanProgress, ScanProgressPayload{
			InstanceID: instanceID,
			Torrent:    t.Name,
			Index:      i + 1,
			Total:      len(complete),
		})

		if err := w.scanTorrent(ctx, &scanContext{
			cfg:          cfg,
			client:       client,
			searcher:     searcher,
			torrent:      t,
			force:        force,
			delay:        delay,
			lastDispatch: &lastDispatch,
			result:       result,
			logger:       logger,
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				result.Aborted = true
				break
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.Name, err))
		}
	}

	result.Finished = w.now()
	w.broadcast(EventScanCompleted, ScanCompletedPayload{
		InstanceID: instanceID,
		Scanned:    result.Scanned,
		Injected:   result.Injected,
		Simulated:  result.Simulated,
		Rejected:   result.Rejected,
		Errors:     len(result.Errors),
		ElapsedMs:  result.Finished.Sub(result.Started).Milliseconds(),
	})
	logger.Info().
		Int("scanned", result.Scanned).
		Int("injected", result.Injected).
		Int("simulated", result.Simulated).
		Int("rejected", result.Rejected).
		Int("errors", len(result.Errors)).
		Msg("scan finished")
	return result, nil
}

type scanContext struct {
	cfg          store.ScanConfig
	client       TorrentClient
	searcher     Searcher
	torrent      torrentclient.Torrent
	force        bool
	delay        time.Duration
	lastDispatch *time.Time
	result       *RunResult
	logger       zerolog.Logger
}

// scanTorrent handles steps 4 through 9 for a single torrent.
func (w *Worker) scanTorrent(ctx context.Context, sc *scanContext) error {
	t := sc.torrent

	if !sc.force {
		se, err := w.store.GetSearchee(ctx, sc.cfg.InstanceID, t.Hash)
		switch {
		case err == nil:
			// Already searched on a prior scan; keep last_searched current.
			if err := w.store.TouchSearchee(ctx, se.ID); err != nil {
				return fmt.Errorf("failed to refresh searchee: %w", err)
			}
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to look up searchee: %w", err)
		}
	}

	files, err := sc.client.TorrentFiles(ctx, t.Hash)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	searcheeFiles := make([]matcher.FileEntry, 0, len(files))
	fileSizes := make([]int64, 0, len(files))
	for _, f := range files {
		searcheeFiles = append(searcheeFiles, matcher.FileEntry{Path: f.Name, Size: f.Size})
		fileSizes = append(fileSizes, f.Size)
	}
	sort.Slice(fileSizes, func(i, j int) bool { return fileSizes[i] < fileSizes[j] })

	if desc, blocked := matcher.FindBlockedString(matcher.BlockCheckItem{
		Name:     t.Name,
		Folder:   t.SavePath,
		Category: t.Category,
		Tags:     t.TagList(),
		InfoHash: t.Hash,
		Size:     t.Size,
	}, sc.cfg.Blocklist); blocked {
		sc.logger.Debug().Str("torrent", t.Name).Str("rule", desc).Msg("searchee blocked")
		return w.recordSearchee(ctx, sc, fileSizes)
	}

	// Search pacing is serialized across the whole scan.
	if !sc.lastDispatch.IsZero() {
		if wait := sc.delay - w.now().Sub(*sc.lastDispatch); wait > 0 {
			if err := w.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	*sc.lastDispatch = w.now()

	outcome, err := sc.searcher.SearchAll(ctx, buildQuery(t.Name), sc.cfg.IndexerIDs)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	sc.result.Scanned++
	sc.result.Candidates += len(outcome.Results)

	searcheeID, err := w.recordSearcheeID(ctx, sc, fileSizes)
	if err != nil {
		return err
	}

	for i := range outcome.Results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.evaluateCandidate(ctx, sc, searcheeID, searcheeFiles, &outcome.Results[i]); err != nil {
			sc.result.Errors = append(sc.result.Errors,
				fmt.Sprintf("%s / %s: %v", t.Name, outcome.Results[i].Title, err))
		}
	}
	return nil
}

func (w *Worker) recordSearchee(ctx context.Context, sc *scanContext, fileSizes []int64) error {
	_, err := w.recordSearcheeID(ctx, sc, fileSizes)
	return err
}

func (w *Worker) recordSearcheeID(ctx context.Context, sc *scanContext, fileSizes []int64) (int64, error) {
	id, err := w.store.UpsertSearchee(ctx, store.Searchee{
		InstanceID: sc.cfg.InstanceID,
		InfoHash:   strings.ToLower(sc.torrent.Hash),
		Name:       sc.torrent.Name,
		TotalSize:  sc.torrent.Size,
		FileCount:  len(fileSizes),
		FileSizes:  fileSizes,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record searchee: %w", err)
	}
	return id, nil
}

// evaluateCandidate runs steps 5 through 8 for one search result.
func (w *Worker) evaluateCandidate(ctx context.Context, sc *scanContext, searcheeID int64,
	searcheeFiles []matcher.FileEntry, cand *torznab.SearchResult) error {
	t := sc.torrent

	if pf := matcher.PreFilter(t.Name, t.Size, cand.Title, cand.Size, 0); !pf.Pass {
		return nil
	}

	// Declared info-hash already in the client: nothing to do.
	if cand.InfoHash != "" {
		present, err := sc.client.HashPresent(ctx, cand.InfoHash)
		if err != nil {
			return fmt.Errorf("failed to check hash: %w", err)
		}
		if present {
			return w.saveDecision(ctx, sc, searcheeID, cand, "", DecisionAlreadyPresent)
		}
	}

	// A prior positive decision whose torrent is already seeded needs no
	// re-processing unless the scan is forced.
	if !sc.force {
		prior, err := w.store.GetDecision(ctx, searcheeID, cand.GUID)
		if err == nil && DecisionKind(prior.Decision).Positive() && prior.InfoHash != "" {
			present, err := sc.client.HashPresent(ctx, prior.InfoHash)
			if err == nil && present {
				return nil
			}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to look up decision: %w", err)
		}
	}

	// No fetch link, or a magnet-only one, means the candidate's metadata
	// can never be retrieved through the provider.
	if cand.Link == "" {
		return w.saveDecision(ctx, sc, searcheeID, cand, "", DecisionMissingLink)
	}

	data, err := sc.searcher.DownloadTorrent(ctx, cand.Link)
	if err != nil {
		if errors.Is(err, torznab.ErrMagnetLink) {
			return w.saveDecision(ctx, sc, searcheeID, cand, "", DecisionMissingLink)
		}
		w.saveDecisionBest(ctx, sc, searcheeID, cand, "", DecisionDownloadFailed)
		return fmt.Errorf("download failed: %w", err)
	}

	infoHash, err := bencode.InfoHash(data)
	if err != nil {
		w.saveDecisionBest(ctx, sc, searcheeID, cand, "", DecisionDownloadFailed)
		return fmt.Errorf("invalid metadata: %w", err)
	}
	if err := w.cache.Put(sc.cfg.InstanceID, infoHash, data); err != nil {
		sc.logger.Warn().Err(err).Str("hash", infoHash).Msg("failed to cache metadata")
	}

	present, err := sc.client.HashPresent(ctx, infoHash)
	if err != nil {
		return fmt.Errorf("failed to check hash: %w", err)
	}
	if present {
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, DecisionAlreadyPresent)
	}

	meta, err := bencode.ParseMeta(data)
	if err != nil {
		w.saveDecisionBest(ctx, sc, searcheeID, cand, infoHash, DecisionDownloadFailed)
		return fmt.Errorf("invalid metadata: %w", err)
	}

	candFiles := make([]matcher.FileEntry, 0, len(meta.Files))
	for _, f := range meta.Files {
		candFiles = append(candFiles, matcher.FileEntry{Path: f.Path, Size: f.Size})
	}

	if desc, blocked := matcher.FindBlockedString(matcher.BlockCheckItem{
		Name:     meta.Name,
		InfoHash: infoHash,
		Size:     meta.TotalSize,
	}, sc.cfg.Blocklist); blocked {
		sc.logger.Debug().Str("candidate", meta.Name).Str("rule", desc).Msg("candidate blocked")
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, DecisionBlocked)
	}

	if matcher.RejectSeasonEpisodeMismatch(t.Name, cand.Title, candFiles, sc.cfg.IncludeSingleEpisodes) {
		sc.result.Rejected++
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, DecisionBlocked)
	}

	match := matcher.MatchFilesBySize(searcheeFiles, candFiles)
	if !match.Matched {
		sc.result.Rejected++
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, DecisionSizeMismatch)
	}

	kind := DecisionSizeOnly
	if match.Kind == matcher.SizeMatchExact {
		kind = DecisionExact
	}

	// A size-only match points the client at differently named files, so it
	// can only seed through a hardlink tree, and only when the config allows
	// name-divergent matches at all. Record it either way.
	if kind == DecisionSizeOnly &&
		(sc.cfg.Strictness != store.StrictnessFlexible || sc.cfg.LinkDir == "") {
		sc.logger.Debug().
			Str("candidate", meta.Name).
			Str("strictness", sc.cfg.Strictness).
			Msg("size-only match recorded but not actionable")
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, kind)
	}

	if sc.cfg.DryRun {
		if _, err := w.cache.WriteOutput(sc.cfg.InstanceID, infoHash, meta.Name, data); err != nil {
			sc.logger.Warn().Err(err).Msg("failed to write dry-run output")
		}
		sc.result.Simulated++
		w.broadcast(EventInjected, InjectedPayload{
			InstanceID: sc.cfg.InstanceID,
			Searchee:   t.Name,
			Candidate:  meta.Name,
			InfoHash:   infoHash,
			Decision:   string(kind),
			DryRun:     true,
		})
		return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, kind)
	}

	if err := w.inject(ctx, sc, infoHash, data, searcheeFiles, candFiles); err != nil {
		return err
	}
	sc.result.Injected++
	w.broadcast(EventInjected, InjectedPayload{
		InstanceID: sc.cfg.InstanceID,
		Searchee:   t.Name,
		Candidate:  meta.Name,
		InfoHash:   infoHash,
		Decision:   string(kind),
	})
	return w.saveDecision(ctx, sc, searcheeID, cand, infoHash, kind)
}

func (w *Worker) saveDecision(ctx context.Context, sc *scanContext, searcheeID int64,
	cand *torznab.SearchResult, infoHash string, kind DecisionKind) error {
	err := w.store.UpsertDecision(ctx, store.Decision{
		SearcheeID:    searcheeID,
		GUID:          cand.GUID,
		InfoHash:      strings.ToLower(infoHash),
		CandidateName: cand.Title,
		CandidateSize: cand.Size,
		Decision:      string(kind),
	})
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// saveDecisionBest records a decision on an already-failing path, where the
// original error matters more than a bookkeeping failure.
func (w *Worker) saveDecisionBest(ctx context.Context, sc *scanContext, searcheeID int64,
	cand *torznab.SearchResult, infoHash string, kind DecisionKind) {
	if err := w.saveDecision(ctx, sc, searcheeID, cand, infoHash, kind); err != nil {
		sc.logger.Warn().Err(err).Str("guid", cand.GUID).Msg("failed to record decision")
	}
}

func (w *Worker) broadcast(event string, payload interface{}) {
	if w.broadcaster != nil {
		w.broadcaster.Broadcast(event, payload)
	}
}

var queryNoiseRe = regexp.MustCompile(`[._]+`)

// Extensions stripped from a release name before querying. Release names
// routinely end in dotted tokens (x264-GROUP) that are not file extensions,
// so only known media suffixes are removed.
var queryStripExts = map[string]bool{
	".torrent": true, ".mkv": true, ".mp4": true, ".avi": true,
	".wmv": true, ".mov": true, ".ts": true, ".m2ts": true, ".m4v": true,
}

// buildQuery turns a release name into a free-text indexer query.
func buildQuery(name string) string {
	if ext := path.Ext(name); queryStripExts[strings.ToLower(ext)] {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.TrimSpace(queryNoiseRe.ReplaceAllString(name, " "))
}
