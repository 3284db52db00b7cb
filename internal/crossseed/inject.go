package crossseed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crossarr/crossarr/internal/matcher"
	"github.com/crossarr/crossarr/internal/torrentclient"
)

var errLinkFailed = errors.New("crossseed: hardlink build failed")

const (
	// Poll interval and ceiling for the post-add hash check.
	addPollInterval = time.Second
	addPollAttempts = 10

	// Recheck watcher bounds. A complete-and-idle torrent observed before
	// any checking state may just be a recheck that has not started yet, so
	// the watcher resumes early only after several consecutive idle polls.
	recheckPollInterval = 5 * time.Second
	recheckTimeout      = 15 * time.Minute
	recheckIdlePolls    = 3
)

// inject adds a matched candidate to the client, paused, pointed at either
// the searchee's payload or a freshly built hardlink tree. Unless rechecks
// are skipped a watcher resumes the torrent once verification settles.
func (w *Worker) inject(ctx context.Context, sc *scanContext, infoHash string,
	data []byte, searcheeFiles, candFiles []matcher.FileEntry) error {
	props, err := sc.client.Properties(ctx, sc.torrent.Hash)
	if err != nil {
		return fmt.Errorf("failed to read save path: %w", err)
	}

	savePath := props.SavePath
	if sc.cfg.LinkDir != "" {
		savePath = sc.cfg.LinkDir
		if err := w.buildLinkTree(props.SavePath, sc.cfg.LinkDir, searcheeFiles, candFiles); err != nil {
			return fmt.Errorf("%w: %v", errLinkFailed, err)
		}
	}

	category := sc.torrent.Category
	if category != "" && sc.cfg.CategorySuffix != "" {
		category += sc.cfg.CategorySuffix
	}
	var tags []string
	if sc.cfg.Tag != "" {
		tags = []string{sc.cfg.Tag}
	}

	err = sc.client.AddTorrent(ctx, data, torrentclient.AddOptions{
		SavePath:     savePath,
		Category:     category,
		Tags:         tags,
		Paused:       true,
		SkipChecking: sc.cfg.SkipRecheck,
	})
	if err != nil {
		return fmt.Errorf("failed to add torrent: %w", err)
	}

	// The add endpoint is asynchronous; confirm the hash shows up.
	var present bool
	for attempt := 0; attempt < addPollAttempts; attempt++ {
		present, err = sc.client.HashPresent(ctx, infoHash)
		if err != nil {
			return fmt.Errorf("failed to verify injection: %w", err)
		}
		if present {
			break
		}
		if err := w.sleep(ctx, addPollInterval); err != nil {
			return err
		}
	}
	if !present {
		return fmt.Errorf("injected torrent %s never appeared in the client", infoHash)
	}

	if sc.cfg.SkipRecheck {
		return sc.client.Start(ctx, infoHash)
	}
	if err := sc.client.Recheck(ctx, infoHash); err != nil {
		return fmt.Errorf("failed to start recheck: %w", err)
	}

	// Fire and forget: the watcher outlives this candidate and reports its
	// own terminal outcome.
	go w.watchRecheck(sc.client, sc.cfg.InstanceID, infoHash)
	return nil
}

// buildLinkTree hardlinks the searchee's payload into the link directory
// under the candidate's layout. Only files the matcher paired up by size are
// linkable; a missing counterpart or a cross-filesystem link fails the
// candidate.
func (w *Worker) buildLinkTree(sourceRoot, linkRoot string,
	searcheeFiles, candFiles []matcher.FileEntry) error {
	pairs, err := pairFiles(searcheeFiles, candFiles)
	if err != nil {
		return err
	}

	for _, p := range pairs {
		src := filepath.Join(sourceRoot, filepath.FromSlash(p.source))
		dst := filepath.Join(linkRoot, filepath.FromSlash(p.target))

		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("failed to create link directory: %w", err)
		}
		if err := os.Link(src, dst); err != nil {
			if os.IsExist(err) {
				continue
			}
			return fmt.Errorf("failed to link %s: %w", p.target, err)
		}
	}
	return nil
}

type linkPair struct {
	source string // path relative to the searchee's save path
	target string // path relative to the link root
}

// pairFiles maps every candidate file to a distinct searchee file of the
// same size, preferring equal base names among same-size siblings. This
// mirrors the size-only matcher, so a candidate that matched always pairs.
func pairFiles(searcheeFiles, candFiles []matcher.FileEntry) ([]linkPair, error) {
	bySize := make(map[int64][]int)
	for i, f := range searcheeFiles {
		bySize[f.Size] = append(bySize[f.Size], i)
	}
	consumed := make(map[int]bool)

	pairs := make([]linkPair, 0, len(candFiles))
	for _, cf := range candFiles {
		pool := bySize[cf.Size]
		chosen := -1
		for _, idx := range pool {
			if consumed[idx] {
				continue
			}
			if filepath.Base(searcheeFiles[idx].Path) == filepath.Base(cf.Path) {
				chosen = idx
				break
			}
			if chosen < 0 {
				chosen = idx
			}
		}
		if chosen < 0 {
			return nil, fmt.Errorf("no local counterpart for %s", cf.Path)
		}
		consumed[chosen] = true
		pairs = append(pairs, linkPair{source: searcheeFiles[chosen].Path, target: cf.Path})
	}
	return pairs, nil
}

// watchRecheck polls the injected torrent until verification finishes, then
// resumes it. The watcher gives up after a bounded timeout and logs either
// way; it never blocks the scan that spawned it.
func (w *Worker) watchRecheck(client TorrentClient, instanceID int64, infoHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
	defer cancel()

	log := w.logger.With().
		Int64("instanceId", instanceID).
		Str("hash", infoHash).
		Logger()

	sawChecking := false
	idlePolls := 0
	for poll := 0; ; poll++ {
		// The first poll happens right after the recheck is issued; the
		// checking state may not have been entered yet at that point.
		if poll > 0 {
			if err := w.sleep(ctx, recheckPollInterval); err != nil {
				log.Warn().Msg("recheck watcher timed out, torrent left paused")
				return
			}
		}

		torrents, err := client.ListTorrents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Warn().Msg("recheck watcher timed out, torrent left paused")
				return
			}
			log.Warn().Err(err).Msg("recheck watcher failed to poll")
			continue
		}
		var found *torrentclient.Torrent
		for i := range torrents {
			if strings.EqualFold(torrents[i].Hash, infoHash) {
				found = &torrents[i]
				break
			}
		}
		if found == nil {
			log.Warn().Msg("injected torrent disappeared during recheck")
			return
		}
		if isChecking(found.State) {
			sawChecking = true
			idlePolls = 0
			continue
		}
		if !found.Complete() {
			log.Warn().
				Float64("progress", found.Progress).
				Msg("recheck found missing data, torrent left paused")
			return
		}
		// Complete and idle. Unless checking was observed, the recheck may
		// not have started yet; only resume after the state holds still.
		if !sawChecking {
			idlePolls++
			if idlePolls < recheckIdlePolls {
				continue
			}
		}
		if err := client.Start(ctx, infoHash); err != nil {
			log.Error().Err(err).Msg("failed to resume verified torrent")
			return
		}
		log.Info().Msg("injected torrent verified and resumed")
		return
	}
}

func isChecking(state string) bool {
	return strings.HasPrefix(state, "checking") || state == "queuedForChecking"
}
