// Package cache stores fetched torrent metadata on disk, keyed by client
// instance and info-hash, plus a browsable output area for dry-run results.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidHash is returned when a key is not a hex-encoded info-hash.
var ErrInvalidHash = errors.New("cache: invalid info hash")

// Cache is a filesystem-backed metadata store. Layout under the root:
//
//	<root>/<instanceID>/torrents/<hash>.torrent
//	<root>/<instanceID>/output/<sanitized name>.<hash prefix>.torrent
type Cache struct {
	root string
}

// Stats summarizes one instance's cached files.
type Stats struct {
	TorrentCount int   `json:"torrentCount"`
	OutputCount  int   `json:"outputCount"`
	TotalBytes   int64 `json:"totalBytes"`
}

// New creates a cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{root: dir}
}

// validHash accepts 40-character hex strings only. Keys become path
// segments, so anything else is rejected before a path join.
func validHash(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, c := range hash {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func (c *Cache) torrentsDir(instanceID int64) string {
	return filepath.Join(c.root, strconv.FormatInt(instanceID, 10), "torrents")
}

func (c *Cache) outputDir(instanceID int64) string {
	return filepath.Join(c.root, strconv.FormatInt(instanceID, 10), "output")
}

// Put writes fetched metadata for an info-hash, overwriting any prior copy.
func (c *Cache) Put(instanceID int64, hash string, data []byte) error {
	if !validHash(hash) {
		return ErrInvalidHash
	}
	dir := c.torrentsDir(instanceID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(dir, strings.ToLower(hash)+".torrent")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write cached torrent: %w", err)
	}
	return nil
}

// Get returns cached metadata for an info-hash, or ok=false when absent.
func (c *Cache) Get(instanceID int64, hash string) ([]byte, bool, error) {
	if !validHash(hash) {
		return nil, false, ErrInvalidHash
	}
	path := filepath.Join(c.torrentsDir(instanceID), strings.ToLower(hash)+".torrent")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached torrent: %w", err)
	}
	return data, true, nil
}

// WriteOutput saves a matched torrent into the browsable output area used in
// dry-run mode. The display name is sanitized and suffixed with a hash
// fragment so distinct candidates with the same title never collide.
func (c *Cache) WriteOutput(instanceID int64, hash, name string, data []byte) (string, error) {
	if !validHash(hash) {
		return "", ErrInvalidHash
	}
	dir := c.outputDir(instanceID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := fmt.Sprintf("%s.%s.torrent", sanitizeName(name), strings.ToLower(hash[:8]))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write output torrent: %w", err)
	}
	return path, nil
}

// Stats walks one instance's cache and reports file counts and total size.
func (c *Cache) Stats(instanceID int64) (Stats, error) {
	var stats Stats

	count, bytes, err := dirStats(c.torrentsDir(instanceID))
	if err != nil {
		return Stats{}, err
	}
	stats.TorrentCount = count
	stats.TotalBytes += bytes

	count, bytes, err = dirStats(c.outputDir(instanceID))
	if err != nil {
		return Stats{}, err
	}
	stats.OutputCount = count
	stats.TotalBytes += bytes

	return stats, nil
}

// Clear removes everything cached for one instance.
func (c *Cache) Clear(instanceID int64) error {
	dir := filepath.Join(c.root, strconv.FormatInt(instanceID, 10))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func dirStats(dir string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var (
		count int
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		total += info.Size()
	}
	return count, total, nil
}

// sanitizeName replaces path separators and characters unsafe on common
// filesystems, and trims the result to a reasonable filename length.
func sanitizeName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
	sanitized = strings.Trim(sanitized, ". ")
	if sanitized == "" {
		sanitized = "torrent"
	}
	const maxLen = 180
	if len(sanitized) > maxLen {
		sanitized = sanitized[:maxLen]
	}
	return sanitized
}
