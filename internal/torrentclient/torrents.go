package torrentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Torrent is one entry from the torrent list.
type Torrent struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	State       string  `json:"state"`
	Category    string  `json:"category"`
	Tags        string  `json:"tags"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
}

// Complete reports whether the torrent has all payload bytes.
func (t Torrent) Complete() bool {
	return t.Progress >= 1.0
}

// TagList splits the comma-separated tag string.
func (t Torrent) TagList() []string {
	if t.Tags == "" {
		return nil
	}
	parts := strings.Split(t.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// TorrentFile is one payload file of a torrent.
type TorrentFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// TorrentProperties carries the per-torrent details not present in the list.
type TorrentProperties struct {
	SavePath  string `json:"save_path"`
	TotalSize int64  `json:"total_size"`
	PieceSize int64  `json:"piece_size"`
	CreatedBy string `json:"created_by"`
	IsPrivate bool   `json:"is_private"`
}

// ListTorrents returns every torrent known to the client.
func (c *Client) ListTorrents(ctx context.Context) ([]Torrent, error) {
	body, err := c.get(ctx, "/api/v2/torrents/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}
	var torrents []Torrent
	if err := json.Unmarshal(body, &torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrent list: %w", err)
	}
	return torrents, nil
}

// TorrentFiles returns the payload file list of one torrent.
func (c *Client) TorrentFiles(ctx context.Context, hash string) ([]TorrentFile, error) {
	params := url.Values{}
	params.Set("hash", hash)
	body, err := c.get(ctx, "/api/v2/torrents/files", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list torrent files: %w", err)
	}
	var files []TorrentFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}
	return files, nil
}

// Properties returns the detailed properties of one torrent.
func (c *Client) Properties(ctx context.Context, hash string) (TorrentProperties, error) {
	params := url.Values{}
	params.Set("hash", hash)
	body, err := c.get(ctx, "/api/v2/torrents/properties", params)
	if err != nil {
		return TorrentProperties{}, fmt.Errorf("failed to get torrent properties: %w", err)
	}
	var props TorrentProperties
	if err := json.Unmarshal(body, &props); err != nil {
		return TorrentProperties{}, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}

// HashPresent reports whether the client already has a torrent with the
// given info-hash.
func (c *Client) HashPresent(ctx context.Context, hash string) (bool, error) {
	params := url.Values{}
	params.Set("hashes", strings.ToLower(hash))
	body, err := c.get(ctx, "/api/v2/torrents/info", params)
	if err != nil {
		return false, fmt.Errorf("failed to query torrent: %w", err)
	}
	var torrents []Torrent
	if err := json.Unmarshal(body, &torrents); err != nil {
		return false, fmt.Errorf("failed to decode torrent list: %w", err)
	}
	return len(torrents) > 0, nil
}
