// Package store provides typed access to the SQLite tables backing the
// cross-seed engine. JSON columns are decoded here so callers only see
// Go types.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crossarr/crossarr/internal/matcher"
)

// ErrNotFound is returned when a point query matches no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database connection with typed queries.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ClientInstance identifies a torrent client the engine can scan.
type ClientInstance struct {
	ID       int64
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
}

// SearchProvider holds the connection details of a Torznab aggregator.
type SearchProvider struct {
	ID     int64
	Name   string
	URL    string
	APIKey string
}

// Strictness modes governing whether size-only matches may be injected.
const (
	StrictnessStrict   = "strict"
	StrictnessFlexible = "flexible"
)

// ScanConfig is the per-instance cross-seed configuration.
type ScanConfig struct {
	InstanceID            int64
	Enabled               bool
	IntervalHours         int
	SearchDelaySeconds    int
	DryRun                bool
	CategorySuffix        string
	Tag                   string
	SkipRecheck           bool
	ProviderID            int64
	IndexerIDs            []int64
	Strictness            string
	LinkDir               string
	Blocklist             []matcher.BlockRule
	IncludeSingleEpisodes bool
	LastRun               *time.Time
	NextRun               *time.Time
}

// Searchee is a locally seeded torrent the engine has searched for.
type Searchee struct {
	ID            int64
	InstanceID    int64
	InfoHash      string
	Name          string
	TotalSize     int64
	FileCount     int
	FileSizes     []int64
	FirstSearched time.Time
	LastSearched  time.Time
}

// Decision records the outcome of evaluating one candidate against one
// searchee, keyed by the candidate's GUID.
type Decision struct {
	ID            int64
	SearcheeID    int64
	GUID          string
	InfoHash      string
	CandidateName string
	CandidateSize int64
	Decision      string
	FirstSeen     time.Time
	LastSeen      time.Time
}

// IndexerBackoff is the persisted snooze state for one indexer.
type IndexerBackoff struct {
	ProviderID int64
	IndexerID  int64
	Status     string
	RetryAfter *time.Time
	UpdatedAt  time.Time
}

// GetClientInstance returns one client instance by ID.
func (s *Store) GetClientInstance(ctx context.Context, id int64) (ClientInstance, error) {
	var c ClientInstance
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, host, port, username, password, use_ssl
		 FROM client_instances WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Username, &c.Password, &c.UseSSL)
	if errors.Is(err, sql.ErrNoRows) {
		return ClientInstance{}, ErrNotFound
	}
	if err != nil {
		return ClientInstance{}, fmt.Errorf("failed to get client instance: %w", err)
	}
	return c, nil
}

// GetSearchProvider returns one search provider by ID.
func (s *Store) GetSearchProvider(ctx context.Context, id int64) (SearchProvider, error) {
	var p SearchProvider
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, api_key FROM search_providers WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.URL, &p.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchProvider{}, ErrNotFound
	}
	if err != nil {
		return SearchProvider{}, fmt.Errorf("failed to get search provider: %w", err)
	}
	return p, nil
}

// GetScanConfig returns the scan configuration for one instance.
func (s *Store) GetScanConfig(ctx context.Context, instanceID int64) (ScanConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT instance_id, enabled, interval_hours, search_delay_seconds, dry_run,
		        category_suffix, tag, skip_recheck, provider_id, indexer_ids,
		        strictness, link_dir, blocklist, include_single_episodes,
		        last_run, next_run
		 FROM scan_configs WHERE instance_id = ?`, instanceID)
	cfg, err := scanConfigFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanConfig{}, ErrNotFound
	}
	return cfg, err
}

// ListEnabledScanConfigs returns every enabled scan configuration.
func (s *Store) ListEnabledScanConfigs(ctx context.Context) ([]ScanConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, enabled, interval_hours, search_delay_seconds, dry_run,
		        category_suffix, tag, skip_recheck, provider_id, indexer_ids,
		        strictness, link_dir, blocklist, include_single_episodes,
		        last_run, next_run
		 FROM scan_configs WHERE enabled = 1 ORDER BY instance_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan configs: %w", err)
	}
	defer rows.Close()

	var configs []ScanConfig
	for rows.Next() {
		cfg, err := scanConfigFromRow(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// UpsertScanConfig writes the full scan configuration for one instance.
func (s *Store) UpsertScanConfig(ctx context.Context, cfg ScanConfig) error {
	indexerIDs, err := json.Marshal(cfg.IndexerIDs)
	if err != nil {
		return fmt.Errorf("failed to encode indexer ids: %w", err)
	}
	blocklist, err := json.Marshal(cfg.Blocklist)
	if err != nil {
		return fmt.Errorf("failed to encode blocklist: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_configs (
		     instance_id, enabled, interval_hours, search_delay_seconds, dry_run,
		     category_suffix, tag, skip_recheck, provider_id, indexer_ids,
		     strictness, link_dir, blocklist, include_single_episodes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id) DO UPDATE SET
		     enabled = excluded.enabled,
		     interval_hours = excluded.interval_hours,
		     search_delay_seconds = excluded.search_delay_seconds,
		     dry_run = excluded.dry_run,
		     category_suffix = excluded.category_suffix,
		     tag = excluded.tag,
		     skip_recheck = excluded.skip_recheck,
		     provider_id = excluded.provider_id,
		     indexer_ids = excluded.indexer_ids,
		     strictness = excluded.strictness,
		     link_dir = excluded.link_dir,
		     blocklist = excluded.blocklist,
		     include_single_episodes = excluded.include_single_episodes`,
		cfg.InstanceID, cfg.Enabled, cfg.IntervalHours, cfg.SearchDelaySeconds, cfg.DryRun,
		cfg.CategorySuffix, cfg.Tag, cfg.SkipRecheck, cfg.ProviderID, string(indexerIDs),
		cfg.Strictness, cfg.LinkDir, string(blocklist), cfg.IncludeSingleEpisodes)
	if err != nil {
		return fmt.Errorf("failed to upsert scan config: %w", err)
	}
	return nil
}

// UpdateScanRunTimes records when a scan last ran and when the next one is due.
func (s *Store) UpdateScanRunTimes(ctx context.Context, instanceID int64, lastRun, nextRun time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_configs SET last_run = ?, next_run = ? WHERE instance_id = ?`,
		lastRun.UTC(), nextRun.UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update scan run times: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfigFromRow(row rowScanner) (ScanConfig, error) {
	var (
		cfg        ScanConfig
		indexerIDs string
		blocklist  string
		lastRun    sql.NullTime
		nextRun    sql.NullTime
	)
	err := row.Scan(&cfg.InstanceID, &cfg.Enabled, &cfg.IntervalHours, &cfg.SearchDelaySeconds,
		&cfg.DryRun, &cfg.CategorySuffix, &cfg.Tag, &cfg.SkipRecheck, &cfg.ProviderID,
		&indexerIDs, &cfg.Strictness, &cfg.LinkDir, &blocklist, &cfg.IncludeSingleEpisodes,
		&lastRun, &nextRun)
	if err != nil {
		return ScanConfig{}, err
	}

	if err := json.Unmarshal([]byte(indexerIDs), &cfg.IndexerIDs); err != nil {
		return ScanConfig{}, fmt.Errorf("failed to decode indexer ids: %w", err)
	}
	if err := json.Unmarshal([]byte(blocklist), &cfg.Blocklist); err != nil {
		return ScanConfig{}, fmt.Errorf("failed to decode blocklist: %w", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		cfg.LastRun = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		cfg.NextRun = &t
	}
	return cfg, nil
}
