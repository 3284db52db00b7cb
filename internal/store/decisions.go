package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertDecision records the outcome for a (searchee, guid) pair. A repeated
// candidate keeps its first_seen time and updates everything else.
func (s *Store) UpsertDecision(ctx context.Context, d Decision) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (
		     searchee_id, guid, info_hash, candidate_name, candidate_size,
		     decision, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(searchee_id, guid) DO UPDATE SET
		     info_hash = excluded.info_hash,
		     candidate_name = excluded.candidate_name,
		     candidate_size = excluded.candidate_size,
		     decision = excluded.decision,
		     last_seen = excluded.last_seen`,
		d.SearcheeID, d.GUID, d.InfoHash, d.CandidateName, d.CandidateSize,
		d.Decision, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}
	return nil
}

// GetDecision returns the recorded decision for a (searchee, guid) pair.
func (s *Store) GetDecision(ctx context.Context, searcheeID int64, guid string) (Decision, error) {
	var d Decision
	err := s.db.QueryRowContext(ctx,
		`SELECT id, searchee_id, guid, info_hash, candidate_name, candidate_size,
		        decision, first_seen, last_seen
		 FROM decisions WHERE searchee_id = ? AND guid = ?`, searcheeID, guid).
		Scan(&d.ID, &d.SearcheeID, &d.GUID, &d.InfoHash, &d.CandidateName,
			&d.CandidateSize, &d.Decision, &d.FirstSeen, &d.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, ErrNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns the decisions for one searchee ordered by most
// recently seen, with offset pagination.
func (s *Store) ListDecisions(ctx context.Context, searcheeID int64, limit, offset int) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, searchee_id, guid, info_hash, candidate_name, candidate_size,
		        decision, first_seen, last_seen
		 FROM decisions WHERE searchee_id = ?
		 ORDER BY last_seen DESC LIMIT ? OFFSET ?`, searcheeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.SearcheeID, &d.GUID, &d.InfoHash, &d.CandidateName,
			&d.CandidateSize, &d.Decision, &d.FirstSeen, &d.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// GetIndexerBackoff returns the snooze state for one indexer, or ErrNotFound
// when the indexer has never been snoozed.
func (s *Store) GetIndexerBackoff(ctx context.Context, providerID, indexerID int64) (IndexerBackoff, error) {
	var (
		b          IndexerBackoff
		retryAfter sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT provider_id, indexer_id, status, retry_after, updated_at
		 FROM indexer_backoff WHERE provider_id = ? AND indexer_id = ?`,
		providerID, indexerID).
		Scan(&b.ProviderID, &b.IndexerID, &b.Status, &retryAfter, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexerBackoff{}, ErrNotFound
	}
	if err != nil {
		return IndexerBackoff{}, fmt.Errorf("failed to get indexer backoff: %w", err)
	}
	if retryAfter.Valid {
		t := retryAfter.Time
		b.RetryAfter = &t
	}
	return b, nil
}

// UpsertIndexerBackoff writes the snooze state for one indexer.
func (s *Store) UpsertIndexerBackoff(ctx context.Context, b IndexerBackoff) error {
	var retryAfter any
	if b.RetryAfter != nil {
		retryAfter = b.RetryAfter.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexer_backoff (provider_id, indexer_id, status, retry_after, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(provider_id, indexer_id) DO UPDATE SET
		     status = excluded.status,
		     retry_after = excluded.retry_after,
		     updated_at = excluded.updated_at`,
		b.ProviderID, b.IndexerID, b.Status, retryAfter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert indexer backoff: %w", err)
	}
	return nil
}
