package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// UpsertSearchee inserts a searchee or refreshes its metadata and
// last_searched timestamp, and returns the row ID.
func (s *Store) UpsertSearchee(ctx context.Context, se Searchee) (int64, error) {
	fileSizes, err := json.Marshal(se.FileSizes)
	if err != nil {
		return 0, fmt.Errorf("failed to encode file sizes: %w", err)
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO searchees (
		     instance_id, info_hash, name, total_size, file_count, file_sizes,
		     first_searched, last_searched)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, info_hash) DO UPDATE SET
		     name = excluded.name,
		     total_size = excluded.total_size,
		     file_count = excluded.file_count,
		     file_sizes = excluded.file_sizes,
		     last_searched = excluded.last_searched`,
		se.InstanceID, se.InfoHash, se.Name, se.TotalSize, se.FileCount,
		string(fileSizes), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert searchee: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM searchees WHERE instance_id = ? AND info_hash = ?`,
		se.InstanceID, se.InfoHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read searchee id: %w", err)
	}
	return id, nil
}

// GetSearchee returns one searchee by instance and info-hash.
func (s *Store) GetSearchee(ctx context.Context, instanceID int64, infoHash string) (Searchee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, instance_id, info_hash, name, total_size, file_count,
		        file_sizes, first_searched, last_searched
		 FROM searchees WHERE instance_id = ? AND info_hash = ?`,
		instanceID, infoHash)
	se, err := searcheeFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Searchee{}, ErrNotFound
	}
	return se, err
}

// TouchSearchee bumps last_searched without rewriting metadata.
func (s *Store) TouchSearchee(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE searchees SET last_searched = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch searchee: %w", err)
	}
	return nil
}

// ListSearchees returns searchees for an instance ordered by most recently
// searched, with offset pagination.
func (s *Store) ListSearchees(ctx context.Context, instanceID int64, limit, offset int) ([]Searchee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, info_hash, name, total_size, file_count,
		        file_sizes, first_searched, last_searched
		 FROM searchees WHERE instance_id = ?
		 ORDER BY last_searched DESC LIMIT ? OFFSET ?`,
		instanceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list searchees: %w", err)
	}
	defer rows.Close()

	var searchees []Searchee
	for rows.Next() {
		se, err := searcheeFromRow(rows)
		if err != nil {
			return nil, err
		}
		searchees = append(searchees, se)
	}
	return searchees, rows.Err()
}

// CountSearchees returns the number of searchees recorded for an instance.
func (s *Store) CountSearchees(ctx context.Context, instanceID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM searchees WHERE instance_id = ?`, instanceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count searchees: %w", err)
	}
	return n, nil
}

func searcheeFromRow(row rowScanner) (Searchee, error) {
	var (
		se        Searchee
		fileSizes string
	)
	err := row.Scan(&se.ID, &se.InstanceID, &se.InfoHash, &se.Name, &se.TotalSize,
		&se.FileCount, &fileSizes, &se.FirstSearched, &se.LastSearched)
	if err != nil {
		return Searchee{}, err
	}
	if err := json.Unmarshal([]byte(fileSizes), &se.FileSizes); err != nil {
		return Searchee{}, fmt.Errorf("failed to decode file sizes: %w", err)
	}
	return se, nil
}
