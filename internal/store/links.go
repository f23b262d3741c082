// ABOUTME: SQLite persistence for stashed links with JSON encoded tags.
// ABOUTME: Tag filtering happens after the owner-scoped query.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CreateLink stores a new link.
func (s *SQLiteStore) CreateLink(ctx context.Context, link *Link) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	if link.Tags == nil {
		link.Tags = []string{}
	}

	tagsJSON, err := json.Marshal(link.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO links (id, owner_id, url, title, description, image_url, summary, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, link.ID, link.OwnerID, link.URL, link.Title, nullableString(link.Description),
		nullableString(link.ImageURL), nullableString(link.Summary), string(tagsJSON),
		formatTime(link.CreatedAt))
	return err
}

// GetLink retrieves one of the owner's links.
func (s *SQLiteStore) GetLink(ctx context.Context, ownerID, id string) (*Link, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, url, title, description, image_url, summary, tags, created_at
		FROM links WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	return scanLink(row)
}

// ListLinks returns the owner's links, newest first. A non-empty tag keeps
// only links carrying it.
func (s *SQLiteStore) ListLinks(ctx context.Context, ownerID, tag string) ([]*Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, url, title, description, image_url, summary, tags, created_at
		FROM links WHERE owner_id = ? ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		if tag != "" && !slices.Contains(l.Tags, tag) {
			continue
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// DeleteLink removes one of the owner's links.
func (s *SQLiteStore) DeleteLink(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(result)
}

func scanLink(row scanner) (*Link, error) {
	var l Link
	var description, imageURL, summary, tags sql.NullString
	var createdAt string
	err := row.Scan(&l.ID, &l.OwnerID, &l.URL, &l.Title, &description, &imageURL, &summary, &tags, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning link: %w", err)
	}
	l.Description = description.String
	l.ImageURL = imageURL.String
	l.Summary = summary.String

	l.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &l.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &l, nil
}
