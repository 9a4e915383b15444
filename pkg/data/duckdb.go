package data

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS portal_items (
	id VARCHAR PRIMARY KEY,
	title VARCHAR,
	snippet VARCHAR,
	thumbnail_url VARCHAR,
	item_type VARCHAR,
	fetched_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS map_areas (
	id VARCHAR PRIMARY KEY,
	parent_id VARCHAR NOT NULL,
	title VARCHAR,
	snippet VARCHAR,
	thumbnail_url VARCHAR,
	package_ids VARCHAR,
	position INTEGER,
	fetched_at TIMESTAMP
);`

// InitDuckDB opens the catalog database at path, creating parent
// directories and tables as needed.
func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Repository is the offline snapshot of the portal catalog. It lets the
// area list render without network access once it has been fetched.
type Repository struct {
	db *sql.DB
}

func NewDuckDBRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveItem(item *PortalItem) error {
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO portal_items (id, title, snippet, thumbnail_url, item_type, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Snippet, item.ThumbnailURL, item.Type, item.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save portal item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem returns ErrNotFound when no snapshot exists for id.
func (r *Repository) GetItem(id string) (*PortalItem, error) {
	item := &PortalItem{}
	err := r.db.QueryRow(
		`SELECT id, title, snippet, thumbnail_url, item_type, fetched_at FROM portal_items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Title, &item.Snippet, &item.ThumbnailURL, &item.Type, &item.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portal item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portal item %s: %w", id, err)
	}
	return item, nil
}

func (r *Repository) ListItems() ([]*PortalItem, error) {
	rows, err := r.db.Query(
		`SELECT id, title, snippet, thumbnail_url, item_type, fetched_at FROM portal_items ORDER BY title`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list portal items: %w", err)
	}
	defer rows.Close()

	var items []*PortalItem
	for rows.Next() {
		item := &PortalItem{}
		if err := rows.Scan(&item.ID, &item.Title, &item.Snippet, &item.ThumbnailURL, &item.Type, &item.FetchedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveAreas replaces the snapshot of parentID's areas, preserving order.
func (r *Repository) SaveAreas(parentID string, areas []Area) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM map_areas WHERE parent_id = ?`, parentID); err != nil {
		return fmt.Errorf("failed to clear areas of %s: %w", parentID, err)
	}

	now := time.Now()
	for i, area := range areas {
		fetched := area.FetchedAt
		if fetched.IsZero() {
			fetched = now
		}
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO map_areas (id, parent_id, title, snippet, thumbnail_url, package_ids, position, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			area.ID, parentID, area.Title, area.Snippet, area.ThumbnailURL,
			strings.Join(area.PackageIDs, ","), i, fetched,
		)
		if err != nil {
			return fmt.Errorf("failed to save area %s: %w", area.ID, err)
		}
	}

	return tx.Commit()
}

// GetAreas returns ErrNotFound when parentID has never been snapshotted.
func (r *Repository) GetAreas(parentID string) ([]Area, error) {
	rows, err := r.db.Query(
		`SELECT id, parent_id, title, snippet, thumbnail_url, package_ids, fetched_at
		 FROM map_areas WHERE parent_id = ? ORDER BY position`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get areas of %s: %w", parentID, err)
	}
	defer rows.Close()

	var areas []Area
	for rows.Next() {
		var area Area
		var packages string
		if err := rows.Scan(&area.ID, &area.ParentID, &area.Title, &area.Snippet, &area.ThumbnailURL, &packages, &area.FetchedAt); err != nil {
			return nil, err
		}
		if packages != "" {
			area.PackageIDs = strings.Split(packages, ",")
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("areas of %s: %w", parentID, ErrNotFound)
	}
	return areas, nil
}

// DeleteItem removes a portal item and its area snapshot.
func (r *Repository) DeleteItem(id string) error {
	if _, err := r.db.Exec(`DELETE FROM map_areas WHERE parent_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete areas of %s: %w", id, err)
	}
	if _, err := r.db.Exec(`DELETE FROM portal_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete portal item %s: %w", id, err)
	}
	return nil
}

func (r *Repository) Purge() error {
	if _, err := r.db.Exec(`DELETE FROM map_areas`); err != nil {
		return err
	}
	_, err := r.db.Exec(`DELETE FROM portal_items`)
	return err
}
