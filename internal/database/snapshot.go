package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is one archived extraction. Record holds the full raw record.
type Snapshot struct {
	ID           uuid.UUID       `db:"id"`
	URL          string          `db:"url"`
	Site         string          `db:"site"`
	Name         string          `db:"name"`
	Price        string          `db:"price"`
	InStock      bool            `db:"in_stock"`
	VariantCount int             `db:"variant_count"`
	Record       json.RawMessage `db:"record"`
	ExtractedAt  time.Time       `db:"extracted_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// InsertWithTx stores s inside tx so it commits together with its outbox
// event.
func (r *SnapshotRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, s *Snapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()

	query := `
		INSERT INTO product_snapshot (
			id, url, site, name, price, in_stock,
			variant_count, record, extracted_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.URL, s.Site, s.Name, s.Price, s.InStock,
		s.VariantCount, s.Record, s.ExtractedAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of url.
func (r *SnapshotRepository) Latest(ctx context.Context, url string) (*Snapshot, error) {
	query := `
		SELECT
			id, url, site, name, price, in_stock,
			variant_count, record, extracted_at, created_at
		FROM product_snapshot
		WHERE url = $1
		ORDER BY extracted_at DESC
		LIMIT 1`

	s := &Snapshot{}
	err := r.db.pool.QueryRow(ctx, query, url).Scan(
		&s.ID, &s.URL, &s.Site, &s.Name, &s.Price, &s.InStock,
		&s.VariantCount, &s.Record, &s.ExtractedAt, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s, nil
}

// CountBySite returns the number of snapshots per site profile.
func (r *SnapshotRepository) CountBySite(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT site, COUNT(*) FROM product_snapshot GROUP BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[site] = n
	}
	return counts, rows.Err()
}
