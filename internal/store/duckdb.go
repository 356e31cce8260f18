package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/jlgore/tagsweep/pkg/models"
)

// DuckDBStore keeps the inventory in a local DuckDB file. DuckDB has no TTL, so
// expired rows are removed by PurgeExpired.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore opens (or creates) the database at path. An empty path opens
// an in-memory database.
func NewDuckDBStore(path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DuckDBStore{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS untagged_resources (
			arn VARCHAR NOT NULL,
			account_id VARCHAR NOT NULL DEFAULT '',
			region VARCHAR,
			service VARCHAR NOT NULL,
			resource_type VARCHAR,
			last_seen BIGINT NOT NULL,
			expire_at BIGINT NOT NULL,
			scan_id VARCHAR,
			PRIMARY KEY (arn, account_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create untagged_resources: %w", err)
	}

	// No secondary indexes: DuckDB cannot replace rows whose indexed columns change
	return nil
}

// Close releases the database
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// Upsert implements Writer
func (s *DuckDBStore) Upsert(ctx context.Context, rec models.InventoryRecord) error {
	_, err := s.BatchUpsert(ctx, []models.InventoryRecord{rec})
	return err
}

// BatchUpsert implements Writer. The batch is written in one transaction, so
// it either fully succeeds or fails; there is never an unprocessed subset.
func (s *DuckDBStore) BatchUpsert(ctx context.Context, recs []models.InventoryRecord) ([]models.InventoryRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	if err := checkBatch(recs); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO untagged_resources
		(arn, account_id, region, service, resource_type, last_seen, expire_at, scan_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err = stmt.ExecContext(ctx,
			rec.ARN,
			rec.AccountID,
			nullString(rec.Region),
			rec.Service,
			nullString(rec.ResourceType),
			rec.LastSeen,
			rec.ExpireAt,
			nullString(rec.ScanID),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert %s: %w", rec.ARN, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Records returns every stored row ordered by ARN
func (s *DuckDBStore) Records(ctx context.Context) ([]models.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT arn, account_id, COALESCE(region, ''), service, COALESCE(resource_type, ''),
		       last_seen, expire_at, COALESCE(scan_id, '')
		FROM untagged_resources
		ORDER BY arn, account_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InventoryRecord
	for rows.Next() {
		var rec models.InventoryRecord
		if err := rows.Scan(&rec.ARN, &rec.AccountID, &rec.Region, &rec.Service, &rec.ResourceType,
			&rec.LastSeen, &rec.ExpireAt, &rec.ScanID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeExpired deletes rows whose expiry is at or before now and returns how many were removed
func (s *DuckDBStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM untagged_resources WHERE expire_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
