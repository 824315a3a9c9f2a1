// Package repositories provides data access for the catalog store.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/database"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// CatalogRepository provides data access for extracted table metadata.
type CatalogRepository interface {
	// UpsertTable creates or updates one table and its columns from an
	// extraction pass. Existing descriptions survive re-extraction.
	UpsertTable(ctx context.Context, table *models.TableMetadata) error

	// ListTables returns all cataloged tables with their columns.
	ListTables(ctx context.Context) ([]*models.TableMetadata, error)

	// GetTablesByIDs returns the tables with the given IDs, with columns.
	GetTablesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TableMetadata, error)

	// ApplyEnrichment merges LLM-produced descriptions into a table and its
	// columns. Empty descriptions are ignored so an omission never erases a
	// prior value.
	ApplyEnrichment(ctx context.Context, tableID uuid.UUID, enrichment *models.TableEnrichment) error
}

type catalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *database.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

var _ CatalogRepository = (*catalogRepository)(nil)

func (r *catalogRepository) UpsertTable(ctx context.Context, table *models.TableMetadata) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()

	const tableQuery = `
		INSERT INTO catalog_tables (schema_name, table_name, row_count, extracted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (schema_name, table_name)
		DO UPDATE SET
			row_count = EXCLUDED.row_count,
			extracted_at = EXCLUDED.extracted_at
		RETURNING id`

	err = tx.QueryRow(ctx, tableQuery,
		table.SchemaName, table.TableName, table.RowCount, now,
	).Scan(&table.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert table: %w", err)
	}
	table.ExtractedAt = now

	const columnQuery = `
		INSERT INTO catalog_columns (
			table_id, column_name, data_type, is_primary_key,
			null_rate, distinct_count, sample_values, value_min, value_max,
			pattern_name, pattern_rate, full_context, ordinal_position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (table_id, column_name)
		DO UPDATE SET
			data_type = EXCLUDED.data_type,
			is_primary_key = EXCLUDED.is_primary_key,
			null_rate = EXCLUDED.null_rate,
			distinct_count = EXCLUDED.distinct_count,
			sample_values = EXCLUDED.sample_values,
			value_min = EXCLUDED.value_min,
			value_max = EXCLUDED.value_max,
			pattern_name = EXCLUDED.pattern_name,
			pattern_rate = EXCLUDED.pattern_rate,
			full_context = EXCLUDED.full_context,
			ordinal_position = EXCLUDED.ordinal_position
		RETURNING id`

	for i := range table.Columns {
		col := &table.Columns[i]

		samples, err := json.Marshal(col.SampleValues)
		if err != nil {
			return fmt.Errorf("failed to marshal sample values: %w", err)
		}

		var valueMin, valueMax *string
		if col.ValueRange != nil {
			valueMin = &col.ValueRange.Min
			valueMax = &col.ValueRange.Max
		}

		err = tx.QueryRow(ctx, columnQuery,
			table.ID, col.ColumnName, col.DataType, col.IsPrimaryKey,
			col.NullRate, col.DistinctCount, samples, valueMin, valueMax,
			col.PatternName, col.PatternRate, col.FullContext, col.OrdinalPosition,
		).Scan(&col.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert column %s: %w", col.ColumnName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert transaction: %w", err)
	}
	return nil
}

func (r *catalogRepository) ListTables(ctx context.Context) ([]*models.TableMetadata, error) {
	return r.queryTables(ctx, `
		SELECT id, schema_name, table_name, row_count, description, extracted_at, enriched_at
		FROM catalog_tables
		ORDER BY schema_name, table_name`)
}

func (r *catalogRepository) GetTablesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TableMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryTables(ctx, `
		SELECT id, schema_name, table_name, row_count, description, extracted_at, enriched_at
		FROM catalog_tables
		WHERE id = ANY($1)
		ORDER BY schema_name, table_name`, ids)
}

func (r *catalogRepository) queryTables(ctx context.Context, query string, args ...any) ([]*models.TableMetadata, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		if err := rows.Scan(&t.ID, &t.SchemaName, &t.TableName, &t.RowCount,
			&t.Description, &t.ExtractedAt, &t.EnrichedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	for _, t := range tables {
		columns, err := r.loadColumns(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Columns = columns
	}

	return tables, nil
}

func (r *catalogRepository) loadColumns(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error) {
	const query = `
		SELECT id, column_name, data_type, is_primary_key, null_rate,
		       distinct_count, sample_values, value_min, value_max,
		       pattern_name, pattern_rate, description, synonyms, full_context,
		       ordinal_position
		FROM catalog_columns
		WHERE table_id = $1
		ORDER BY ordinal_position`

	rows, err := r.db.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		var samples, synonyms []byte
		var valueMin, valueMax *string

		if err := rows.Scan(&c.ID, &c.ColumnName, &c.DataType, &c.IsPrimaryKey,
			&c.NullRate, &c.DistinctCount, &samples, &valueMin, &valueMax,
			&c.PatternName, &c.PatternRate, &c.Description, &synonyms,
			&c.FullContext, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		if len(samples) > 0 {
			if err := json.Unmarshal(samples, &c.SampleValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sample values: %w", err)
			}
		}
		if len(synonyms) > 0 {
			if err := json.Unmarshal(synonyms, &c.Synonyms); err != nil {
				return nil, fmt.Errorf("failed to unmarshal synonyms: %w", err)
			}
		}
		if valueMin != nil && valueMax != nil {
			c.ValueRange = &models.ValueRange{Min: *valueMin, Max: *valueMax}
		}

		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns: %w", err)
	}

	return columns, nil
}

func (r *catalogRepository) ApplyEnrichment(ctx context.Context, tableID uuid.UUID, enrichment *models.TableEnrichment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrichment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// NULLIF guards against the model returning an empty description: the
	// existing value wins over an empty replacement.
	const tableQuery = `
		UPDATE catalog_tables
		SET description = COALESCE(NULLIF($2, ''), description),
		    enriched_at = $3
		WHERE id = $1`

	tag, err := tx.Exec(ctx, tableQuery, tableID, enrichment.Description, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update table description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
	}

	const columnQuery = `
		UPDATE catalog_columns
		SET description = COALESCE(NULLIF($3, ''), description),
		    synonyms = COALESCE($4, synonyms)
		WHERE table_id = $1 AND column_name = $2`

	for _, col := range enrichment.Columns {
		var synonyms []byte
		if len(col.Synonyms) > 0 {
			synonyms, err = json.Marshal(col.Synonyms)
			if err != nil {
				return fmt.Errorf("failed to marshal synonyms: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, columnQuery, tableID, col.ColumnName, col.Description, synonyms); err != nil {
			return fmt.Errorf("failed to update column %s: %w", col.ColumnName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrichment transaction: %w", err)
	}
	return nil
}

// mapNotFound converts pgx.ErrNoRows into the shared not-found sentinel.
func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}
