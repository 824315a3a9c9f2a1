package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
)

// SchemaDiscoverer implements datasource.SchemaDiscoverer for SQL Server.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer creates a SQL Server schema discoverer.
// If logger is nil, a no-op logger is used.
func NewSchemaDiscoverer(ctx context.Context, cfg *datasource.Config, logger *zap.Logger) (*SchemaDiscoverer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", buildConnectionURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}

	return &SchemaDiscoverer{
		db:     db,
		logger: logger.Named("mssql_discoverer"),
	}, nil
}

// Close releases the source connection.
func (s *SchemaDiscoverer) Close() error {
	return s.db.Close()
}

// DiscoverTables returns all user tables (excludes system schemas).
func (s *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableInfo, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    SUM(p.rows) AS row_count
	FROM sys.tables t
	INNER JOIN sys.partitions p ON t.object_id = p.object_id
	WHERE p.index_id IN (0, 1)  -- Heap or clustered index
	  AND t.is_ms_shipped = 0   -- Exclude system tables
	GROUP BY t.schema_id, t.name
	ORDER BY table_schema, table_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableInfo
	for rows.Next() {
		var t datasource.TableInfo
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a specific table in ordinal order.
func (s *SchemaDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnInfo, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    c.column_id AS ordinal_position,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnInfo
	for rows.Next() {
		var col datasource.ColumnInfo
		var isNullable, isPrimary int

		if err := rows.Scan(&col.ColumnName, &col.DataType, &isNullable, &col.OrdinalPosition, &isPrimary); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}

		col.IsNullable = isNullable == 1
		col.IsPrimaryKey = isPrimary == 1
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}

// AnalyzeColumnStats gathers row, null, and distinct counts for columns.
// A failing column yields zero values instead of failing the table.
func (s *SchemaDiscoverer) AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]datasource.ColumnStats, error) {
	if len(columnNames) == 0 {
		return nil, nil
	}

	tableRef := qualifiedTableName(schemaName, tableName)

	var stats []datasource.ColumnStats
	for _, colName := range columnNames {
		quotedCol := quoteName(colName)

		query := fmt.Sprintf(`
		SET NOCOUNT ON;
		SELECT
		    COUNT(*) AS row_count,
		    COUNT(%s) AS non_null_count,
		    COUNT(DISTINCT %s) AS distinct_count
		FROM %s WITH (NOLOCK)
		`, quotedCol, quotedCol, tableRef)

		var st datasource.ColumnStats
		st.ColumnName = colName

		row := s.db.QueryRowContext(ctx, query)
		if err := row.Scan(&st.RowCount, &st.NonNullCount, &st.DistinctCount); err != nil {
			s.logger.Warn("failed to analyze column stats, using zero values",
				zap.String("schema", schemaName),
				zap.String("table", tableName),
				zap.String("column", colName),
				zap.Error(err))
			st.RowCount = 0
			st.NonNullCount = 0
			st.DistinctCount = 0
		}

		stats = append(stats, st)
	}

	return stats, nil
}

// SampleValues returns up to limit distinct non-null values rendered as text.
func (s *SchemaDiscoverer) SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	tableRef := qualifiedTableName(schemaName, tableName)
	quotedCol := quoteName(columnName)

	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(MAX)) AS val
	FROM %s WITH (NOLOCK)
	WHERE %s IS NOT NULL
	ORDER BY val
	`, limit, quotedCol, tableRef, quotedCol)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}

	return values, nil
}

// ValueRange returns the min and max of a column as text, or nil when the
// column has no non-null values or its type has no ordering.
func (s *SchemaDiscoverer) ValueRange(ctx context.Context, schemaName, tableName, columnName string) (*datasource.ValueRange, error) {
	tableRef := qualifiedTableName(schemaName, tableName)
	quotedCol := quoteName(columnName)

	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT CAST(MIN(%s) AS NVARCHAR(MAX)), CAST(MAX(%s) AS NVARCHAR(MAX))
	FROM %s WITH (NOLOCK)
	WHERE %s IS NOT NULL
	`, quotedCol, quotedCol, tableRef, quotedCol)

	var minVal, maxVal sql.NullString
	row := s.db.QueryRowContext(ctx, query)
	if err := row.Scan(&minVal, &maxVal); err != nil {
		s.logger.Debug("value range unavailable",
			zap.String("table", tableName),
			zap.String("column", columnName),
			zap.Error(err))
		return nil, nil
	}

	if !minVal.Valid || !maxVal.Valid {
		return nil, nil
	}
	return &datasource.ValueRange{Min: minVal.String, Max: maxVal.String}, nil
}
