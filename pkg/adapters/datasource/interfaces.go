// Package datasource defines the adapter contract for tabular sources the
// extractor can read structural metadata from.
package datasource

import "context"

// SchemaDiscoverer discovers schema metadata from a tabular source.
// Each implementation owns its connection and must be closed when done.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables (excludes system schemas).
	DiscoverTables(ctx context.Context) ([]TableInfo, error)

	// DiscoverColumns returns columns for a specific table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnInfo, error)

	// AnalyzeColumnStats gathers row, null, and distinct counts for columns.
	AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]ColumnStats, error)

	// SampleValues returns up to limit distinct non-null values from a column,
	// rendered as strings.
	SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error)

	// ValueRange returns the min and max of a column rendered as strings.
	// Returns nil for columns where ordering is meaningless or the table is empty.
	ValueRange(ctx context.Context, schemaName, tableName, columnName string) (*ValueRange, error)

	// Close releases the source connection.
	Close() error
}

// TableInfo describes a discovered table.
type TableInfo struct {
	SchemaName string
	TableName  string
	RowCount   int64
}

// ColumnInfo describes a discovered column.
type ColumnInfo struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	IsPrimaryKey    bool
	OrdinalPosition int
}

// ColumnStats holds per-column statistics gathered during extraction.
type ColumnStats struct {
	ColumnName    string
	RowCount      int64
	NonNullCount  int64
	DistinctCount int64
}

// NullRate returns the fraction of rows where the column is null.
func (s ColumnStats) NullRate() float64 {
	if s.RowCount == 0 {
		return 0
	}
	return float64(s.RowCount-s.NonNullCount) / float64(s.RowCount)
}

// ValueRange holds the observed min and max of a column as strings.
type ValueRange struct {
	Min string
	Max string
}
