package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// TableMetadata represents the extracted structural and statistical metadata
// for a single source table, together with the LLM-produced description once
// enrichment has run. Stored in catalog_tables with columns in catalog_columns.
type TableMetadata struct {
	ID         uuid.UUID `json:"id"`
	SchemaName string    `json:"schema_name"`
	TableName  string    `json:"table_name"`
	RowCount   int64     `json:"row_count"`

	// Columns are ordered by ordinal position in the source table.
	Columns []ColumnMetadata `json:"columns"`

	// Description is the natural-language summary produced by enrichment.
	// Nil until an enrichment job has processed this table.
	Description *string `json:"description,omitempty"`

	ExtractedAt time.Time  `json:"extracted_at"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty"`
}

// QualifiedName returns "schema.table", or just the table name when the
// schema is empty (e.g. sources without schema namespaces).
func (t *TableMetadata) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// EntityName derives a human-friendly entity name from the table name by
// singularizing it and replacing underscores ("order_items" -> "order item").
func (t *TableMetadata) EntityName() string {
	return strings.ReplaceAll(inflection.Singular(t.TableName), "_", " ")
}

// ColumnMetadata represents one column of an extracted table. The statistical
// fields are filled by the extraction pass; Description, Synonyms and
// FullContext are filled by enrichment.
type ColumnMetadata struct {
	ID         uuid.UUID `json:"id"`
	ColumnName string    `json:"column_name"`
	DataType   string    `json:"data_type"`

	// NullRate is the fraction of rows where this column is NULL (0.0-1.0).
	NullRate      float64 `json:"null_rate"`
	DistinctCount int64   `json:"distinct_count"`

	// SampleValues is a bounded sample of raw values rendered as strings.
	SampleValues []string `json:"sample_values,omitempty"`

	// ValueRange holds min/max for numeric and date columns, nil otherwise.
	ValueRange *ValueRange `json:"value_range,omitempty"`

	// PatternName and PatternRate record the best data-pattern match over the
	// sample (email, uuid, iso_date, ...). Both nil when no pattern cleared
	// the acceptance threshold.
	PatternName *string  `json:"pattern_name,omitempty"`
	PatternRate *float64 `json:"pattern_rate,omitempty"`

	Description     *string  `json:"description,omitempty"`
	Synonyms        []string `json:"synonyms,omitempty"`
	IsPrimaryKey    bool     `json:"is_primary_key"`
	OrdinalPosition int      `json:"ordinal_position"`

	// FullContext is a dense concatenation of stats and description used in
	// rich LLM-context mode. Built by enrichment, nil before.
	FullContext *string `json:"full_context,omitempty"`
}

// ValueRange holds the observed min/max of a column, rendered as strings so a
// single type covers numeric and date columns.
type ValueRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func (r *ValueRange) String() string {
	return fmt.Sprintf("%s..%s", r.Min, r.Max)
}

// SetPattern records a detected pattern on the column.
func (c *ColumnMetadata) SetPattern(name string, rate float64) {
	c.PatternName = &name
	c.PatternRate = &rate
}

// SetDescription sets the enrichment description, ignoring empty values so a
// model omission never erases a prior description.
func (c *ColumnMetadata) SetDescription(description string) {
	if description == "" {
		return
	}
	c.Description = &description
}

// MaxSampleValues caps the number of raw values sampled per column.
const MaxSampleValues = 20

// ColumnEnrichment carries the LLM-produced fields for one column of a table.
type ColumnEnrichment struct {
	ColumnName  string   `json:"column"`
	Description string   `json:"description"`
	Synonyms    []string `json:"synonyms,omitempty"`
}

// TableEnrichment carries the LLM-produced fields for one table.
type TableEnrichment struct {
	Table       string             `json:"table"`
	Description string             `json:"description"`
	Columns     []ColumnEnrichment `json:"columns,omitempty"`
}
