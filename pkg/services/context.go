package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// maxSamplesInContext bounds how many sample values are rendered per column.
const maxSamplesInContext = 5

// BuildTableContext renders one table's extracted metadata as compact prompt
// context for the enrichment model.
func BuildTableContext(table *models.TableMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Table %s (~%d rows, entity: %s)\n",
		table.QualifiedName(), table.RowCount, table.EntityName())

	if table.Description != nil && *table.Description != "" {
		fmt.Fprintf(&b, "Current description: %s\n", *table.Description)
	}

	b.WriteString("Columns:\n")
	for i := range table.Columns {
		b.WriteString("- ")
		b.WriteString(ColumnContext(&table.Columns[i]))
		b.WriteString("\n")
	}

	return b.String()
}

// ColumnContext renders one column's metadata as a single dense line. Stored
// as the column's full context and embedded in enrichment prompts.
func ColumnContext(col *models.ColumnMetadata) string {
	var b strings.Builder

	b.WriteString(col.ColumnName)
	b.WriteString(" ")
	b.WriteString(col.DataType)

	if col.IsPrimaryKey {
		b.WriteString(" [PK]")
	}
	if col.NullRate > 0 {
		fmt.Fprintf(&b, ", nulls=%.0f%%", col.NullRate*100)
	}
	if col.DistinctCount > 0 {
		fmt.Fprintf(&b, ", distinct=%d", col.DistinctCount)
	}
	if col.PatternName != nil && col.PatternRate != nil {
		fmt.Fprintf(&b, ", pattern=%s(%.0f%%)", *col.PatternName, *col.PatternRate*100)
	}
	if col.ValueRange != nil {
		fmt.Fprintf(&b, ", range=%s", col.ValueRange.String())
	}
	if len(col.SampleValues) > 0 {
		samples := col.SampleValues
		if len(samples) > maxSamplesInContext {
			samples = samples[:maxSamplesInContext]
		}
		fmt.Fprintf(&b, ", samples: %s", strings.Join(samples, ", "))
	}
	if col.Description != nil && *col.Description != "" {
		fmt.Fprintf(&b, " -- %s", *col.Description)
	}

	return b.String()
}

// truncateContext cuts a rendered context to at most limit bytes, ending with
// a marker so the model knows the listing is partial.
func truncateContext(context string, limit int) string {
	const marker = "\n[truncated]\n"
	if len(context) <= limit {
		return context
	}
	if limit <= len(marker) {
		for limit > 0 && !utf8.RuneStart(context[limit]) {
			limit--
		}
		return context[:limit]
	}

	cut := limit - len(marker)
	// Cut on a line boundary when possible to avoid dangling half-columns;
	// a single long line is trimmed back to a rune boundary instead.
	if idx := strings.LastIndexByte(context[:cut], '\n'); idx > 0 {
		cut = idx
	} else {
		for cut > 0 && !utf8.RuneStart(context[cut]) {
			cut--
		}
	}
	return context[:cut] + marker
}
