package services

import (
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/tokens"
)

// Batch is one enrichment unit: a group of tables whose combined context fits
// the model's input budget.
type Batch struct {
	Tables   []*models.TableMetadata
	Contexts []string

	// EstimatedTokens is the token estimate of the combined contexts.
	EstimatedTokens int

	// Truncated marks a single-table batch whose context alone exceeded the
	// token ceiling and was cut down to fit.
	Truncated bool
}

// BatchPlanner groups tables into enrichment batches. A batch never exceeds
// maxTables nor the token ceiling; a single table whose context alone blows
// the ceiling is placed alone with a truncated context rather than dropped.
type BatchPlanner struct {
	maxTables      int
	maxInputTokens int
	logger         *zap.Logger
}

// NewBatchPlanner creates a planner with the given limits.
func NewBatchPlanner(maxTables, maxInputTokens int, logger *zap.Logger) *BatchPlanner {
	return &BatchPlanner{
		maxTables:      maxTables,
		maxInputTokens: maxInputTokens,
		logger:         logger.Named("batch_planner"),
	}
}

// Plan packs tables into batches preserving catalog order.
func (p *BatchPlanner) Plan(tables []*models.TableMetadata) []Batch {
	var batches []Batch
	var current Batch

	flush := func() {
		if len(current.Tables) > 0 {
			batches = append(batches, current)
			current = Batch{}
		}
	}

	for _, table := range tables {
		context := BuildTableContext(table)
		cost := tokens.Estimate(context)

		if cost > p.maxInputTokens {
			// One table too large for any batch: truncate and isolate it.
			flush()

			charLimit := p.maxInputTokens * tokens.CharsPerToken
			truncated := truncateContext(context, charLimit)
			p.logger.Warn("table context exceeds token ceiling, truncating",
				zap.String("table", table.QualifiedName()),
				zap.Int("estimated_tokens", cost),
				zap.Int("max_input_tokens", p.maxInputTokens))

			batches = append(batches, Batch{
				Tables:          []*models.TableMetadata{table},
				Contexts:        []string{truncated},
				EstimatedTokens: tokens.Estimate(truncated),
				Truncated:       true,
			})
			continue
		}

		if len(current.Tables) >= p.maxTables || current.EstimatedTokens+cost > p.maxInputTokens {
			flush()
		}

		current.Tables = append(current.Tables, table)
		current.Contexts = append(current.Contexts, context)
		current.EstimatedTokens += cost
	}
	flush()

	for i := range batches {
		if ok, count, warning := tokens.CheckCount(batches[i].EstimatedTokens, p.maxInputTokens); ok && warning != "" {
			p.logger.Warn("batch close to token ceiling",
				zap.Int("batch", i+1),
				zap.Int("estimated_tokens", count),
				zap.String("detail", warning))
		}
	}

	return batches
}
