package schema

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/models"
	"golang.org/x/sync/errgroup"
)

// Inferencer derives a column schema and statistics from a parsed table
type Inferencer struct {
	lexicon     []string
	sampleSize  int
	valueChecks bool
}

// NewInferencer builds an inferencer from the privacy policy
func NewInferencer(policy config.PrivacyPolicy) *Inferencer {
	return &Inferencer{
		lexicon:     lo.Map(policy.PIILexicon, func(s string, _ int) string { return strings.ToLower(s) }),
		sampleSize:  policy.SampleSize,
		valueChecks: policy.DetectValuePII,
	}
}

type columnResult struct {
	column   models.Column
	nulls    int
	distinct int
}

// Infer returns the schema in header order and full-table stats.
// Columns are analysed concurrently; ctx cancels outstanding work.
func (inf *Inferencer) Infer(ctx context.Context, table *Table) ([]models.Column, *models.DatasetStats, error) {
	results := make([]columnResult, len(table.Headers))

	g, ctx := errgroup.WithContext(ctx)
	for i, header := range table.Headers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = inf.inferColumn(header, i, table.Rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	stats := &models.DatasetStats{
		TotalRows:    len(table.Rows),
		NullCounts:   make(map[string]int, len(results)),
		UniqueCounts: make(map[string]int, len(results)),
		DataTypes:    make(map[string]models.ColumnType, len(results)),
	}
	columns := make([]models.Column, len(results))
	for i, r := range results {
		columns[i] = r.column
		stats.NullCounts[r.column.Name] = r.nulls
		stats.UniqueCounts[r.column.Name] = r.distinct
		stats.DataTypes[r.column.Name] = r.column.Type
	}
	return columns, stats, nil
}

func (inf *Inferencer) inferColumn(header string, idx int, rows [][]string) columnResult {
	samples := make([]string, 0, min(inf.sampleSize, len(rows)))
	distinct := make(map[string]struct{})
	nulls := 0

	for _, row := range rows {
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			nulls++
			continue
		}
		distinct[cell] = struct{}{}
		if len(samples) < inf.sampleSize {
			samples = append(samples, cell)
		}
	}

	return columnResult{
		column: models.Column{
			Name:     header,
			Type:     InferType(samples),
			PII:      inf.IsPII(header) || (inf.valueChecks && samplesLookPersonal(samples)),
			Nullable: len(samples) < len(rows),
			Unique:   len(lo.Uniq(samples)) == len(samples),
		},
		nulls:    nulls,
		distinct: len(distinct),
	}
}

// InferType applies the fixed priority number, date, boolean, string.
// An empty sample is a string column.
func InferType(samples []string) models.ColumnType {
	if len(samples) == 0 {
		return models.ColumnTypeString
	}
	if lo.EveryBy(samples, func(s string) bool { _, ok := ParseNumber(s); return ok }) {
		return models.ColumnTypeNumber
	}
	if lo.SomeBy(samples, func(s string) bool { _, ok := ParseDate(s); return ok }) {
		return models.ColumnTypeDate
	}
	if lo.EveryBy(samples, func(s string) bool { _, ok := ParseBool(s); return ok }) {
		return models.ColumnTypeBoolean
	}
	return models.ColumnTypeString
}

// IsPII reports whether the header contains a lexicon term, case-insensitively
func (inf *Inferencer) IsPII(header string) bool {
	lower := strings.ToLower(header)
	return lo.SomeBy(inf.lexicon, func(term string) bool {
		return term != "" && strings.Contains(lower, term)
	})
}
