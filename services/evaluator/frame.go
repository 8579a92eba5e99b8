package evaluator

import (
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services/schema"
)

// frame is the working table between stages. Columns past visible are
// auxiliary: filter, aggregation and quasi-identifier inputs that the
// rule does not expose.
type frame struct {
	cols    []string
	types   []models.ColumnType
	pii     []bool
	visible int
	rows    [][]any

	// counts holds the number of source rows behind each aggregated row
	counts     []int
	aggregated bool
}

func (f *frame) index(name string) int {
	for i, c := range f.cols {
		if c == name {
			return i
		}
	}
	return -1
}

// typedCell converts a raw cell to its column's Go representation.
// Null cells become nil; cells that do not parse stay strings.
func typedCell(raw string, t models.ColumnType) any {
	if schema.IsNull(raw) {
		return nil
	}
	cell := schema.CleanCell(raw)
	switch t {
	case models.ColumnTypeNumber:
		if f, ok := schema.ParseNumber(cell); ok {
			return f
		}
	case models.ColumnTypeBoolean:
		if b, ok := schema.ParseBool(cell); ok {
			return b
		}
	}
	return cell
}

// project builds the frame: rule fields in rule order, then auxiliary columns
func project(dataset *models.Dataset, table *schema.Table, rule *models.Rule) *frame {
	names := append([]string{}, rule.Fields...)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range auxiliaryFields(rule) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	f := &frame{
		cols:    names,
		types:   make([]models.ColumnType, len(names)),
		pii:     make([]bool, len(names)),
		visible: len(rule.Fields),
		rows:    make([][]any, 0, len(table.Rows)),
	}

	src := make([]int, len(names))
	for i, n := range names {
		col, _ := dataset.Column(n)
		f.types[i] = col.Type
		f.pii[i] = col.PII
		src[i] = table.Index(n)
	}

	for _, raw := range table.Rows {
		row := make([]any, len(names))
		for i, idx := range src {
			if idx < len(raw) {
				row[i] = typedCell(raw[idx], f.types[i])
			}
		}
		f.rows = append(f.rows, row)
	}
	return f
}

func auxiliaryFields(rule *models.Rule) []string {
	var out []string
	for _, flt := range rule.Filters {
		out = append(out, flt.Field)
	}
	for _, agg := range rule.Aggregations {
		out = append(out, agg.Field)
	}
	if rule.Obfuscation != nil {
		out = append(out, rule.Obfuscation.QuasiIdentifiers...)
	}
	return out
}

// referencedFields lists every column the rule touches
func referencedFields(rule *models.Rule) []string {
	return append(append([]string{}, rule.Fields...), auxiliaryFields(rule)...)
}

// dropColumns removes the columns at the given indexes, keeping order
func (f *frame) dropColumns(drop map[int]bool) {
	if len(drop) == 0 {
		return
	}
	keep := make([]int, 0, len(f.cols))
	visible := 0
	for i := range f.cols {
		if drop[i] {
			continue
		}
		keep = append(keep, i)
		if i < f.visible {
			visible++
		}
	}

	cols := make([]string, len(keep))
	types := make([]models.ColumnType, len(keep))
	pii := make([]bool, len(keep))
	for j, i := range keep {
		cols[j], types[j], pii[j] = f.cols[i], f.types[i], f.pii[i]
	}
	for r, row := range f.rows {
		out := make([]any, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		f.rows[r] = out
	}
	f.cols, f.types, f.pii, f.visible = cols, types, pii, visible
}

// exposed strips auxiliary columns
func (f *frame) exposed(suppressed int) *models.ExposedRows {
	rows := make([][]any, len(f.rows))
	for i, row := range f.rows {
		rows[i] = row[:f.visible:f.visible]
	}
	return &models.ExposedRows{
		Columns:    append([]string{}, f.cols[:f.visible]...),
		Rows:       rows,
		Aggregated: f.aggregated,
		Suppressed: suppressed,
	}
}
