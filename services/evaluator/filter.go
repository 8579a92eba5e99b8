package evaluator

import (
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services/schema"
)

// applyFilters keeps rows matching every filter, in declared order
func applyFilters(f *frame, filters []models.Filter) {
	for _, flt := range filters {
		idx := f.index(flt.Field)
		t := f.types[idx]
		match := matcher(flt, t)
		f.rows = lo.Filter(f.rows, func(row []any, _ int) bool {
			return match(row[idx])
		})
	}
}

// matcher compiles a filter for cells of type t. Null cells never match.
func matcher(flt models.Filter, t models.ColumnType) func(any) bool {
	switch flt.Op {
	case models.FilterOpEquals:
		return func(cell any) bool { return cell != nil && equal(cell, flt.Value, t) }

	case models.FilterOpIn:
		set := schema.ListOf(flt.Value)
		return func(cell any) bool {
			return cell != nil && lo.SomeBy(set, func(v string) bool { return equal(cell, v, t) })
		}

	case models.FilterOpContains:
		needle := schema.StringOf(flt.Value)
		return func(cell any) bool {
			return cell != nil && strings.Contains(schema.StringOf(cell), needle)
		}

	case models.FilterOpGT:
		return ordered(flt.Value, t, func(c int) bool { return c > 0 })
	case models.FilterOpGTE:
		return ordered(flt.Value, t, func(c int) bool { return c >= 0 })
	case models.FilterOpLT:
		return ordered(flt.Value, t, func(c int) bool { return c < 0 })
	case models.FilterOpLTE:
		return ordered(flt.Value, t, func(c int) bool { return c <= 0 })

	case models.FilterOpBetween, models.FilterOpRangeDate:
		if flt.Op == models.FilterOpRangeDate {
			t = models.ColumnTypeDate
		}
		lower := ordered(flt.Value, t, func(c int) bool { return c >= 0 })
		upper := ordered(flt.Value2, t, func(c int) bool { return c <= 0 })
		return func(cell any) bool { return lower(cell) && upper(cell) }
	}

	return func(any) bool { return false }
}

// ordered matches cells whose comparison against operand satisfies ok.
// Unparsable cells and operands never match.
func ordered(operand any, t models.ColumnType, ok func(int) bool) func(any) bool {
	return func(cell any) bool {
		if cell == nil {
			return false
		}
		c, comparable := compare(cell, operand, t)
		return comparable && ok(c)
	}
}

// compare returns the sign of cell - operand under type t
func compare(cell, operand any, t models.ColumnType) (int, bool) {
	switch t {
	case models.ColumnTypeNumber:
		a, ok1 := schema.NumberOf(cell)
		b, ok2 := schema.NumberOf(operand)
		if !ok1 || !ok2 {
			return 0, false
		}
		return sign(a - b), true

	case models.ColumnTypeDate:
		a, ok1 := schema.DateOf(cell)
		b, ok2 := schema.DateOf(operand)
		if !ok1 || !ok2 {
			return 0, false
		}
		return a.Compare(b), true

	default:
		if operand == nil {
			return 0, false
		}
		return strings.Compare(schema.StringOf(cell), schema.StringOf(operand)), true
	}
}

func equal(cell, operand any, t models.ColumnType) bool {
	switch t {
	case models.ColumnTypeNumber, models.ColumnTypeDate:
		c, ok := compare(cell, operand, t)
		return ok && c == 0
	case models.ColumnTypeBoolean:
		a, ok1 := cell.(bool)
		b, err := cast.ToBoolE(operand)
		return ok1 && err == nil && a == b
	default:
		return schema.StringOf(cell) == schema.StringOf(operand)
	}
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	}
	return 0
}
