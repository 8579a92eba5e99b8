package evaluator

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services/schema"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

type group struct {
	key  []any
	rows [][]any
}

// aggregate replaces row-level output with one row per group, ordered by
// ascending key. Without a grouping op every row falls into one group.
// Rows whose grouping date is null or unparsable belong to no group.
func aggregate(f *frame, dataset *models.Dataset, aggs []models.Aggregation) {
	var groupers, reducers []models.Aggregation
	for _, a := range aggs {
		if a.Op.IsGrouping() {
			groupers = append(groupers, a)
		} else {
			reducers = append(reducers, a)
		}
	}

	groups := make(map[string]*group)
	var keys []string
	if len(groupers) == 0 {
		groups[""] = &group{}
		keys = append(keys, "")
	}

rows:
	for _, row := range f.rows {
		key := make([]any, len(groupers))
		parts := make([]string, len(groupers))
		for i, g := range groupers {
			d, ok := schema.DateOf(row[f.index(g.Field)])
			if !ok {
				continue rows
			}
			parts[i] = bucketDate(d, g.Op)
			key[i] = parts[i]
		}

		k := strings.Join(parts, "\x1f")
		grp, ok := groups[k]
		if !ok {
			grp = &group{key: key}
			groups[k] = grp
			keys = append(keys, k)
		}
		grp.rows = append(grp.rows, row)
	}
	sort.Strings(keys)

	out := &frame{aggregated: true}
	for _, a := range groupers {
		col, _ := dataset.Column(a.Field)
		out.cols = append(out.cols, a.OutputName())
		out.types = append(out.types, models.ColumnTypeString)
		out.pii = append(out.pii, col.PII)
	}
	for _, a := range reducers {
		col, _ := dataset.Column(a.Field)
		t := models.ColumnTypeNumber
		if (a.Op == models.AggregationMin || a.Op == models.AggregationMax) && col.Type == models.ColumnTypeDate {
			t = models.ColumnTypeDate
		}
		out.cols = append(out.cols, a.OutputName())
		out.types = append(out.types, t)
		out.pii = append(out.pii, col.PII)
	}
	out.visible = len(out.cols)

	for _, k := range keys {
		grp := groups[k]
		row := make([]any, 0, out.visible)
		row = append(row, grp.key...)
		for _, a := range reducers {
			row = append(row, reduce(grp.rows, f.index(a.Field), a.Op))
		}
		out.rows = append(out.rows, row)
		out.counts = append(out.counts, len(grp.rows))
	}

	*f = *out
}

func bucketDate(d time.Time, op models.AggregationOp) string {
	if op == models.AggregationGroupByMonth {
		return d.Format(monthLayout)
	}
	return d.Format(dayLayout)
}

// reduce folds column idx of rows. Null and unparsable cells are skipped;
// sum of nothing is 0, avg/min/max of nothing is null.
func reduce(rows [][]any, idx int, op models.AggregationOp) any {
	if op == models.AggregationCount {
		n := 0
		for _, row := range rows {
			if row[idx] != nil {
				n++
			}
		}
		return float64(n)
	}

	// min and max also order dates
	var (
		dates []time.Time
		nums  []float64
	)
	for _, row := range rows {
		cell := row[idx]
		if n, ok := schema.NumberOf(cell); ok {
			nums = append(nums, n)
			continue
		}
		if d, ok := schema.DateOf(cell); ok {
			dates = append(dates, d)
		}
	}

	if len(dates) > 0 && len(nums) == 0 {
		switch op {
		case models.AggregationMin:
			return lo.MinBy(dates, func(a, b time.Time) bool { return a.Before(b) }).Format(dayLayout)
		case models.AggregationMax:
			return lo.MaxBy(dates, func(a, b time.Time) bool { return a.After(b) }).Format(dayLayout)
		}
	}

	switch op {
	case models.AggregationSum:
		return lo.Sum(nums)
	case models.AggregationAvg:
		if len(nums) == 0 {
			return nil
		}
		return lo.Sum(nums) / float64(len(nums))
	case models.AggregationMin:
		if len(nums) == 0 {
			return nil
		}
		return lo.Min(nums)
	case models.AggregationMax:
		if len(nums) == 0 {
			return nil
		}
		return lo.Max(nums)
	}
	return nil
}
