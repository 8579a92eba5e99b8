package models

// ExposedRows is the privacy-constrained result of evaluating a rule.
// Each row holds one value per entry in Columns; nil is a null cell.
type ExposedRows struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	Aggregated bool     `json:"aggregated"`
	Suppressed int      `json:"suppressed"` // rows or groups removed by k-anonymity
}

// Records returns the rows keyed by column name
func (e *ExposedRows) Records() []map[string]any {
	out := make([]map[string]any, 0, len(e.Rows))
	for _, row := range e.Rows {
		rec := make(map[string]any, len(e.Columns))
		for i, col := range e.Columns {
			rec[col] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// Limit truncates the result to at most n rows. n <= 0 keeps everything.
func (e *ExposedRows) Limit(n int) *ExposedRows {
	if n <= 0 || len(e.Rows) <= n {
		return e
	}
	c := *e
	c.Rows = e.Rows[:n]
	return &c
}
