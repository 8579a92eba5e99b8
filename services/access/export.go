package access

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/upb/dataguardian/models"
)

// Format is an export encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Valid reports whether f is a supported format
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatJSON
}

// Document is a rendered export
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

type jsonExport struct {
	StreamID   string           `json:"stream_id"`
	Columns    []string         `json:"columns"`
	Aggregated bool             `json:"aggregated"`
	Suppressed int              `json:"suppressed"`
	Rows       []map[string]any `json:"rows"`
}

func render(result *Result, format Format) (*Document, error) {
	name := fmt.Sprintf("stream-%s.%s", result.Stream.ID, format)

	switch format {
	case FormatJSON:
		body, err := json.Marshal(jsonExport{
			StreamID:   result.Stream.ID.String(),
			Columns:    result.Data.Columns,
			Aggregated: result.Data.Aggregated,
			Suppressed: result.Data.Suppressed,
			Rows:       result.Data.Records(),
		})
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "application/json", Filename: name, Body: body}, nil
	default:
		body, err := renderCSV(result.Data)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "text/csv", Filename: name, Body: body}, nil
	}
}

// renderCSV writes a header row then one record per row; null cells are empty
func renderCSV(data *models.ExposedRows) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(data.Columns); err != nil {
		return nil, err
	}
	for _, row := range data.Rows {
		if err := w.Write(lo.Map(row, func(v any, _ int) string { return cast.ToString(v) })); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
