package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/upb/dataguardian/services"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is parsed tabular input. Every row has len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Index returns the position of header, or -1
func (t *Table) Index(header string) int {
	for i, h := range t.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Parse reads CSV bytes with a header row. Blank lines are skipped.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, services.NewParseError("input is not valid UTF-8", 0, nil)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = 0 // header width is enforced on every row
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.NewParseError("input has no header row", 0, nil)
		}
		return nil, parseFailure(err)
	}

	headers := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		h = CleanCell(h)
		if h == "" {
			return nil, services.NewParseError("header has an empty column name", 1, nil).WithDetail("column", i)
		}
		if _, dup := seen[h]; dup {
			return nil, services.NewParseError("duplicate column name "+h, 1, nil)
		}
		seen[h] = struct{}{}
		headers[i] = h
	}

	table := &Table{Headers: headers, Rows: make([][]string, 0)}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseFailure(err)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func parseFailure(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		msg := perr.Err.Error()
		if errors.Is(perr.Err, csv.ErrFieldCount) {
			msg = "row has a different number of columns than the header"
		}
		return services.NewParseError(msg, perr.Line, err)
	}
	return services.NewParseError("unreadable input", 0, err)
}

// ContentHash is the hex SHA-256 of the source bytes
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsNull reports whether a cell holds no value
func IsNull(cell string) bool {
	return strings.TrimSpace(cell) == ""
}
