package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/upb/dataguardian/repositories"
)

// jsonb marshals v for a JSONB column; nil pointers become SQL NULL
func jsonb(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

// jsonbScanner decodes a JSONB column into dest. NULL leaves dest untouched.
type jsonbScanner struct {
	dest any
}

func (s jsonbScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s.dest)
	case string:
		return json.Unmarshal([]byte(v), s.dest)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
}

func scanJSON(dest any) sql.Scanner {
	return jsonbScanner{dest: dest}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

const uniqueViolation = "23505"

// mapError translates driver errors into repository sentinels
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectAffected returns ErrNotFound when an UPDATE or DELETE matched nothing
func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	return nil
}
