package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/farxc/rcs-reporting/internal/ordered"
	"github.com/farxc/rcs-reporting/internal/report"
)

var ErrInvalidNumber = errors.New("invalid number")

// NullFloat converts a form or row value to a nullable number. Empty
// strings and nil become NULL; any other value must parse as a number.
func NullFloat(v any) (sql.NullFloat64, error) {
	switch n := v.(type) {
	case nil:
		return sql.NullFloat64{}, nil
	case float64:
		return sql.NullFloat64{Float64: n, Valid: true}, nil
	case float32:
		return sql.NullFloat64{Float64: float64(n), Valid: true}, nil
	case int:
		return sql.NullFloat64{Float64: float64(n), Valid: true}, nil
	case int32:
		return sql.NullFloat64{Float64: float64(n), Valid: true}, nil
	case int64:
		return sql.NullFloat64{Float64: float64(n), Valid: true}, nil
	case json.Number:
		return NullFloat(n.String())
	case report.Numeric:
		return NullFloat(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return sql.NullFloat64{}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return sql.NullFloat64{}, fmt.Errorf("%w: %q", ErrInvalidNumber, n)
		}
		return sql.NullFloat64{Float64: f, Valid: true}, nil
	}
	return sql.NullFloat64{}, fmt.Errorf("%w: %v (%T)", ErrInvalidNumber, v, v)
}

// numbers keeps the first coercion error of a row.
type numbers struct {
	err error
}

func (n *numbers) parse(name string, v any) sql.NullFloat64 {
	f, err := NullFloat(v)
	if err != nil && n.err == nil {
		n.err = fmt.Errorf("%s: %w", name, err)
	}
	return f
}

// YesNo maps "Yes" to true and "No" to false; every other value is NULL.
func YesNo(s string) sql.NullBool {
	switch s {
	case "Yes":
		return sql.NullBool{Bool: true, Valid: true}
	case "No":
		return sql.NullBool{Bool: false, Valid: true}
	}
	return sql.NullBool{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// field reads the first of names present in row, matching case-insensitively
// when no exact key exists.
func field(row *ordered.Map, names ...string) any {
	for _, n := range names {
		if v, ok := row.Get(n); ok {
			return v
		}
	}
	var found any
	row.Range(func(k string, v any) bool {
		for _, n := range names {
			if strings.EqualFold(k, n) {
				found = v
				return false
			}
		}
		return true
	})
	return found
}

func fieldString(row *ordered.Map, names ...string) string {
	v := field(row, names...)
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
