package indexer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// RowSet is the raw result of an indexing-service query, one JSON object per row.
type RowSet []json.RawMessage

// ErrSchemaDrift matches every *SchemaError.
var ErrSchemaDrift = errors.New("upstream schema drift")

// SchemaError reports a row that does not match the expected record layout.
type SchemaError struct {
	Source string
	Row    int
	Field  string
	Err    error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s row %d: field %q: %v", e.Source, e.Row, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s row %d: missing field %q", e.Source, e.Row, e.Field)
	default:
		return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Err)
	}
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchemaDrift }

func (e *SchemaError) Unwrap() error { return e.Err }

// Decode converts rows into T, requiring every name in required to be present
// and non-null in each row.
func Decode[T any](source string, rows RowSet, required []string) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, &SchemaError{Source: source, Row: i, Err: fmt.Errorf("row is not an object: %w", err)}
		}
		for _, name := range required {
			v, ok := fields[name]
			if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				return nil, &SchemaError{Source: source, Row: i, Field: name}
			}
		}

		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			se := &SchemaError{Source: source, Row: i, Err: err}
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				se.Field = typeErr.Field
			}
			return nil, se
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRowSet(source string, result json.RawMessage) (RowSet, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RowSet{}, nil
	}
	var rows RowSet
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, &SchemaError{Source: source, Row: -1, Err: fmt.Errorf("result is not an array: %w", err)}
	}
	return rows, nil
}
