package pdf

import (
	"encoding/json"
	"sort"
	"strconv"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
)

// ParseValueData converts decoded JSON or YAML value data into records.
// {"entries": [{...}, {...}]} is a batch of records; any other object is a
// single record mapping field names to values.
func ParseValueData(values map[string]any) ([]mapping.ValueRecord, error) {
	if values == nil {
		return nil, pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "value data is required")
	}

	if raw, ok := values["entries"]; ok && len(values) == 1 {
		if entries, ok := asList(raw); ok {
			if len(entries) == 0 {
				return nil, pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "entries cannot be empty")
			}
			records := make([]mapping.ValueRecord, 0, len(entries))
			for row, entry := range entries {
				obj, ok := entry.(map[string]any)
				if !ok {
					return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
						"entry %d must be an object of field values", row).WithRow(row)
				}
				rec, err := toRecord(obj, row)
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}
			return records, nil
		}
	}

	rec, err := toRecord(values, 0)
	if err != nil {
		return nil, err
	}
	return []mapping.ValueRecord{rec}, nil
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func toRecord(obj map[string]any, row int) (mapping.ValueRecord, error) {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	rec := make(mapping.ValueRecord, len(obj))
	for _, name := range names {
		s, err := valueString(obj[name])
		if err != nil {
			return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
				"value of %q in entry %d: %v", name, row, err).WithField(name).WithRow(row)
		}
		rec[name] = s
	}
	return rec, nil
}

type unsupportedValue struct{ v any }

func (u unsupportedValue) Error() string {
	return "unsupported value type " + strconv.Quote(typeName(u.v))
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return "unknown"
}

// valueString renders a scalar as the text to stamp
func valueString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case json.Number:
		return t.String(), nil
	}
	return "", unsupportedValue{v}
}
