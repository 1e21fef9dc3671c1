package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

// Args wraps the decoded JSON argument object with typed accessors. Every
// accessor returns a ValidationError on a type mismatch so the dispatcher can
// surface a structured tool error.
type Args map[string]any

func (a Args) stringField(key string, required bool, fallback string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		if required {
			return "", &scholar.ValidationError{Field: key, Message: "required argument missing"}
		}
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &scholar.ValidationError{Field: key, Message: fmt.Sprintf("expected string, got %T", v)}
	}
	if required && strings.TrimSpace(s) == "" {
		return "", &scholar.ValidationError{Field: key, Message: "must not be empty"}
	}
	return s, nil
}

func (a Args) intField(key string, fallback, min, max int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback, nil
	}
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, &scholar.ValidationError{Field: key, Message: "expected integer"}
		}
		n = int(i)
	default:
		return 0, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("expected integer, got %T", v)}
	}
	if n < min || (max > 0 && n > max) {
		return 0, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("must be between %d and %d", min, max)}
	}
	return n, nil
}

func (a Args) floatField(key string, fallback, min, max float64) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback, nil
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, &scholar.ValidationError{Field: key, Message: "expected number"}
		}
		f = parsed
	default:
		return 0, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("expected number, got %T", v)}
	}
	if f < min || f > max {
		return 0, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("must be between %g and %g", min, max)}
	}
	return f, nil
}

func (a Args) boolField(key string, fallback bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("expected boolean, got %T", v)}
	}
	return b, nil
}

func (a Args) stringListField(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, &scholar.ValidationError{Field: key, Message: "expected a list of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	default:
		return nil, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("expected a list of strings, got %T", v)}
	}
}

// yearRangeField accepts either a two-element sequence [start, end] or a
// {start, end} mapping and canonicalizes to (min, max). Zero means unbounded.
func (a Args) yearRangeField(key string) (int, int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, 0, nil
	}
	toInt := func(item any, label string) (int, error) {
		switch t := item.(type) {
		case nil:
			return 0, nil
		case float64:
			return int(t), nil
		case int:
			return t, nil
		case json.Number:
			i, err := t.Int64()
			if err != nil {
				return 0, &scholar.ValidationError{Field: key, Message: label + " must be an integer"}
			}
			return int(i), nil
		default:
			return 0, &scholar.ValidationError{Field: key, Message: fmt.Sprintf("%s must be an integer, got %T", label, item)}
		}
	}

	var min, max int
	var err error
	switch t := v.(type) {
	case []any:
		if len(t) != 2 {
			return 0, 0, &scholar.ValidationError{Field: key, Message: "sequence form must have exactly two elements"}
		}
		if min, err = toInt(t[0], "start"); err != nil {
			return 0, 0, err
		}
		if max, err = toInt(t[1], "end"); err != nil {
			return 0, 0, err
		}
	case map[string]any:
		if min, err = toInt(t["start"], "start"); err != nil {
			return 0, 0, err
		}
		if max, err = toInt(t["end"], "end"); err != nil {
			return 0, 0, err
		}
	default:
		return 0, 0, &scholar.ValidationError{Field: key, Message: "expected [start, end] or {start, end}"}
	}
	if min != 0 && max != 0 && min > max {
		return 0, 0, &scholar.ValidationError{Field: key, Message: "start must not exceed end"}
	}
	return min, max, nil
}

// decodeField round-trips a raw argument through JSON into a typed value.
func decodeField(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
