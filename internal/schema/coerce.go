package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"trove/internal/apperror"
)

type fault struct {
	code apperror.Code
	msg  string
}

func faultf(code apperror.Code, format string, args ...any) *fault {
	return &fault{code: code, msg: fmt.Sprintf(format, args...)}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true}

// ValidateAndCoerce checks raw against the fields of t and returns the
// coerced attribute map. Keys not declared by t are dropped. Every violation
// is reported together in a single *apperror.ValidationError.
func ValidateAndCoerce(t *Template, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.Fields))
	ve := &apperror.ValidationError{}

	for _, f := range t.Fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				ve.Add(f.Name, apperror.CodeRequired, "%s is required", f.Name)
				continue
			}
			if f.Type() == TypeBoolean {
				out[f.Name] = false
			}
			continue
		}

		cv, flt := f.Kind.coerce(v)
		if flt != nil {
			ve.Add(f.Name, flt.code, "%s", flt.msg)
			continue
		}
		if isEmpty(cv) {
			if f.Required {
				ve.Add(f.Name, apperror.CodeRequired, "%s is required", f.Name)
			}
			continue
		}
		out[f.Name] = cv
	}

	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	}
	return false
}

// scalarString renders a scalar as text. ok is false for maps, slices and
// other composite values.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339), true
	}
	return "", false
}

func (k TextKind) coerce(raw any) (any, *fault) {
	s, ok := scalarString(raw)
	if !ok {
		return nil, faultf(apperror.CodeTypeMismatch, "expected %s, got %T", k.Type(), raw)
	}
	return s, nil
}

func (k NumberKind) coerce(raw any) (any, *fault) {
	var n float64
	switch x := raw.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, faultf(apperror.CodeTypeMismatch, "expected a number, got %q", x.String())
		}
		n = f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, faultf(apperror.CodeTypeMismatch, "expected a number, got %q", x)
		}
		n = f
	default:
		return nil, faultf(apperror.CodeTypeMismatch, "expected a number, got %T", raw)
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, faultf(apperror.CodeTypeMismatch, "expected a finite number")
	}
	if k.Currency && n < 0 {
		return nil, faultf(apperror.CodeOutOfRange, "amount must not be negative, got %g", n)
	}
	return n, nil
}

func (BooleanKind) coerce(raw any) (any, *fault) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(x))], nil
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	}
	return false, nil
}

func (DateKind) coerce(raw any) (any, *fault) {
	switch x := raw.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, faultf(apperror.CodeTypeMismatch, "expected a date, got %q", x)
	}
	return nil, faultf(apperror.CodeTypeMismatch, "expected a date, got %T", raw)
}

func (k SelectKind) coerce(raw any) (any, *fault) {
	s, ok := scalarString(raw)
	if !ok {
		return nil, faultf(apperror.CodeTypeMismatch, "expected one option, got %T", raw)
	}
	if s == "" {
		return nil, nil
	}
	for _, o := range k.Options {
		if o == s {
			return s, nil
		}
	}
	return nil, faultf(apperror.CodeInvalidOption, "%q is not one of %s", s, strings.Join(k.Options, ", "))
}

func (TagsKind) coerce(raw any) (any, *fault) {
	var parts []string
	switch x := raw.(type) {
	case []string:
		parts = x
	case []any:
		parts = make([]string, 0, len(x))
		for _, e := range x {
			s, ok := scalarString(e)
			if !ok {
				return nil, faultf(apperror.CodeTypeMismatch, "tags must be text, got %T", e)
			}
			parts = append(parts, s)
		}
	default:
		s, ok := scalarString(raw)
		if !ok {
			return nil, faultf(apperror.CodeTypeMismatch, "expected tags, got %T", raw)
		}
		parts = strings.Split(s, ",")
	}

	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags, nil
}
