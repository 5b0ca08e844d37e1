package conditions

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind tags the three condition shapes a document value can take.
type Kind int

const (
	KindEquality Kind = iota + 1
	KindMembership
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindMembership:
		return "membership"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Condition is one key of a trigger document. Only the fields for Kind are set.
type Condition struct {
	Key    string
	Kind   Kind
	Value  any
	Values []any
	Min    *float64
	Max    *float64
}

// Document is a parsed trigger-condition document. Conditions are sorted by
// key and ANDed.
type Document struct {
	Conditions []Condition
}

func (d Document) Empty() bool { return len(d.Conditions) == 0 }

// Keys returns condition keys in evaluation order.
func (d Document) Keys() []string {
	out := make([]string, 0, len(d.Conditions))
	for _, c := range d.Conditions {
		out = append(out, c.Key)
	}
	return out
}

// Parse decodes raw JSON. Empty input and JSON null are an empty document.
func Parse(raw []byte) (Document, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Document{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return Document{}, fmt.Errorf("condition document must be a JSON object: %w", err)
	}
	return ParseMap(m)
}

// ParseMap builds a document from an already decoded object.
func ParseMap(m map[string]any) (Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := Document{Conditions: make([]Condition, 0, len(keys))}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return Document{}, fmt.Errorf("condition key must not be empty")
		}
		c, err := parseCondition(k, m[k])
		if err != nil {
			return Document{}, err
		}
		doc.Conditions = append(doc.Conditions, c)
	}
	return doc, nil
}

func parseCondition(key string, v any) (Condition, error) {
	switch t := v.(type) {
	case map[string]any:
		c := Condition{Key: key, Kind: KindRange}
		for bk, bv := range t {
			n, ok := toNumber(bv)
			if !ok {
				return Condition{}, fmt.Errorf("condition %q: bound %q must be numeric, got %T", key, bk, bv)
			}
			switch bk {
			case "min":
				c.Min = &n
			case "max":
				c.Max = &n
			default:
				return Condition{}, fmt.Errorf("condition %q: unsupported range bound %q", key, bk)
			}
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return Condition{}, fmt.Errorf("condition %q: min %v exceeds max %v", key, *c.Min, *c.Max)
		}
		return c, nil
	case []any:
		vals := make([]any, 0, len(t))
		for _, item := range t {
			nv, err := normalizeScalar(item)
			if err != nil {
				return Condition{}, fmt.Errorf("condition %q: %w", key, err)
			}
			vals = append(vals, nv)
		}
		return Condition{Key: key, Kind: KindMembership, Values: vals}, nil
	case []string:
		vals := make([]any, 0, len(t))
		for _, s := range t {
			vals = append(vals, s)
		}
		return Condition{Key: key, Kind: KindMembership, Values: vals}, nil
	default:
		nv, err := normalizeScalar(v)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: %w", key, err)
		}
		return Condition{Key: key, Kind: KindEquality, Value: nv}, nil
	}
}

// normalizeScalar maps numbers to float64 and rejects nested structures.
func normalizeScalar(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case map[string]any, []any:
		return nil, fmt.Errorf("nested %T values are not supported", v)
	}
	if n, ok := toNumber(v); ok {
		return n, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// MarshalMap renders the document back into its wire form.
func (d Document) MarshalMap() map[string]any {
	out := make(map[string]any, len(d.Conditions))
	for _, c := range d.Conditions {
		switch c.Kind {
		case KindEquality:
			out[c.Key] = c.Value
		case KindMembership:
			out[c.Key] = c.Values
		case KindRange:
			r := map[string]any{}
			if c.Min != nil {
				r["min"] = *c.Min
			}
			if c.Max != nil {
				r["max"] = *c.Max
			}
			out[c.Key] = r
		}
	}
	return out
}
