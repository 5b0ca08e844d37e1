package conditions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema describes the wire shape: an object whose values are a
// scalar, a list of scalars or a {min,max} range.
const documentSchema = `{
  "type": "object",
  "additionalProperties": {
    "oneOf": [
      {"type": ["string", "number", "boolean", "null"]},
      {"type": "array", "items": {"type": ["string", "number", "boolean", "null"]}},
      {
        "type": "object",
        "additionalProperties": false,
        "properties": {"min": {"type": "number"}, "max": {"type": "number"}}
      }
    ]
  }
}`

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ValidationError is a single field-level problem in a condition document.
type ValidationError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Validate checks raw against the wire schema and the snapshot key table.
// Keys the snapshot does not know are reported so operator typos surface at
// definition time instead of silently matching.
func Validate(raw []byte) []ValidationError {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	res, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return []ValidationError{{Field: "(root)", Description: err.Error()}}
	}
	if !res.Valid() {
		out := make([]ValidationError, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			out = append(out, ValidationError{Field: e.Field(), Description: e.Description()})
		}
		return out
	}

	doc, err := Parse([]byte(trimmed))
	if err != nil {
		return []ValidationError{{Field: "(root)", Description: err.Error()}}
	}
	return checkKeys(doc)
}

// ValidateMap is Validate for a decoded document.
func ValidateMap(m map[string]any) []ValidationError {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return []ValidationError{{Field: "(root)", Description: err.Error()}}
	}
	return Validate(raw)
}

func checkKeys(doc Document) []ValidationError {
	var out []ValidationError
	for _, c := range doc.Conditions {
		spec, ok := specFor(c.Key)
		if !ok {
			out = append(out, ValidationError{Field: c.Key, Description: "unknown condition key; known keys: " + strings.Join(KnownKeys(), ", ")})
			continue
		}
		if !spec.allows(c.Kind) {
			out = append(out, ValidationError{Field: c.Key, Description: fmt.Sprintf("%s condition not supported for this key", c.Kind)})
		}
	}
	return out
}

// KnownKeys lists every key a document may reference, sorted.
func KnownKeys() []string {
	seen := map[string]struct{}{}
	for k := range specialFields {
		seen[k] = struct{}{}
	}
	for _, k := range snapshotFields {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
