package conditions

import (
	"fmt"
)

// resolver yields the snapshot value for a key. ok=false means the key is
// not part of the snapshot.
type resolver func(s Snapshot) (value any, ok bool)

type fieldSpec struct {
	kinds   []Kind
	resolve resolver
	// neverValue decides the outcome when the underlying timestamp is unset.
	neverValue func(c Condition) bool
}

func (f fieldSpec) allows(k Kind) bool {
	for _, allowed := range f.kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

var allKinds = []Kind{KindEquality, KindMembership, KindRange}

var specialFields = map[string]fieldSpec{
	KeyCustomerAge: {
		kinds: []Kind{KindEquality, KindRange},
		resolve: func(s Snapshot) (any, bool) {
			return wholeDays(s.CreatedDate, s.Now), true
		},
	},
	KeyLastLogin: {
		kinds: []Kind{KindEquality, KindRange},
		resolve: func(s Snapshot) (any, bool) {
			if s.LastLogin == nil {
				return nil, true
			}
			return wholeDays(*s.LastLogin, s.Now), true
		},
		// Never logged in reads as infinitely long ago: only a pure lower
		// bound can be satisfied.
		neverValue: func(c Condition) bool {
			return c.Kind == KindRange && c.Min != nil && c.Max == nil
		},
	},
	KeyChurnRiskLevel:       {kinds: []Kind{KindEquality, KindMembership}, resolve: fieldResolver(KeyChurnRiskLevel)},
	KeyExpansionOpportunity: {kinds: []Kind{KindEquality, KindMembership}, resolve: fieldResolver(KeyExpansionOpportunity)},
	KeyHealthScore:          {kinds: []Kind{KindEquality, KindRange}, resolve: fieldResolver(KeyHealthScore)},
}

func fieldResolver(key string) resolver {
	return func(s Snapshot) (any, bool) {
		v, ok := s.Fields[key]
		return v, ok
	}
}

func specFor(key string) (fieldSpec, bool) {
	if spec, ok := specialFields[key]; ok {
		return spec, true
	}
	for _, f := range snapshotFields {
		if f == key {
			return fieldSpec{kinds: allKinds, resolve: fieldResolver(key)}, true
		}
	}
	return fieldSpec{}, false
}

// IsKnownKey reports whether key can be resolved against a customer snapshot.
func IsKnownKey(key string) bool {
	_, ok := specFor(key)
	return ok
}

var evaluators = map[Kind]func(actual any, c Condition) bool{
	KindEquality: func(actual any, c Condition) bool {
		return equal(actual, c.Value)
	},
	KindMembership: func(actual any, c Condition) bool {
		for _, v := range c.Values {
			if equal(actual, v) {
				return true
			}
		}
		return false
	},
	KindRange: func(actual any, c Condition) bool {
		n, ok := toNumber(actual)
		if !ok {
			return false
		}
		if c.Min != nil && n < *c.Min {
			return false
		}
		if c.Max != nil && n > *c.Max {
			return false
		}
		return true
	},
}

// Outcome is the detailed result of evaluating a document.
type Outcome struct {
	Matched bool
	// Failed is the first key that rejected the document.
	Failed string
	// Ignored lists keys the snapshot does not know. They do not reject.
	Ignored []string
}

// Evaluate ANDs every condition of doc against s.
func Evaluate(doc Document, s Snapshot) Outcome {
	out := Outcome{Matched: true}
	for _, c := range doc.Conditions {
		spec, ok := specFor(c.Key)
		if !ok {
			out.Ignored = append(out.Ignored, c.Key)
			continue
		}
		if !evalOne(spec, c, s) {
			out.Matched = false
			out.Failed = c.Key
			return out
		}
	}
	return out
}

// Matches is Evaluate reduced to a bool.
func Matches(doc Document, s Snapshot) bool {
	return Evaluate(doc, s).Matched
}

// MatchesRaw parses and evaluates in one step. A malformed document never
// matches and the parse error is returned for logging.
func MatchesRaw(raw []byte, s Snapshot) (Outcome, error) {
	doc, err := Parse(raw)
	if err != nil {
		return Outcome{}, err
	}
	return Evaluate(doc, s), nil
}

func evalOne(spec fieldSpec, c Condition, s Snapshot) bool {
	if !spec.allows(c.Kind) {
		return false
	}
	actual, ok := spec.resolve(s)
	if !ok {
		return true
	}
	if actual == nil && spec.neverValue != nil {
		return spec.neverValue(c)
	}
	eval, ok := evaluators[c.Kind]
	if !ok {
		return false
	}
	return eval(actual, c)
}

func equal(actual, want any) bool {
	if actual == nil || want == nil {
		return actual == nil && want == nil
	}
	if an, ok := toNumber(actual); ok {
		wn, ok := toNumber(want)
		return ok && an == wn
	}
	switch a := actual.(type) {
	case string:
		w, ok := want.(string)
		return ok && a == w
	case bool:
		w, ok := want.(bool)
		return ok && a == w
	default:
		return fmt.Sprint(actual) == fmt.Sprint(want)
	}
}
