package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// CoverageKind is the closed set of shapes a coverage field can take once
// decoded. Upstream providers send a zoo of representations ($type-tagged
// objects, bare primitives, nested descriptors); they are all normalized into
// this taxonomy exactly once, at the JSON boundary.
type CoverageKind int

const (
	// KindUndefined means the provider has not answered yet (or sent
	// something unparseable). It renders as neither included nor excluded.
	KindUndefined CoverageKind = iota
	KindNotIncluded
	KindUnlimited
	KindCount
	KindLimited
	KindIncluded
	KindNested
)

// CoverageValue is one decoded coverage field.
type CoverageValue struct {
	Kind   CoverageKind
	Count  int64             // KindCount
	Amount float64           // KindLimited
	Unit   string            // optional unit suffix for KindCount
	Nested map[string]string // KindNested, e.g. a treatment-mode descriptor
}

// CoverageDoc is one named coverage document as delivered by a single source.
type CoverageDoc map[string]CoverageValue

func Undefined() CoverageValue          { return CoverageValue{Kind: KindUndefined} }
func NotIncluded() CoverageValue        { return CoverageValue{Kind: KindNotIncluded} }
func Unlimited() CoverageValue          { return CoverageValue{Kind: KindUnlimited} }
func Included() CoverageValue           { return CoverageValue{Kind: KindIncluded} }
func CountOf(n int64) CoverageValue     { return CoverageValue{Kind: KindCount, Count: n} }
func LimitOf(amt float64) CoverageValue { return CoverageValue{Kind: KindLimited, Amount: amt} }

// Informative reports whether the value carries a real answer. Undefined is
// the only uninformative kind; a definitive "not included" is an answer.
func (v CoverageValue) Informative() bool {
	return v.Kind != KindUndefined
}

// typeTag maps the upstream $type strings onto kinds. Several aliases exist
// because the four coverage sources were built by different provider teams.
var typeTag = map[string]CoverageKind{
	"UNDEFINED":    KindUndefined,
	"NOT_INCLUDED": KindNotIncluded,
	"EXCLUDED":     KindNotIncluded,
	"NOT_COVERED":  KindNotIncluded,
	"LIMITLESS":    KindUnlimited,
	"UNLIMITED":    KindUnlimited,
	"NUMBER":       KindCount,
	"COUNT":        KindCount,
	"DECIMAL":      KindLimited,
	"LIMITED":      KindLimited,
	"INCLUDED":     KindIncluded,
	"COVERED":      KindIncluded,
}

// UnmarshalJSON decodes any of the accepted upstream shapes:
//
//   - {"$type":"DECIMAL","value":1500.0}
//   - {"$type":"COUNT","count":3,"unit":"sessions"}
//   - true / false
//   - 3 (integer -> count), 1500.5 (fraction -> limit)
//   - "UNLIMITED" / "NOT_INCLUDED" / free text
//   - {"inpatient":"true","outpatient":"false"} (nested descriptor)
//
// Unknown object shapes fall back to their "value" sub-field when present,
// otherwise decode as NotIncluded.
func (v *CoverageValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = Undefined()
		return nil
	}

	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		if b {
			*v = Included()
		} else {
			*v = NotIncluded()
		}
		return nil

	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = valueFromString(s)
		return nil

	case '{':
		return v.unmarshalObject(data)

	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("coverage value: unsupported shape %q", trimmed)
		}
		if f == float64(int64(f)) {
			*v = CountOf(int64(f))
		} else {
			*v = LimitOf(f)
		}
		return nil
	}
}

func (v *CoverageValue) unmarshalObject(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if tag, ok := raw["$type"]; ok {
		var name string
		if err := json.Unmarshal(tag, &name); err != nil {
			return err
		}
		kind, known := typeTag[strings.ToUpper(name)]
		if !known {
			// Unrecognized tag: honor a value sub-field, else count as
			// not included.
			if inner, ok := raw["value"]; ok {
				return v.UnmarshalJSON(inner)
			}
			*v = NotIncluded()
			return nil
		}
		out := CoverageValue{Kind: kind}
		switch kind {
		case KindCount:
			if err := pickNumber(raw, &out.Count, "count", "value", "number"); err != nil {
				return err
			}
			if u, ok := raw["unit"]; ok {
				_ = json.Unmarshal(u, &out.Unit)
			}
		case KindLimited:
			if err := pickFloat(raw, &out.Amount, "value", "amount", "limit"); err != nil {
				return err
			}
		}
		*v = out
		return nil
	}

	// Nested structured descriptor: all-string object without a $type tag.
	nested := map[string]string{}
	if err := json.Unmarshal(data, &nested); err == nil && len(nested) > 0 {
		*v = CoverageValue{Kind: KindNested, Nested: nested}
		return nil
	}

	// Unknown shape: honor a "value" sub-field if one exists.
	if inner, ok := raw["value"]; ok {
		return v.UnmarshalJSON(inner)
	}
	*v = NotIncluded()
	return nil
}

func valueFromString(s string) CoverageValue {
	if kind, ok := typeTag[strings.ToUpper(strings.TrimSpace(s))]; ok {
		switch kind {
		case KindCount, KindLimited:
			// A bare tag name with no quantity carries no answer.
			return Undefined()
		}
		return CoverageValue{Kind: kind}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return CountOf(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return LimitOf(f)
	}
	if strings.TrimSpace(s) == "" {
		return Undefined()
	}
	// Free-text coverage descriptions count as present.
	return Included()
}

func pickNumber(raw map[string]json.RawMessage, dst *int64, keys ...string) error {
	for _, k := range keys {
		if msg, ok := raw[k]; ok {
			var f float64
			if err := json.Unmarshal(msg, &f); err != nil {
				return err
			}
			*dst = int64(f)
			return nil
		}
	}
	return nil
}

func pickFloat(raw map[string]json.RawMessage, dst *float64, keys ...string) error {
	for _, k := range keys {
		if msg, ok := raw[k]; ok {
			return json.Unmarshal(msg, dst)
		}
	}
	return nil
}
