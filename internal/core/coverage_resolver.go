package core

import (
	"fmt"
	"strings"
)

// CoverageSource identifies which upstream document a value came from.
// Listed in merge precedence order, highest first.
type CoverageSource int

const (
	SourceOptimal CoverageSource = iota
	SourcePDF
	SourceServiceProvider
	SourceInitial
)

// RawCoverage bundles the up-to-four coverage documents a provider may attach
// to one product. Any subset may be nil.
type RawCoverage struct {
	Optimal         CoverageDoc
	PDF             CoverageDoc
	ServiceProvider CoverageDoc
	Initial         CoverageDoc
}

func (r RawCoverage) inOrder() []CoverageDoc {
	return []CoverageDoc{r.Optimal, r.PDF, r.ServiceProvider, r.Initial}
}

// DisplayCoverage is one field formatted for rendering.
type DisplayCoverage struct {
	Field       string `json:"field"`
	Text        string `json:"text"`
	NotIncluded bool   `json:"notIncluded"`
	// Excluded controls exclusion styling (the red cross). An Undefined
	// field is neither a check nor a cross, so both flags stay false.
	Excluded bool `json:"excluded"`
}

// MergeCoverage folds the raw documents into a single one. For each field
// seen in any source, sources are walked in precedence order and the first
// informative value wins; Undefined values are skipped as "no answer yet".
// When no source is informative but at least one carries any value, the first
// value in precedence order is kept so the field is never silently dropped.
func MergeCoverage(raw RawCoverage) CoverageDoc {
	docs := raw.inOrder()

	merged := CoverageDoc{}
	for _, doc := range docs {
		for field := range doc {
			if _, done := merged[field]; done {
				continue
			}
			merged[field] = resolveField(docs, field)
		}
	}
	return merged
}

func resolveField(docs []CoverageDoc, field string) CoverageValue {
	var fallback *CoverageValue
	for _, doc := range docs {
		v, ok := doc[field]
		if !ok {
			continue
		}
		if v.Informative() {
			return v
		}
		if fallback == nil {
			vv := v
			fallback = &vv
		}
	}
	if fallback != nil {
		return *fallback
	}
	return Undefined()
}

// Format renders one coverage value for display.
func (v CoverageValue) Format() DisplayCoverage {
	d := DisplayCoverage{}
	switch v.Kind {
	case KindUndefined:
		// Unknown, not a denial: empty text, no check, no cross.
	case KindNotIncluded:
		d.Text = "not included"
		d.NotIncluded = true
		d.Excluded = true
	case KindUnlimited:
		d.Text = "unlimited"
	case KindCount:
		d.Text = fmt.Sprintf("%d", v.Count)
		if v.Unit != "" {
			d.Text += " " + v.Unit
		}
	case KindLimited:
		d.Text = FormatAmount(v.Amount) + " TL"
	case KindIncluded:
		d.Text = "included"
	case KindNested:
		// A bare descriptor has no direct rendering of its own.
		d.NotIncluded = true
		d.Excluded = true
	}
	return d
}

// Treatment-mode descriptor values for the health line. The descriptor lives
// in a separate nested field and encodes which treatment settings the policy
// covers.
const (
	FieldTreatmentMode = "treatmentMode"
	FieldInPatient     = "inPatientTreatment"
	FieldOutPatient    = "outPatientTreatment"

	treatmentInPatientOnly  = "IN_PATIENT"
	treatmentOutPatientOnly = "OUT_PATIENT"
	treatmentBoth           = "BOTH"
)

// derivedInclusion answers the in/out-patient question from the treatment
// mode descriptor when the direct field has no answer of its own.
func derivedInclusion(doc CoverageDoc, inPatient bool) (CoverageValue, bool) {
	mode, ok := doc[FieldTreatmentMode]
	if !ok || mode.Kind != KindNested {
		return CoverageValue{}, false
	}
	m := strings.ToUpper(mode.Nested["mode"])
	switch {
	case m == treatmentBoth:
		return Included(), true
	case m == treatmentInPatientOnly:
		if inPatient {
			return Included(), true
		}
		return NotIncluded(), true
	case m == treatmentOutPatientOnly:
		if inPatient {
			return NotIncluded(), true
		}
		return Included(), true
	}
	return CoverageValue{}, false
}

// FieldValue returns the effective value of one field in a merged document,
// applying the health-line derived-field rules: the direct value always wins
// when informative; only when it is absent or Undefined does the treatment
// descriptor decide.
func FieldValue(doc CoverageDoc, field string) CoverageValue {
	direct, ok := doc[field]
	if ok && direct.Informative() {
		return direct
	}

	switch field {
	case FieldInPatient:
		if v, derived := derivedInclusion(doc, true); derived {
			return v
		}
	case FieldOutPatient:
		if v, derived := derivedInclusion(doc, false); derived {
			return v
		}
	}

	if ok {
		return direct
	}
	return CoverageValue{Kind: KindNotIncluded}
}

// Headline renders the compact card view: the descriptor's headline fields
// only, in their configured order.
func Headline(doc CoverageDoc, line ProductLine) []DisplayCoverage {
	return renderFields(doc, line.HeadlineFields)
}

// FullCoverage renders the comparison view: the line's entire field universe
// in order, with fields absent from this product shown as not-included so
// every product exposes the same rows.
func FullCoverage(doc CoverageDoc, line ProductLine) []DisplayCoverage {
	return renderFields(doc, line.FieldUniverse)
}

func renderFields(doc CoverageDoc, fields []string) []DisplayCoverage {
	out := make([]DisplayCoverage, 0, len(fields))
	for _, f := range fields {
		v := FieldValue(doc, f)
		d := v.Format()
		d.Field = f
		out = append(out, d)
	}
	return out
}
