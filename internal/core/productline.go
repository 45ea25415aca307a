package core

import (
	"fmt"
	"strconv"
	"strings"
)

// LineCode identifies one insurance product line. The engine is written once
// and parameterized by a ProductLine descriptor instead of being duplicated
// per line.
type LineCode string

const (
	LineMotorOwnDamage  LineCode = "kasko"
	LineMotorLiability  LineCode = "trafik"
	LineEarthquake      LineCode = "dask"
	LineHealth          LineCode = "tss"
	LineExcessLiability LineCode = "imm"
)

// ProductLine describes everything line-specific: which upstream product ids
// the agency may display, which coverage fields headline the card view, the
// full ordered field universe for comparison, the product-step input schema
// and the telemetry event names for funnel milestones.
type ProductLine struct {
	Code           LineCode
	DisplayName    string
	AllowedIDs     []string
	HeadlineFields []string
	FieldUniverse  []string

	// RequiredInputs are the product-step fields collected before submission.
	RequiredInputs []string
	// ValidateInput runs the line's synchronous local validation over the
	// collected product-step fields.
	ValidateInput func(inputs map[string]string) error

	// Telemetry event names, one per funnel milestone.
	EventFunnelStart  string
	EventOTPVerified  string
	EventProposal     string
	EventQuoteOutcome string
}

// Allows reports whether an upstream product id is on the line's allow-list.
func (l ProductLine) Allows(productID string) bool {
	for _, id := range l.AllowedIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Lines is the product-line registry.
type Lines struct {
	byCode map[LineCode]ProductLine
}

// NewLines builds the default registry covering all five lines.
func NewLines() *Lines {
	r := &Lines{byCode: map[LineCode]ProductLine{}}
	for _, l := range defaultLines() {
		r.byCode[l.Code] = l
	}
	return r
}

func (r *Lines) Get(code LineCode) (ProductLine, error) {
	l, ok := r.byCode[code]
	if !ok {
		return ProductLine{}, fmt.Errorf("%w: product line %q", ErrNotFound, code)
	}
	return l, nil
}

func (r *Lines) Codes() []LineCode {
	out := make([]LineCode, 0, len(r.byCode))
	for _, l := range defaultLines() {
		if _, ok := r.byCode[l.Code]; ok {
			out = append(out, l.Code)
		}
	}
	return out
}

func defaultLines() []ProductLine {
	return []ProductLine{
		{
			Code:           LineMotorOwnDamage,
			DisplayName:    "Motor Own Damage",
			AllowedIDs:     []string{"KSK-100", "KSK-110", "KSK-200", "KSK-310"},
			HeadlineFields: []string{"vehicleValue", "replacementVehicle", "roadAssistance"},
			FieldUniverse: []string{
				"vehicleValue", "replacementVehicle", "roadAssistance",
				"glassBreakage", "naturalDisaster", "theft", "personalAccident",
				"legalProtection",
			},
			RequiredInputs:    []string{"plate", "registrationSerial", "registrationNo"},
			ValidateInput:     validateMotorInput,
			EventFunnelStart:  "kasko_funnel_started",
			EventOTPVerified:  "kasko_otp_verified",
			EventProposal:     "kasko_proposal_created",
			EventQuoteOutcome: "kasko_quote_outcome",
		},
		{
			Code:           LineMotorLiability,
			DisplayName:    "Compulsory Motor Liability",
			AllowedIDs:     []string{"TRF-100", "TRF-120", "TRF-130"},
			HeadlineFields: []string{"bodilyInjuryPerPerson", "materialDamagePerVehicle", "legalProtection"},
			FieldUniverse: []string{
				"bodilyInjuryPerPerson", "bodilyInjuryPerAccident",
				"materialDamagePerVehicle", "materialDamagePerAccident",
				"legalProtection",
			},
			RequiredInputs:    []string{"plate", "registrationSerial", "registrationNo"},
			ValidateInput:     validateMotorInput,
			EventFunnelStart:  "trafik_funnel_started",
			EventOTPVerified:  "trafik_otp_verified",
			EventProposal:     "trafik_proposal_created",
			EventQuoteOutcome: "trafik_quote_outcome",
		},
		{
			Code:           LineEarthquake,
			DisplayName:    "Compulsory Earthquake",
			AllowedIDs:     []string{"DSK-100", "DSK-200"},
			HeadlineFields: []string{"buildingCoverage", "contentsCoverage", "debrisRemoval"},
			FieldUniverse: []string{
				"buildingCoverage", "contentsCoverage", "debrisRemoval",
				"temporaryAccommodation", "landslide",
			},
			RequiredInputs:    []string{"uavtCode", "squareMeters", "constructionYear"},
			ValidateInput:     validateEarthquakeInput,
			EventFunnelStart:  "dask_funnel_started",
			EventOTPVerified:  "dask_otp_verified",
			EventProposal:     "dask_proposal_created",
			EventQuoteOutcome: "dask_quote_outcome",
		},
		{
			Code:           LineHealth,
			DisplayName:    "Supplementary Health",
			AllowedIDs:     []string{"TSS-100", "TSS-150", "TSS-200", "TSS-250"},
			HeadlineFields: []string{FieldInPatient, FieldOutPatient, "standardRoom"},
			FieldUniverse: []string{
				FieldInPatient, FieldOutPatient, "standardRoom",
				"intensiveCare", "physiotherapy", "maternity",
				"checkUp", "emergencyCare",
			},
			RequiredInputs:    []string{"heightCm", "weightKg"},
			ValidateInput:     validateHealthInput,
			EventFunnelStart:  "tss_funnel_started",
			EventOTPVerified:  "tss_otp_verified",
			EventProposal:     "tss_proposal_created",
			EventQuoteOutcome: "tss_quote_outcome",
		},
		{
			Code:           LineExcessLiability,
			DisplayName:    "Excess Motor Liability",
			AllowedIDs:     []string{"IMM-100", "IMM-500"},
			HeadlineFields: []string{"combinedSingleLimit", "driverCoverage", "legalProtection"},
			FieldUniverse: []string{
				"combinedSingleLimit", "driverCoverage", "passengerCoverage",
				"legalProtection",
			},
			RequiredInputs:    []string{"plate", "registrationSerial", "registrationNo"},
			ValidateInput:     validateMotorInput,
			EventFunnelStart:  "imm_funnel_started",
			EventOTPVerified:  "imm_otp_verified",
			EventProposal:     "imm_proposal_created",
			EventQuoteOutcome: "imm_quote_outcome",
		},
	}
}

func validateMotorInput(inputs map[string]string) error {
	plate := strings.ToUpper(strings.ReplaceAll(inputs["plate"], " ", ""))
	if len(plate) < 5 || len(plate) > 8 {
		return fmt.Errorf("%w: invalid plate", ErrValidation)
	}
	province, err := strconv.Atoi(plate[:2])
	if err != nil || province < 1 || province > 81 {
		return fmt.Errorf("%w: invalid plate province code", ErrValidation)
	}
	if inputs["registrationSerial"] == "" || inputs["registrationNo"] == "" {
		return fmt.Errorf("%w: registration serial and number are required", ErrValidation)
	}
	return nil
}

func validateEarthquakeInput(inputs map[string]string) error {
	uavt := inputs["uavtCode"]
	if len(uavt) != 10 || !allDigits(uavt) {
		return fmt.Errorf("%w: address code must be 10 digits", ErrValidation)
	}
	m2, err := strconv.Atoi(inputs["squareMeters"])
	if err != nil || m2 < 10 || m2 > 999 {
		return fmt.Errorf("%w: square meters must be between 10 and 999", ErrValidation)
	}
	year, err := strconv.Atoi(inputs["constructionYear"])
	if err != nil || year < 1900 || year > 2100 {
		return fmt.Errorf("%w: invalid construction year", ErrValidation)
	}
	return nil
}

// Physiological bounds for the health line.
const (
	minHeightCm = 100
	maxHeightCm = 250
	minWeightKg = 30
	maxWeightKg = 250
)

func validateHealthInput(inputs map[string]string) error {
	h, err := strconv.Atoi(inputs["heightCm"])
	if err != nil || h < minHeightCm || h > maxHeightCm {
		return fmt.Errorf("%w: height must be between %d and %d cm", ErrValidation, minHeightCm, maxHeightCm)
	}
	w, err := strconv.Atoi(inputs["weightKg"])
	if err != nil || w < minWeightKg || w > maxWeightKg {
		return fmt.Errorf("%w: weight must be between %d and %d kg", ErrValidation, minWeightKg, maxWeightKg)
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
