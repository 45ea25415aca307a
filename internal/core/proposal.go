package core

import "fmt"

type ProductState string

const (
	ProductStateWaiting ProductState = "WAITING"
	ProductStateActive  ProductState = "ACTIVE"
	ProductStateFailed  ProductState = "FAILED"
)

// CanTransitionTo enforces product-state monotonicity within one proposal:
// WAITING may become ACTIVE or FAILED; ACTIVE and FAILED are terminal.
// Re-emitting the same terminal state is allowed (later polls may carry
// richer coverage on an already ACTIVE product).
func (s ProductState) CanTransitionTo(next ProductState) bool {
	if s == next {
		return true
	}
	return s == ProductStateWaiting
}

// Terminal reports whether the state can no longer change.
func (s ProductState) Terminal() bool {
	return s == ProductStateActive || s == ProductStateFailed
}

// Product is one upstream insurer's priced offer within a proposal ("quote"
// in user-facing text). Proposals themselves live upstream; this side only
// ever holds their id and the asynchronously arriving products.
type Product struct {
	ID        string       `json:"id"`
	CompanyID string       `json:"companyId"`
	ProductID string       `json:"productId"`
	State     ProductState `json:"state"`
	Premiums  []Premium    `json:"premiums"`
	Coverage  RawCoverage  `json:"-"`
	ErrorMsg  string       `json:"errorMessage,omitempty"`
	PolicyID  string       `json:"policyId,omitempty"`
}

// InsuranceCompany is one row of the company directory.
type InsuranceCompany struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl"`
}

// ProcessedQuote is a Product after coverage resolution and premium
// formatting, ready for display. Derived on every poll tick, never stored.
type ProcessedQuote struct {
	Product             Product
	CompanyName         string
	CompanyLogoURL      string
	Coverage            CoverageDoc
	Headline            []DisplayCoverage
	FullCoverage        []DisplayCoverage
	Premiums            PremiumLedger
	SelectedInstallment int
}

// SelectedPremium returns the plan for the user's current selection.
func (q ProcessedQuote) SelectedPremium() (Premium, bool) {
	return q.Premiums.ForInstallments(q.SelectedInstallment)
}

// ProcessQuote resolves a raw product into its displayable form.
// selectedInstallment carries the user's sticky choice from earlier ticks;
// pass 0 (or a count no longer offered) to fall back to the default.
func ProcessQuote(p Product, line ProductLine, company InsuranceCompany, selectedInstallment int) ProcessedQuote {
	merged := MergeCoverage(p.Coverage)
	ledger := NewPremiumLedger(p.Premiums)

	selected := selectedInstallment
	if !ledger.Has(selected) {
		selected, _ = ledger.Default()
	}

	return ProcessedQuote{
		Product:             p,
		CompanyName:         company.Name,
		CompanyLogoURL:      company.LogoURL,
		Coverage:            merged,
		Headline:            Headline(merged, line),
		FullCoverage:        FullCoverage(merged, line),
		Premiums:            ledger,
		SelectedInstallment: selected,
	}
}

// ApplyStateUpdate folds a freshly polled copy of a product onto the known
// one, rejecting monotonicity regressions: a terminal state never reverts,
// but coverage documents and premiums on an unchanged-or-advancing state are
// taken from the newer payload.
func ApplyStateUpdate(known, fresh Product) (Product, error) {
	if !known.State.CanTransitionTo(fresh.State) {
		return known, fmt.Errorf("%w: product %s cannot go %s -> %s",
			ErrInvalidState, known.ID, known.State, fresh.State)
	}
	return fresh, nil
}
