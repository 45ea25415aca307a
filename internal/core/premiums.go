package core

import (
	"fmt"
	"sort"
	"strings"
)

// Premium is one installment plan as priced by an upstream provider.
// Immutable once returned.
type Premium struct {
	InstallmentCount int     `json:"installmentCount"`
	NetAmount        float64 `json:"netAmount"`
	GrossAmount      float64 `json:"grossAmount"`
	Currency         string  `json:"currency"`
	Commission       float64 `json:"commission"`
	ProposalRef      string  `json:"proposalRef"`
	InstallmentRef   string  `json:"installmentRef"`
}

// PremiumLedger holds the de-duplicated installment plans of one product,
// keyed by installment count. First occurrence wins. Pure, no shared state;
// safe to rebuild on every poll tick.
type PremiumLedger struct {
	byCount map[int]Premium
	order   []int
}

func NewPremiumLedger(premiums []Premium) PremiumLedger {
	l := PremiumLedger{byCount: make(map[int]Premium, len(premiums))}
	for _, p := range premiums {
		if _, seen := l.byCount[p.InstallmentCount]; seen {
			continue
		}
		l.byCount[p.InstallmentCount] = p
		l.order = append(l.order, p.InstallmentCount)
	}
	sort.Ints(l.order)
	return l
}

// InstallmentCounts lists the available plans in ascending order.
func (l PremiumLedger) InstallmentCounts() []int {
	out := make([]int, len(l.order))
	copy(out, l.order)
	return out
}

// Default returns the lowest installment count on offer, the initial
// selection for a freshly arrived product.
func (l PremiumLedger) Default() (int, bool) {
	if len(l.order) == 0 {
		return 0, false
	}
	return l.order[0], true
}

// ForInstallments looks up the plan for a selected installment count.
func (l PremiumLedger) ForInstallments(count int) (Premium, bool) {
	p, ok := l.byCount[count]
	return p, ok
}

// Has reports whether a plan with the given installment count exists.
func (l PremiumLedger) Has(count int) bool {
	_, ok := l.byCount[count]
	return ok
}

func (l PremiumLedger) Len() int { return len(l.order) }

// FormattedPremium is one plan rendered for display.
type FormattedPremium struct {
	InstallmentCount int    `json:"installmentCount"`
	Net              string `json:"net"`
	Gross            string `json:"gross"`
	Currency         string `json:"currency"`
}

// Formatted renders every plan in ascending installment order.
func (l PremiumLedger) Formatted() []FormattedPremium {
	out := make([]FormattedPremium, 0, len(l.order))
	for _, c := range l.order {
		p := l.byCount[c]
		out = append(out, FormattedPremium{
			InstallmentCount: p.InstallmentCount,
			Net:              FormatAmount(p.NetAmount),
			Gross:            FormatAmount(p.GrossAmount),
			Currency:         p.Currency,
		})
	}
	return out
}

// FormatAmount renders a monetary amount with two decimals, dot-grouped
// thousands and a comma decimal separator (tr-TR convention).
func FormatAmount(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}

	s := fmt.Sprintf("%.2f", amount)
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}
