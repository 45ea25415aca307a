package core

import "context"

// The funnel consumes these collaborators; their implementations live in
// internal/upstream. Contracts only, one interface per upstream concern.

// LoginInput carries the identity data collected on the personal-info step.
type LoginInput struct {
	IdentityNumber string
	BirthDate      string // required for individuals, empty for corporate
	Phone          string
	AgentID        string
	CustomerType   CustomerType
}

// TokenPair is the session token pair owned by the session bridge.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionBridge exposes login/OTP-verify/token-refresh. A 401 from any
// downstream call that is not itself the refresh endpoint triggers exactly
// one coalesced refresh-and-retry; refresh failure forces logout and aborts
// the current flow.
type SessionBridge interface {
	Login(ctx context.Context, in LoginInput) (challengeToken string, err error)
	VerifyOTP(ctx context.Context, challengeToken, code string) (TokenPair, error)
	Refresh(ctx context.Context) (TokenPair, error)
	Logout(ctx context.Context) error
	// Tokens returns the current pair, zero-valued when logged out.
	Tokens() TokenPair
}

// ProfileStore fetches and updates the customer profile.
type ProfileStore interface {
	GetProfile(ctx context.Context) (CustomerProfile, error)
	UpdateProfile(ctx context.Context, p CustomerProfile) (CustomerProfile, error)
}

// RefItem is one city or district option.
type RefItem struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

type ReferenceData interface {
	ListCities(ctx context.Context) ([]RefItem, error)
	ListDistricts(ctx context.Context, cityValue string) ([]RefItem, error)
}

// ProposalPayload is the wizard's submission: product-line tag plus the
// line-specific inputs collected on the product step.
type ProposalPayload struct {
	ProductLine LineCode          `json:"productLine"`
	CustomerID  string            `json:"customerId"`
	Channel     string            `json:"channel"`
	Inputs      map[string]string `json:"inputs"`
}

// ProposalAggregator is the upstream quote aggregator.
type ProposalAggregator interface {
	CreateProposal(ctx context.Context, payload ProposalPayload) (proposalID string, err error)
	GetProposal(ctx context.Context, proposalID string) ([]Product, error)
	ListCompanies(ctx context.Context) ([]InsuranceCompany, error)
	// GetProductDocument returns the PDF offer document URL, fetched on
	// demand, never polled.
	GetProductDocument(ctx context.Context, proposalID, productID string) (url string, err error)
}

// CaseDesk tracks sales-opportunity cases. EnsureCase is check-then-create;
// the wizard additionally guards it with a per-session idempotency flag.
type CaseDesk interface {
	EnsureCase(ctx context.Context, customerID string, line LineCode) error
}

// PurchaseBridge receives the chosen quote; payment execution is external.
type PurchaseBridge interface {
	Purchase(ctx context.Context, proposalID, productID string, installmentCount int) error
}
