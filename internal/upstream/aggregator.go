package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// AggregatorClient talks to the upstream proposal aggregator, the service
// that fans a proposal out to the insurance companies and accumulates their
// offers.
type AggregatorClient struct {
	client *Client
	bridge core.SessionBridge
}

func NewAggregatorClient(baseURL string, timeout time.Duration, bridge core.SessionBridge) *AggregatorClient {
	return &AggregatorClient{client: NewClient(baseURL, timeout), bridge: bridge}
}

type createProposalResponse struct {
	ProposalID string `json:"proposalId"`
}

func (a *AggregatorClient) CreateProposal(ctx context.Context, payload core.ProposalPayload) (string, error) {
	var resp createProposalResponse
	err := doAuthed(ctx, a.client, a.bridge, http.MethodPost, "/proposals", payload, &resp)
	if err != nil {
		return "", err
	}
	return resp.ProposalID, nil
}

// productPayload is the aggregator's wire shape for one offer. The four
// coverage documents arrive from different upstream pipelines and any subset
// may be missing on a given tick.
type productPayload struct {
	ID                               string             `json:"id"`
	CompanyID                        string             `json:"companyId"`
	ProductID                        string             `json:"productId"`
	State                            core.ProductState  `json:"state"`
	Premiums                         []core.Premium     `json:"premiums"`
	InitialCoverage                  core.CoverageDoc   `json:"initialCoverage,omitempty"`
	InsuranceServiceProviderCoverage core.CoverageDoc   `json:"insuranceServiceProviderCoverage,omitempty"`
	PDFCoverage                      core.CoverageDoc   `json:"pdfCoverage,omitempty"`
	OptimalCoverage                  core.CoverageDoc   `json:"optimalCoverage,omitempty"`
	ErrorMessage                     string             `json:"errorMessage,omitempty"`
	PolicyID                         string             `json:"policyId,omitempty"`
}

type getProposalResponse struct {
	Products []productPayload `json:"products"`
}

func (a *AggregatorClient) GetProposal(ctx context.Context, proposalID string) ([]core.Product, error) {
	var resp getProposalResponse
	err := doAuthed(ctx, a.client, a.bridge, http.MethodGet, "/proposals/"+proposalID, nil, &resp)
	if err != nil {
		return nil, err
	}

	products := make([]core.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, core.Product{
			ID:        p.ID,
			CompanyID: p.CompanyID,
			ProductID: p.ProductID,
			State:     p.State,
			Premiums:  p.Premiums,
			Coverage: core.RawCoverage{
				Optimal:         p.OptimalCoverage,
				PDF:             p.PDFCoverage,
				ServiceProvider: p.InsuranceServiceProviderCoverage,
				Initial:         p.InitialCoverage,
			},
			ErrorMsg: p.ErrorMessage,
			PolicyID: p.PolicyID,
		})
	}
	return products, nil
}

func (a *AggregatorClient) ListCompanies(ctx context.Context) ([]core.InsuranceCompany, error) {
	var out []core.InsuranceCompany
	err := doAuthed(ctx, a.client, a.bridge, http.MethodGet, "/companies", nil, &out)
	return out, err
}

type documentResponse struct {
	URL string `json:"url"`
}

func (a *AggregatorClient) GetProductDocument(ctx context.Context, proposalID, productID string) (string, error) {
	var resp documentResponse
	path := "/proposals/" + proposalID + "/products/" + productID + "/document"
	err := doAuthed(ctx, a.client, a.bridge, http.MethodGet, path, nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}
