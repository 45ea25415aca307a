package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// CaseDeskClient manages sales-opportunity cases in the CRM.
type CaseDeskClient struct {
	client *Client
	bridge core.SessionBridge
}

func NewCaseDeskClient(baseURL string, timeout time.Duration, bridge core.SessionBridge) *CaseDeskClient {
	return &CaseDeskClient{client: NewClient(baseURL, timeout), bridge: bridge}
}

type caseRequest struct {
	CustomerID  string `json:"customerId"`
	ProductLine string `json:"productLine"`
}

// EnsureCase creates a sales-opportunity case for the customer/line pair if
// one does not exist yet. Check-then-create; an existing case is not an
// error.
func (c *CaseDeskClient) EnsureCase(ctx context.Context, customerID string, line core.LineCode) error {
	path := "/cases/" + customerID + "/" + string(line)
	err := doAuthed(ctx, c.client, c.bridge, http.MethodGet, path, nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	err = doAuthed(ctx, c.client, c.bridge, http.MethodPost, "/cases",
		caseRequest{CustomerID: customerID, ProductLine: string(line)}, nil)
	if errors.Is(err, core.ErrConflict) {
		// Lost a race with another channel creating the same case.
		return nil
	}
	return err
}

// PurchaseClient hands the chosen quote off to checkout. Payment execution
// is entirely external.
type PurchaseClient struct {
	client *Client
	bridge core.SessionBridge
}

func NewPurchaseClient(baseURL string, timeout time.Duration, bridge core.SessionBridge) *PurchaseClient {
	return &PurchaseClient{client: NewClient(baseURL, timeout), bridge: bridge}
}

type purchaseRequest struct {
	ProposalID       string `json:"proposalId"`
	ProductID        string `json:"productId"`
	InstallmentCount int    `json:"installmentCount"`
}

func (p *PurchaseClient) Purchase(ctx context.Context, proposalID, productID string, installmentCount int) error {
	return doAuthed(ctx, p.client, p.bridge, http.MethodPost, "/checkout",
		purchaseRequest{ProposalID: proposalID, ProductID: productID, InstallmentCount: installmentCount}, nil)
}
