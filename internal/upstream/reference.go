package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// ReferenceClient serves the city/district lookups backing the
// AdditionalInfo step's cascading selects.
type ReferenceClient struct {
	client *Client
	bridge core.SessionBridge
}

func NewReferenceClient(baseURL string, timeout time.Duration, bridge core.SessionBridge) *ReferenceClient {
	return &ReferenceClient{client: NewClient(baseURL, timeout), bridge: bridge}
}

func (r *ReferenceClient) ListCities(ctx context.Context) ([]core.RefItem, error) {
	var out []core.RefItem
	err := doAuthed(ctx, r.client, r.bridge, http.MethodGet, "/reference/cities", nil, &out)
	return out, err
}

func (r *ReferenceClient) ListDistricts(ctx context.Context, cityValue string) ([]core.RefItem, error) {
	var out []core.RefItem
	path := "/reference/districts?city=" + url.QueryEscape(cityValue)
	err := doAuthed(ctx, r.client, r.bridge, http.MethodGet, path, nil, &out)
	return out, err
}
