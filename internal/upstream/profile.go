package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// ProfileClient is the profile-store adapter.
type ProfileClient struct {
	client *Client
	bridge core.SessionBridge
}

func NewProfileClient(baseURL string, timeout time.Duration, bridge core.SessionBridge) *ProfileClient {
	return &ProfileClient{client: NewClient(baseURL, timeout), bridge: bridge}
}

func (p *ProfileClient) GetProfile(ctx context.Context) (core.CustomerProfile, error) {
	var out core.CustomerProfile
	err := doAuthed(ctx, p.client, p.bridge, http.MethodGet, "/customer/profile", nil, &out)
	return out, err
}

func (p *ProfileClient) UpdateProfile(ctx context.Context, profile core.CustomerProfile) (core.CustomerProfile, error) {
	var out core.CustomerProfile
	path := "/customer/profile/" + profile.CustomerID + "?type=" + string(profile.CustomerType)
	err := doAuthed(ctx, p.client, p.bridge, http.MethodPut, path, profile, &out)
	return out, err
}
