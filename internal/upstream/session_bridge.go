package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/acentrix/quotefunnel/internal/core"
)

// SessionBridge talks to the identity service and owns the session token
// pair. Concurrent callers that each observe an expired token share one
// refresh attempt through the singleflight group; nobody refreshes twice
// for the same expiry.
type SessionBridge struct {
	client *Client

	mu     sync.RWMutex
	tokens core.TokenPair

	refresh singleflight.Group
}

func NewSessionBridge(baseURL string, timeout time.Duration) *SessionBridge {
	return &SessionBridge{client: NewClient(baseURL, timeout)}
}

type loginRequest struct {
	IdentityNumber string `json:"identityNumber"`
	BirthDate      string `json:"birthDate,omitempty"`
	Phone          string `json:"phone"`
	AgentID        string `json:"agentId,omitempty"`
	CustomerType   string `json:"customerType"`
}

type loginResponse struct {
	ChallengeToken string `json:"challengeToken"`
}

// Login starts an OTP challenge for the given identity. Re-invoking it mints
// a fresh challenge (OTP resend).
func (b *SessionBridge) Login(ctx context.Context, in core.LoginInput) (string, error) {
	req := loginRequest{
		IdentityNumber: in.IdentityNumber,
		BirthDate:      in.BirthDate,
		Phone:          in.Phone,
		AgentID:        in.AgentID,
		CustomerType:   string(in.CustomerType),
	}
	var resp loginResponse
	if err := b.client.do(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return "", err
	}
	return resp.ChallengeToken, nil
}

type verifyRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

// VerifyOTP exchanges a challenge and passcode for a token pair, which the
// bridge then holds for all later authenticated calls.
func (b *SessionBridge) VerifyOTP(ctx context.Context, challengeToken, code string) (core.TokenPair, error) {
	var pair core.TokenPair
	err := b.client.do(ctx, http.MethodPost, "/auth/verify-otp", "",
		verifyRequest{ChallengeToken: challengeToken, Code: code}, &pair)
	if err != nil {
		return core.TokenPair{}, err
	}
	b.setTokens(pair)
	return pair, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges the refresh token for a new pair. All concurrent callers
// are coalesced into a single upstream call and share its result.
func (b *SessionBridge) Refresh(ctx context.Context) (core.TokenPair, error) {
	current := b.Tokens()
	if current.RefreshToken == "" {
		return core.TokenPair{}, fmt.Errorf("%w: no session to refresh", core.ErrUnauthorized)
	}

	// Keyed by the refresh token so that a refresh for a newer session is
	// never merged into one for a stale session.
	v, err, _ := b.refresh.Do(current.RefreshToken, func() (any, error) {
		var pair core.TokenPair
		err := b.client.do(ctx, http.MethodPost, "/auth/refresh", "",
			refreshRequest{RefreshToken: current.RefreshToken}, &pair)
		if err != nil {
			return core.TokenPair{}, err
		}
		b.setTokens(pair)
		return pair, nil
	})
	if err != nil {
		return core.TokenPair{}, err
	}
	return v.(core.TokenPair), nil
}

// Logout drops the local pair and tells the identity service, best-effort.
func (b *SessionBridge) Logout(ctx context.Context) error {
	pair := b.Tokens()
	b.setTokens(core.TokenPair{})
	if pair.AccessToken == "" {
		return nil
	}
	return b.client.do(ctx, http.MethodPost, "/auth/logout", pair.AccessToken, nil, nil)
}

func (b *SessionBridge) Tokens() core.TokenPair {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tokens
}

func (b *SessionBridge) setTokens(p core.TokenPair) {
	b.mu.Lock()
	b.tokens = p
	b.mu.Unlock()
}
