package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentrix/quotefunnel/internal/core"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSessionBridge_LoginVerifyLogout(t *testing.T) {
	var logoutAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "individual", req.CustomerType)
			writeJSON(t, w, http.StatusOK, loginResponse{ChallengeToken: "challenge-1"})
		case "/auth/verify-otp":
			var req verifyRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "challenge-1", req.ChallengeToken)
			writeJSON(t, w, http.StatusOK, core.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
		case "/auth/logout":
			logoutAuth.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := NewSessionBridge(srv.URL, time.Second)
	ctx := context.Background()

	challenge, err := b.Login(ctx, core.LoginInput{
		IdentityNumber: "10000000146",
		Phone:          "5321234567",
		CustomerType:   core.CustomerIndividual,
	})
	require.NoError(t, err)
	assert.Equal(t, "challenge-1", challenge)
	assert.Empty(t, b.Tokens().AccessToken, "no tokens before verification")

	pair, err := b.VerifyOTP(ctx, challenge, "123456")
	require.NoError(t, err)
	assert.Equal(t, "access-1", pair.AccessToken)
	assert.Equal(t, pair, b.Tokens())

	require.NoError(t, b.Logout(ctx))
	assert.Empty(t, b.Tokens().AccessToken)
	assert.Equal(t, "Bearer access-1", logoutAuth.Load())
}

func TestSessionBridge_ConcurrentRefreshCoalesced(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		refreshCalls.Add(1)
		time.Sleep(20 * time.Millisecond) // hold the flight open for the stragglers
		writeJSON(t, w, http.StatusOK, core.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"})
	}))
	defer srv.Close()

	b := NewSessionBridge(srv.URL, time.Second)
	b.setTokens(core.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	const callers = 8
	var wg sync.WaitGroup
	pairs := make([]core.TokenPair, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = b.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent refreshes share one upstream call")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-2", pairs[i].AccessToken)
	}
	assert.Equal(t, "refresh-2", b.Tokens().RefreshToken)
}

func TestSessionBridge_RefreshWithoutSession(t *testing.T) {
	b := NewSessionBridge("http://127.0.0.1:0", time.Second)
	_, err := b.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   apiError
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, apiError{}, core.ErrUnauthorized},
		{"phone mismatch", http.StatusBadRequest, apiError{Code: codePhoneMismatch, Message: "no such pairing"}, core.ErrIdentityMismatch},
		{"not found", http.StatusNotFound, apiError{}, core.ErrNotFound},
		{"bad request", http.StatusBadRequest, apiError{Message: "missing field"}, core.ErrValidation},
		{"conflict", http.StatusConflict, apiError{Message: "already exists"}, core.ErrConflict},
		{"server error", http.StatusBadGateway, apiError{}, core.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, time.Second).do(context.Background(), http.MethodGet, "/x", "", nil, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDoAuthed_RetriesOnceAfterRefresh(t *testing.T) {
	var profileCalls, refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customer/profile":
			profileCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeJSON(t, w, http.StatusUnauthorized, apiError{})
				return
			}
			writeJSON(t, w, http.StatusOK, core.CustomerProfile{CustomerID: "cust-1", FirstName: "Ayse"})
		case "/auth/refresh":
			refreshCalls.Add(1)
			writeJSON(t, w, http.StatusOK, core.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-2"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bridge := NewSessionBridge(srv.URL, time.Second)
	bridge.setTokens(core.TokenPair{AccessToken: "stale", RefreshToken: "refresh-1"})
	profiles := NewProfileClient(srv.URL, time.Second, bridge)

	out, err := profiles.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cust-1", out.CustomerID)
	assert.Equal(t, int32(2), profileCalls.Load(), "stale call plus exactly one retry")
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestDoAuthed_RefreshFailureTearsDownSession(t *testing.T) {
	var logouts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customer/profile", "/auth/refresh":
			writeJSON(t, w, http.StatusUnauthorized, apiError{})
		case "/auth/logout":
			logouts.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bridge := NewSessionBridge(srv.URL, time.Second)
	bridge.setTokens(core.TokenPair{AccessToken: "stale", RefreshToken: "refresh-1"})
	profiles := NewProfileClient(srv.URL, time.Second, bridge)

	_, err := profiles.GetProfile(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Empty(t, bridge.Tokens().AccessToken, "bridge drops its pair after a failed refresh")
	assert.Equal(t, int32(1), logouts.Load())
}
