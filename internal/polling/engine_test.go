package polling

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/internal/store/memory"
)

type scriptedAggregator struct {
	mu           sync.Mutex
	companies    []core.InsuranceCompany
	companiesErr error
	script       [][]core.Product
	errs         map[int]error // by 1-based poll call index
	calls        int
}

func (a *scriptedAggregator) ListCompanies(context.Context) ([]core.InsuranceCompany, error) {
	if a.companiesErr != nil {
		return nil, a.companiesErr
	}
	return a.companies, nil
}

func (a *scriptedAggregator) GetProposal(context.Context, string) ([]core.Product, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if err := a.errs[a.calls]; err != nil {
		return nil, err
	}
	idx := a.calls - 1
	if idx >= len(a.script) {
		idx = len(a.script) - 1
	}
	return a.script[idx], nil
}

func (a *scriptedAggregator) CreateProposal(context.Context, core.ProposalPayload) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (a *scriptedAggregator) GetProductDocument(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

type capturedEvents struct {
	mu     sync.Mutex
	events []string
}

func (c *capturedEvents) Emit(_ core.LineCode, event string) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *capturedEvents) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func healthLine(t *testing.T) core.ProductLine {
	t.Helper()
	line, err := core.NewLines().Get(core.LineHealth)
	require.NoError(t, err)
	return line
}

func waiting(id string) core.Product {
	return core.Product{ID: id, CompanyID: "co-" + id, ProductID: "TSS-100", State: core.ProductStateWaiting}
}

func active(id string) core.Product {
	return core.Product{
		ID: id, CompanyID: "co-" + id, ProductID: "TSS-100",
		State:    core.ProductStateActive,
		Premiums: []core.Premium{{InstallmentCount: 1, GrossAmount: 1200}, {InstallmentCount: 3, GrossAmount: 1290}},
	}
}

func failed(id string) core.Product {
	return core.Product{ID: id, CompanyID: "co-" + id, ProductID: "TSS-100", State: core.ProductStateFailed, ErrorMsg: "declined"}
}

func newTestEngine(t *testing.T, cfg Config, agg *scriptedAggregator) (*Engine, *capturedEvents, *memory.SessionStore) {
	t.Helper()
	if agg.companies == nil {
		agg.companies = []core.InsuranceCompany{
			{ID: "co-a", Name: "Alpha Sigorta"},
			{ID: "co-b", Name: "Beta Sigorta"},
		}
	}
	events := &capturedEvents{}
	store := memory.NewSessionStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("sess-1", "prop-1", healthLine(t), cfg, agg, store, events, log), events, store
}

func fastConfig() Config {
	return Config{Interval: 2 * time.Millisecond, HardTimeout: 500 * time.Millisecond, SettleWindow: 20 * time.Millisecond}
}

func runToTerminal(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.Run(ctx)
	require.True(t, e.Snapshot().Phase.Terminal(), "engine must reach a terminal phase")
}

func TestEngine_EarlyUnblockThenSettle(t *testing.T) {
	agg := &scriptedAggregator{script: [][]core.Product{
		{waiting("a"), waiting("b")},
		{active("a"), waiting("b")},
	}}
	e, events, _ := newTestEngine(t, fastConfig(), agg)

	runToTerminal(t, e)

	snap := e.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.False(t, snap.Loading)
	assert.Equal(t, float64(100), snap.Progress)
	require.Len(t, snap.Quotes, 1, "the still-waiting product never surfaces")
	assert.Equal(t, "a", snap.Quotes[0].Product.ID)
	assert.Equal(t, "Alpha Sigorta", snap.Quotes[0].CompanyName)
	assert.Equal(t, 1, snap.Quotes[0].SelectedInstallment, "lowest installment count is the default")

	assert.Equal(t, []string{"tss_quote_outcome:success"}, events.all())
	assert.Greater(t, agg.calls, 2, "polling continues through the settle window")
}

func TestEngine_AllFinalizedEndsSettleEarly(t *testing.T) {
	cfg := fastConfig()
	cfg.SettleWindow = 10 * time.Second // must not be waited out
	agg := &scriptedAggregator{script: [][]core.Product{
		{waiting("a"), waiting("b")},
		{active("a"), failed("b")},
	}}
	e, _, _ := newTestEngine(t, cfg, agg)

	start := time.Now()
	runToTerminal(t, e)

	snap := e.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	require.Len(t, snap.Quotes, 1)
	assert.Less(t, time.Since(start), time.Second, "all-finalized ends the settle wait immediately")
}

func TestEngine_HardTimeoutWithNoOffers(t *testing.T) {
	cfg := fastConfig()
	cfg.HardTimeout = 30 * time.Millisecond
	agg := &scriptedAggregator{script: [][]core.Product{
		{waiting("a"), waiting("b")},
	}}
	e, events, _ := newTestEngine(t, cfg, agg)

	runToTerminal(t, e)

	snap := e.Snapshot()
	assert.Equal(t, PhaseEmpty, snap.Phase)
	assert.Empty(t, snap.Quotes)
	assert.Greater(t, snap.Progress, 0.0)
	assert.Less(t, snap.Progress, 100.0, "a poll without quotes never shows a full bar")
	assert.Equal(t, snap.Progress, e.Snapshot().Progress, "progress freezes once the poll ends")
	assert.Equal(t, "no offers available", snap.Err)
	assert.Equal(t, []string{"tss_quote_outcome:failure"}, events.all())
}

func TestEngine_AllFailedStopsBeforeDeadline(t *testing.T) {
	cfg := fastConfig()
	cfg.HardTimeout = 10 * time.Second // must not be waited out
	agg := &scriptedAggregator{script: [][]core.Product{
		{failed("a"), failed("b")},
	}}
	e, _, _ := newTestEngine(t, cfg, agg)

	start := time.Now()
	runToTerminal(t, e)

	assert.Equal(t, PhaseEmpty, e.Snapshot().Phase)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngine_SessionExpiryAborts(t *testing.T) {
	t.Run("on company directory", func(t *testing.T) {
		agg := &scriptedAggregator{companiesErr: fmt.Errorf("%w: token dead", core.ErrUnauthorized)}
		e, events, _ := newTestEngine(t, fastConfig(), agg)
		runToTerminal(t, e)
		assert.Equal(t, PhaseAborted, e.Snapshot().Phase)
		assert.Equal(t, []string{"tss_quote_outcome:failure"}, events.all())
	})

	t.Run("mid poll", func(t *testing.T) {
		agg := &scriptedAggregator{
			script: [][]core.Product{{waiting("a")}},
			errs:   map[int]error{2: fmt.Errorf("%w: token dead", core.ErrUnauthorized)},
		}
		e, _, _ := newTestEngine(t, fastConfig(), agg)
		runToTerminal(t, e)
		assert.Equal(t, PhaseAborted, e.Snapshot().Phase)
	})
}

func TestEngine_TransientPollErrorKeepsCadence(t *testing.T) {
	agg := &scriptedAggregator{
		script: [][]core.Product{
			{waiting("a")},
			{waiting("a")},
			{active("a"), failed("b")},
		},
		errs: map[int]error{2: fmt.Errorf("%w: flaky gateway", core.ErrUpstream)},
	}
	e, _, _ := newTestEngine(t, fastConfig(), agg)

	runToTerminal(t, e)

	snap := e.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	require.Len(t, snap.Quotes, 1)
}

func TestEngine_StateRegressionIgnored(t *testing.T) {
	agg := &scriptedAggregator{script: [][]core.Product{
		{active("a"), waiting("b")},
		{waiting("a"), failed("b")}, // confused upstream reverts a terminal state
	}}
	e, _, _ := newTestEngine(t, fastConfig(), agg)

	runToTerminal(t, e)

	snap := e.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	require.Len(t, snap.Quotes, 1)
	assert.Equal(t, core.ProductStateActive, snap.Quotes[0].Product.State)
}

func TestEngine_AllowListFiltersUnknownProducts(t *testing.T) {
	offListed := active("x")
	offListed.ProductID = "KSK-100" // wrong line
	agg := &scriptedAggregator{script: [][]core.Product{
		{offListed, active("a"), failed("b")},
	}}
	e, _, _ := newTestEngine(t, fastConfig(), agg)

	runToTerminal(t, e)

	snap := e.Snapshot()
	require.Len(t, snap.Quotes, 1)
	assert.Equal(t, "a", snap.Quotes[0].Product.ID)
}

func TestEngine_SelectInstallment(t *testing.T) {
	agg := &scriptedAggregator{script: [][]core.Product{
		{active("a"), failed("b")},
	}}
	e, _, store := newTestEngine(t, fastConfig(), agg)
	runToTerminal(t, e)
	ctx := context.Background()

	t.Run("unknown product", func(t *testing.T) {
		assert.ErrorIs(t, e.SelectInstallment(ctx, "nope", 3), core.ErrNotFound)
	})

	t.Run("count not offered", func(t *testing.T) {
		assert.ErrorIs(t, e.SelectInstallment(ctx, "a", 12), core.ErrValidation)
	})

	t.Run("valid choice sticks and persists", func(t *testing.T) {
		require.NoError(t, e.SelectInstallment(ctx, "a", 3))

		snap := e.Snapshot()
		require.Len(t, snap.Quotes, 1)
		assert.Equal(t, 3, snap.Quotes[0].SelectedInstallment)

		rec, err := store.Get(ctx, "sess-1", core.LineHealth)
		require.NoError(t, err)
		assert.Equal(t, "a", rec.SelectedQuoteID)
		assert.Equal(t, 3, rec.SelectedInstallment)
	})
}

func TestEngine_SelectionSurvivesRefreshedTick(t *testing.T) {
	agg := &scriptedAggregator{script: [][]core.Product{
		{active("a"), waiting("b")},
	}}
	e, _, _ := newTestEngine(t, fastConfig(), agg)
	ctx := context.Background()

	require.NoError(t, e.tick(ctx))
	require.NoError(t, e.SelectInstallment(ctx, "a", 3))

	// A refreshed payload for the same product re-folds it; the choice must
	// survive as long as the count is still offered.
	require.NoError(t, e.tick(ctx))
	snap := e.Snapshot()
	require.Len(t, snap.Quotes, 1)
	assert.Equal(t, 3, snap.Quotes[0].SelectedInstallment)

	// If a later payload drops the chosen plan, selection falls back to the
	// default instead of pointing at a plan that no longer exists.
	shrunk := active("a")
	shrunk.Premiums = shrunk.Premiums[:1]
	agg.mu.Lock()
	agg.script = [][]core.Product{{shrunk, waiting("b")}}
	agg.calls = 0
	agg.mu.Unlock()
	require.NoError(t, e.tick(ctx))

	snap = e.Snapshot()
	require.Len(t, snap.Quotes, 1)
	assert.Equal(t, 1, snap.Quotes[0].SelectedInstallment)
}

func TestEngine_ProgressCurve(t *testing.T) {
	agg := &scriptedAggregator{}
	e, _, _ := newTestEngine(t, Config{Interval: time.Second, HardTimeout: 40 * time.Second}, agg)

	e.mu.Lock()
	e.startedAt = time.Now().Add(-10 * time.Second)
	e.mu.Unlock()

	// scale = timeout/4 = 10s, elapsed = 10s: exactly halfway up the curve.
	snap := e.Snapshot()
	assert.InDelta(t, 50, snap.Progress, 1)
	assert.True(t, snap.Loading)

	e.mu.Lock()
	e.startedAt = time.Now().Add(-90 * time.Second)
	got := e.progress()
	e.mu.Unlock()
	assert.Greater(t, got, 85.0)
	assert.Less(t, got, 100.0, "progress never reaches 100 on time alone")
}

func TestEngine_CancellationStopsWithoutOutcome(t *testing.T) {
	agg := &scriptedAggregator{script: [][]core.Product{
		{waiting("a")},
	}}
	cfg := fastConfig()
	cfg.HardTimeout = 10 * time.Second
	e, events, _ := newTestEngine(t, cfg, agg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on cancellation")
	}
	assert.Empty(t, events.all(), "a torn-down poll reports no outcome")
}
