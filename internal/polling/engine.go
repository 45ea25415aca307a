package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// Phase is the engine's lifecycle. Loading covers the blocking wait for the
// first usable quote; Settling is the silent background continuation after
// the early unblock; Done, Empty, Errored and Aborted are terminal.
type Phase string

const (
	PhaseLoading  Phase = "loading"
	PhaseSettling Phase = "settling"
	PhaseDone     Phase = "done"
	// PhaseEmpty means polling finished with zero usable quotes; the UI
	// offers a path back to the product step.
	PhaseEmpty Phase = "empty"
	// PhaseErrored means the company directory prerequisite failed.
	PhaseErrored Phase = "errored"
	// PhaseAborted means the session expired mid-poll; the caller redirects
	// to the funnel entry.
	PhaseAborted Phase = "aborted"
)

func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseEmpty, PhaseErrored, PhaseAborted:
		return true
	}
	return false
}

// Events receives the one-shot poll outcome.
type Events interface {
	Emit(line core.LineCode, event string)
}

// Config bounds the engine's work.
type Config struct {
	Interval     time.Duration
	HardTimeout  time.Duration
	SettleWindow time.Duration
}

// Snapshot is the UI-ready view of one moment of the poll.
type Snapshot struct {
	Phase    Phase
	Loading  bool
	Progress float64
	Quotes   []core.ProcessedQuote
	Err      string
}

// Engine converts a proposal's asynchronously arriving products into a
// terminating progress signal and an up-to-date processed quote list. Ticks
// are strictly sequential: a new poll is never issued before the previous
// response has been processed.
type Engine struct {
	agg       core.ProposalAggregator
	store     core.SessionStore
	events    Events
	log       *slog.Logger
	clock     func() time.Time
	cfg       Config
	line      core.ProductLine
	sessionID string
	proposal  string

	mu          sync.Mutex
	phase       Phase
	companies   map[string]core.InsuranceCompany
	known       map[string]core.Product // by product record id, monotonic states
	selected    map[string]int          // sticky installment choice per product id
	startedAt   time.Time
	unblockedAt time.Time
	errText     string
	endProgress float64
	outcomeSent bool
}

func New(sessionID, proposalID string, line core.ProductLine, cfg Config,
	agg core.ProposalAggregator, store core.SessionStore, events Events, log *slog.Logger) *Engine {
	return &Engine{
		agg:       agg,
		store:     store,
		events:    events,
		log:       log.With("proposal", proposalID, "line", line.Code),
		clock:     time.Now,
		cfg:       cfg,
		line:      line,
		sessionID: sessionID,
		proposal:  proposalID,
		phase:     PhaseLoading,
		known:     map[string]core.Product{},
		selected:  map[string]int{},
	}
}

// Run drives the poll loop until a terminal phase or context cancellation.
// Cancellation discards any in-flight tick's result.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.startedAt = e.clock()
	e.mu.Unlock()

	// The company directory is a hard prerequisite, fetched once and not
	// retried here. Session expiry aborts the page; anything else surfaces
	// an error state.
	companies, err := e.agg.ListCompanies(ctx)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			e.finish(PhaseAborted, "session expired")
		} else {
			e.finish(PhaseErrored, "company directory unavailable")
		}
		return
	}
	e.mu.Lock()
	e.companies = make(map[string]core.InsuranceCompany, len(companies))
	for _, c := range companies {
		e.companies[c.ID] = c
	}
	e.mu.Unlock()

	deadline := e.startedAt.Add(e.cfg.HardTimeout)
	var settleUntil time.Time

	for {
		if err := e.tick(ctx); err != nil {
			if errors.Is(err, core.ErrUnauthorized) {
				// The only condition that tears the poll down immediately.
				e.finish(PhaseAborted, "session expired")
				return
			}
			if ctx.Err() != nil {
				return
			}
			// Transient: log and keep the cadence.
			e.log.Warn("poll tick failed", "err", err)
		}

		now := e.clock()
		e.mu.Lock()
		unblockedAt := e.unblockedAt
		allFinal, anyActive := e.finalization()
		e.mu.Unlock()

		switch {
		case !unblockedAt.IsZero():
			if settleUntil.IsZero() {
				// Independent settle timer, not the original timeout:
				// providers answering slightly after the first one still
				// get to appear.
				settleUntil = unblockedAt.Add(e.cfg.SettleWindow)
			}
			if allFinal || !now.Before(settleUntil) {
				e.finish(PhaseDone, "")
				return
			}
		case allFinal && !anyActive:
			// Every allow-listed product terminal, none usable: no point
			// waiting out the timeout.
			e.finish(PhaseEmpty, "no offers available")
			return
		case !now.Before(deadline):
			e.finish(PhaseEmpty, "no offers available")
			return
		}

		if !e.sleep(ctx, e.nextWake(now, deadline, settleUntil)) {
			return
		}
	}
}

// nextWake keeps the fixed cadence but never oversleeps a deadline.
func (e *Engine) nextWake(now, deadline, settleUntil time.Time) time.Duration {
	d := e.cfg.Interval
	for _, t := range []time.Time{deadline, settleUntil} {
		if t.IsZero() {
			continue
		}
		if until := t.Sub(now); until > 0 && until < d {
			d = until
		}
	}
	return d
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// tick fetches the proposal once and folds the result into known state.
func (e *Engine) tick(ctx context.Context) error {
	products, err := e.agg.GetProposal(ctx, e.proposal)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Completed after cancellation: discard.
		return ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase.Terminal() {
		return nil
	}

	for _, fresh := range products {
		if !e.line.Allows(fresh.ProductID) {
			continue
		}
		known, seen := e.known[fresh.ID]
		if !seen {
			e.known[fresh.ID] = fresh
		} else {
			next, err := core.ApplyStateUpdate(known, fresh)
			if err != nil {
				// A state regression from a confused upstream: keep what we
				// have.
				e.log.Warn("rejected product state regression",
					"product", fresh.ID, "from", known.State, "to", fresh.State)
				continue
			}
			e.known[fresh.ID] = next
		}

		if e.known[fresh.ID].State == core.ProductStateActive && e.unblockedAt.IsZero() {
			// First usable quote: end the loading state now, even with
			// slower providers still waiting.
			e.unblockedAt = e.clock()
			e.phase = PhaseSettling
			e.log.Info("first active quote, unblocking", "product", fresh.ID)
		}
	}
	return nil
}

// finalization reports whether every allow-listed product is terminal and
// whether any is active. Caller holds the lock.
func (e *Engine) finalization() (allFinal, anyActive bool) {
	allFinal = len(e.known) > 0
	for _, p := range e.known {
		if !p.State.Terminal() {
			allFinal = false
		}
		if p.State == core.ProductStateActive {
			anyActive = true
		}
	}
	return allFinal, anyActive
}

func (e *Engine) finish(phase Phase, errText string) {
	e.mu.Lock()
	if e.phase.Terminal() {
		e.mu.Unlock()
		return
	}
	if e.unblockedAt.IsZero() {
		// A poll that never produced a quote freezes its bar where it was;
		// jumping to 100 would dress a failure up as completion.
		e.endProgress = e.loadingProgress()
	}
	e.phase = phase
	e.errText = errText
	_, anyActive := e.finalization()
	send := !e.outcomeSent
	e.outcomeSent = true
	e.mu.Unlock()

	// One-shot outcome telemetry no matter how often the terminal condition
	// is re-evaluated.
	if send && e.line.EventQuoteOutcome != "" {
		outcome := "failure"
		if phase == PhaseDone && anyActive {
			outcome = "success"
		}
		e.events.Emit(e.line.Code, e.line.EventQuoteOutcome+":"+outcome)
		e.log.Info("poll finished", "phase", phase, "outcome", outcome)
	}
}

// SelectInstallment records the user's installment choice for a product.
// Applied synchronously; later ticks re-reading the product keep the choice
// as long as the count is still offered.
func (e *Engine) SelectInstallment(ctx context.Context, productID string, count int) error {
	e.mu.Lock()
	p, ok := e.known[productID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: product %s", core.ErrNotFound, productID)
	}
	ledger := core.NewPremiumLedger(p.Premiums)
	if !ledger.Has(count) {
		e.mu.Unlock()
		return fmt.Errorf("%w: no %d-installment plan for product %s", core.ErrValidation, count, productID)
	}
	e.selected[productID] = count
	e.mu.Unlock()

	// Persistence is a boundary concern; the in-memory choice is the source
	// of truth while the session lives.
	rec, err := e.store.Get(ctx, e.sessionID, e.line.Code)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		e.log.Warn("session record load failed", "err", err)
		return nil
	}
	rec.SessionID = e.sessionID
	rec.ProductLine = e.line.Code
	rec.SelectedQuoteID = productID
	rec.SelectedInstallment = count
	rec.UpdatedAt = e.clock()
	if err := e.store.Put(ctx, rec); err != nil {
		e.log.Warn("session record save failed", "err", err)
	}
	return nil
}

// Snapshot renders the current poll state. ProcessedQuotes are rebuilt on
// every call and never stored.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Phase:    e.phase,
		Loading:  e.phase == PhaseLoading,
		Progress: e.progress(),
		Err:      e.errText,
	}

	for _, p := range e.known {
		if p.State != core.ProductStateActive {
			continue
		}
		company := e.companies[p.CompanyID]
		s.Quotes = append(s.Quotes, core.ProcessQuote(p, e.line, company, e.selected[p.ID]))
	}
	sort.Slice(s.Quotes, func(i, j int) bool {
		return s.Quotes[i].Product.ID < s.Quotes[j].Product.ID
	})
	return s
}

// progress is deterministic and monotone in elapsed wall-clock time during
// the loading phase, asymptotically approaching (never reaching) 100 until
// the early unblock jumps it there. A terminal phase reached without an
// unblock keeps the value frozen at poll end. Caller holds the lock.
func (e *Engine) progress() float64 {
	if !e.unblockedAt.IsZero() {
		return 100
	}
	if e.phase.Terminal() {
		return e.endProgress
	}
	return e.loadingProgress()
}

func (e *Engine) loadingProgress() float64 {
	if e.startedAt.IsZero() {
		return 0
	}
	elapsed := e.clock().Sub(e.startedAt).Seconds()
	scale := e.cfg.HardTimeout.Seconds() / 4
	if scale <= 0 {
		scale = 1
	}
	return 100 * elapsed / (elapsed + scale)
}
