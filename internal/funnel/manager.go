package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/internal/polling"
	"github.com/acentrix/quotefunnel/internal/wizard"
)

// Manager owns the live funnel sessions: one wizard and at most one polling
// engine per (session, product line). All operations on one session are
// serialized through its mutex, which is the Go rendition of the original
// single event loop.
type Manager struct {
	lines   *core.Lines
	deps    wizard.Deps
	poll    polling.Config
	buy     core.PurchaseBridge
	events  polling.Events
	log     *slog.Logger
	agentID string
	channel string

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

type sessionKey struct {
	id   string
	line core.LineCode
}

type session struct {
	mu     sync.Mutex
	wiz    *wizard.Wizard
	engine *polling.Engine
	cancel context.CancelFunc
}

func NewManager(lines *core.Lines, deps wizard.Deps, poll polling.Config,
	buy core.PurchaseBridge, events polling.Events, agentID, channel string, log *slog.Logger) *Manager {
	return &Manager{
		lines:    lines,
		deps:     deps,
		poll:     poll,
		buy:      buy,
		events:   events,
		log:      log,
		agentID:  agentID,
		channel:  channel,
		sessions: map[sessionKey]*session{},
	}
}

func (m *Manager) get(sessionID string, lineCode core.LineCode) (*session, core.ProductLine, error) {
	line, err := m.lines.Get(lineCode)
	if err != nil {
		return nil, core.ProductLine{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := sessionKey{sessionID, lineCode}
	s, ok := m.sessions[k]
	if !ok {
		s = &session{wiz: wizard.New(sessionID, m.agentID, m.channel, line, m.deps)}
		m.sessions[k] = s
	}
	return s, line, nil
}

// Step reports the wizard step of a session.
func (m *Manager) Step(sessionID string, lineCode core.LineCode) (wizard.Step, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wiz.Step(), nil
}

func (m *Manager) SubmitPersonalInfo(ctx context.Context, sessionID string, lineCode core.LineCode, in wizard.PersonalInfo) (wizard.Step, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.wiz.SubmitPersonalInfo(ctx, in)
	return s.wiz.Step(), err
}

func (m *Manager) VerifyOTP(ctx context.Context, sessionID string, lineCode core.LineCode, code string) (wizard.Step, core.ProfileGaps, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", core.ProfileGaps{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.wiz.VerifyOTP(ctx, code)
	return s.wiz.Step(), s.wiz.Gaps(), err
}

func (m *Manager) ResendOTP(ctx context.Context, sessionID string, lineCode core.LineCode) error {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wiz.ResendOTP(ctx)
}

// Profile returns the customer profile and its gaps. A profile check left
// pending by a transient upstream failure is re-run here, so the client's
// next profile fetch doubles as the retry.
func (m *Manager) Profile(ctx context.Context, sessionID string, lineCode core.LineCode) (core.CustomerProfile, core.ProfileGaps, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return core.CustomerProfile{}, core.ProfileGaps{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wiz.Step() == wizard.StepProfileCheck {
		if err := s.wiz.ResumeProfileCheck(ctx); err != nil {
			return core.CustomerProfile{}, core.ProfileGaps{}, err
		}
	}
	return s.wiz.Profile(), s.wiz.Gaps(), nil
}

func (m *Manager) SubmitAdditionalInfo(ctx context.Context, sessionID string, lineCode core.LineCode, in wizard.AdditionalInfo) (wizard.Step, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.wiz.SubmitAdditionalInfo(ctx, in)
	return s.wiz.Step(), err
}

func (m *Manager) Districts(ctx context.Context, sessionID string, lineCode core.LineCode, city string) ([]core.RefItem, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wiz.Districts(ctx, city)
}

// SubmitProductInfo creates the proposal and mounts a fresh polling engine
// for it. Any engine from an earlier submission is torn down first; its
// in-flight tick discards itself on cancellation.
func (m *Manager) SubmitProductInfo(ctx context.Context, sessionID string, lineCode core.LineCode, inputs map[string]string) (string, error) {
	s, line, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	proposalID, err := s.wiz.SubmitProductInfo(ctx, inputs)
	if err != nil {
		return "", err
	}

	if s.cancel != nil {
		s.cancel()
	}
	engineCtx, cancel := context.WithCancel(context.Background())
	s.engine = polling.New(sessionID, proposalID, line, m.poll,
		m.deps.Agg, m.deps.Store, m.events, m.log)
	s.cancel = cancel
	go s.engine.Run(engineCtx)

	return proposalID, nil
}

// Quotes returns the current poll snapshot.
func (m *Manager) Quotes(sessionID string, lineCode core.LineCode) (polling.Snapshot, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return polling.Snapshot{}, err
	}
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return polling.Snapshot{}, fmt.Errorf("%w: no proposal submitted yet", core.ErrInvalidState)
	}
	return engine.Snapshot(), nil
}

func (m *Manager) SelectInstallment(ctx context.Context, sessionID string, lineCode core.LineCode, productID string, count int) error {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return fmt.Errorf("%w: no proposal submitted yet", core.ErrInvalidState)
	}
	return engine.SelectInstallment(ctx, productID, count)
}

// Document fetches a product's PDF offer document URL on demand.
func (m *Manager) Document(ctx context.Context, sessionID string, lineCode core.LineCode, productID string) (string, error) {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	proposalID := s.wiz.ProposalID()
	s.mu.Unlock()
	if proposalID == "" {
		return "", fmt.Errorf("%w: no proposal submitted yet", core.ErrInvalidState)
	}
	return m.deps.Agg.GetProductDocument(ctx, proposalID, productID)
}

// Purchase hands the chosen quote off to checkout, stops polling and clears
// the per-line session state.
func (m *Manager) Purchase(ctx context.Context, sessionID string, lineCode core.LineCode, productID string, installmentCount int) error {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	proposalID := s.wiz.ProposalID()
	if proposalID == "" {
		return fmt.Errorf("%w: no proposal submitted yet", core.ErrInvalidState)
	}
	if err := m.buy.Purchase(ctx, proposalID, productID, installmentCount); err != nil {
		return err
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.engine = nil
	}
	return m.deps.Store.Delete(ctx, sessionID, lineCode)
}

// Restart tears down the session's engine and resets the wizard.
func (m *Manager) Restart(ctx context.Context, sessionID string, lineCode core.LineCode) error {
	s, _, err := m.get(sessionID, lineCode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.engine = nil
	}
	return s.wiz.Restart(ctx)
}

// Shutdown cancels every running engine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}
}
