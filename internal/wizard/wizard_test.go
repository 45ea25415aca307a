package wizard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/internal/store/memory"
)

const (
	validNationalID = "10000000146"
	validPhone      = "05321234567"
	validOTP        = "123456"
)

type fakeBridge struct {
	tokens     core.TokenPair
	loginCalls []core.LoginInput
	loginErr   error
}

func (b *fakeBridge) Login(_ context.Context, in core.LoginInput) (string, error) {
	if b.loginErr != nil {
		return "", b.loginErr
	}
	b.loginCalls = append(b.loginCalls, in)
	return fmt.Sprintf("challenge-%d", len(b.loginCalls)), nil
}

func (b *fakeBridge) VerifyOTP(_ context.Context, _, code string) (core.TokenPair, error) {
	if code != validOTP {
		return core.TokenPair{}, fmt.Errorf("%w: wrong passcode", core.ErrValidation)
	}
	b.tokens = core.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
	return b.tokens, nil
}

func (b *fakeBridge) Refresh(context.Context) (core.TokenPair, error) { return b.tokens, nil }
func (b *fakeBridge) Logout(context.Context) error                    { b.tokens = core.TokenPair{}; return nil }
func (b *fakeBridge) Tokens() core.TokenPair                          { return b.tokens }

type fakeProfiles struct {
	profile   core.CustomerProfile
	getErr    error
	updates   []core.CustomerProfile
	updateErr error
}

func (p *fakeProfiles) GetProfile(context.Context) (core.CustomerProfile, error) {
	if p.getErr != nil {
		return core.CustomerProfile{}, p.getErr
	}
	return p.profile, nil
}

func (p *fakeProfiles) UpdateProfile(_ context.Context, in core.CustomerProfile) (core.CustomerProfile, error) {
	if p.updateErr != nil {
		return core.CustomerProfile{}, p.updateErr
	}
	p.updates = append(p.updates, in)
	p.profile = in
	return in, nil
}

type fakeRef struct{}

func (fakeRef) ListCities(context.Context) ([]core.RefItem, error) {
	return []core.RefItem{{Value: "34", Text: "Istanbul"}}, nil
}

func (fakeRef) ListDistricts(_ context.Context, city string) ([]core.RefItem, error) {
	return []core.RefItem{{Value: city + "-1", Text: "Merkez"}}, nil
}

type fakeAgg struct {
	createErr   error
	createCalls int
}

func (a *fakeAgg) CreateProposal(context.Context, core.ProposalPayload) (string, error) {
	if a.createErr != nil {
		return "", a.createErr
	}
	a.createCalls++
	return "prop-1", nil
}

func (a *fakeAgg) GetProposal(context.Context, string) ([]core.Product, error) { return nil, nil }
func (a *fakeAgg) ListCompanies(context.Context) ([]core.InsuranceCompany, error) {
	return nil, nil
}
func (a *fakeAgg) GetProductDocument(context.Context, string, string) (string, error) {
	return "", nil
}

type fakeCases struct {
	calls int
}

func (c *fakeCases) EnsureCase(context.Context, string, core.LineCode) error {
	c.calls++
	return nil
}

type fakeEvents struct {
	emitted map[string]int
}

func (e *fakeEvents) Emit(_ core.LineCode, event string) {
	if e.emitted == nil {
		e.emitted = map[string]int{}
	}
	e.emitted[event]++
}

type fixture struct {
	bridge   *fakeBridge
	profiles *fakeProfiles
	agg      *fakeAgg
	cases    *fakeCases
	events   *fakeEvents
	store    core.SessionStore
	wiz      *Wizard
}

func newFixture(t *testing.T, profile core.CustomerProfile) *fixture {
	t.Helper()
	f := &fixture{
		bridge:   &fakeBridge{},
		profiles: &fakeProfiles{profile: profile},
		agg:      &fakeAgg{},
		cases:    &fakeCases{},
		events:   &fakeEvents{},
		store:    memory.NewSessionStore(),
	}
	f.wiz = f.newWizard(t)
	return f
}

func (f *fixture) newWizard(t *testing.T) *Wizard {
	t.Helper()
	lines := core.NewLines()
	health, err := lines.Get(core.LineHealth)
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("sess-1", "agent-7", "web", health, Deps{
		Bridge:   f.bridge,
		Profiles: f.profiles,
		RefData:  fakeRef{},
		Agg:      f.agg,
		Cases:    f.cases,
		Store:    f.store,
		Events:   f.events,
		Log:      log,
	})
}

func completeProfile() core.CustomerProfile {
	return core.CustomerProfile{
		CustomerID:   "cust-1",
		CustomerType: core.CustomerIndividual,
		FirstName:    "Ayse",
		LastName:     "Demir",
		Email:        "old@example.com",
		CityRef:      "34",
		DistrictRef:  "34-1",
	}
}

func personal() PersonalInfo {
	return PersonalInfo{
		IdentityNumber: validNationalID,
		Phone:          validPhone,
		BirthDate:      "1990-05-15",
		Consent:        true,
	}
}

func TestWizard_IndividualFlowThroughOTP(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	assert.Equal(t, StepAwaitingOTP, f.wiz.Step())

	require.Len(t, f.bridge.loginCalls, 1)
	call := f.bridge.loginCalls[0]
	assert.Equal(t, core.CustomerIndividual, call.CustomerType)
	assert.Equal(t, "5321234567", call.Phone, "phone is normalized before login")
	assert.Equal(t, "agent-7", call.AgentID)

	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))
	assert.NotEmpty(t, f.bridge.Tokens().AccessToken, "tokens persisted after verification")
	assert.Equal(t, StepProductInfo, f.wiz.Step(), "complete profile skips additional info")
}

func TestWizard_ConsentRequiredBeforeAnyNetworkCall(t *testing.T) {
	f := newFixture(t, completeProfile())

	in := personal()
	in.Consent = false
	err := f.wiz.SubmitPersonalInfo(context.Background(), in)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, f.bridge.loginCalls, "no login without consent")
	assert.Equal(t, StepPersonalInfo, f.wiz.Step())
}

func TestWizard_PhoneMismatchRoutesToDedicatedState(t *testing.T) {
	f := newFixture(t, completeProfile())
	f.bridge.loginErr = fmt.Errorf("%w: upstream said no", core.ErrIdentityMismatch)

	err := f.wiz.SubmitPersonalInfo(context.Background(), personal())
	assert.ErrorIs(t, err, core.ErrIdentityMismatch)
	assert.Equal(t, StepPhoneMismatch, f.wiz.Step())
}

func TestWizard_WrongOTPKeepsPersonalInfo(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	assert.Error(t, f.wiz.VerifyOTP(ctx, "000000"))
	assert.Equal(t, StepAwaitingOTP, f.wiz.Step())

	// Resend mints a fresh challenge without re-entering the form.
	require.NoError(t, f.wiz.ResendOTP(ctx))
	assert.Len(t, f.bridge.loginCalls, 2)

	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))
	assert.Equal(t, StepProductInfo, f.wiz.Step())
}

func TestWizard_IncompleteProfileCollectsAdditionalInfo(t *testing.T) {
	profile := completeProfile()
	profile.DistrictRef = ""
	f := newFixture(t, profile)
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))
	assert.Equal(t, StepAdditionalInfo, f.wiz.Step())
	assert.True(t, f.wiz.Gaps().District)

	// District empty: field-level rejection, no profile update issued.
	err := f.wiz.SubmitAdditionalInfo(ctx, AdditionalInfo{
		FirstName: "Ayse", LastName: "Demir", CityRef: "34",
	})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, f.profiles.updates)
	assert.Equal(t, StepAdditionalInfo, f.wiz.Step())

	require.NoError(t, f.wiz.SubmitAdditionalInfo(ctx, AdditionalInfo{
		FirstName: "Ayse", LastName: "Demir", CityRef: "34", DistrictRef: "34-1",
	}))
	assert.Equal(t, StepProductInfo, f.wiz.Step())
	require.Len(t, f.profiles.updates, 1)
	assert.Equal(t, "34-1", f.profiles.updates[0].DistrictRef)
}

func TestWizard_ProfileCheckRetryableAfterTransientFailure(t *testing.T) {
	f := newFixture(t, completeProfile())
	f.profiles.getErr = fmt.Errorf("%w: profile service down", core.ErrUpstream)
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	err := f.wiz.VerifyOTP(ctx, validOTP)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Equal(t, StepProfileCheck, f.wiz.Step(), "transient failure leaves the check pending")

	// Still down: the retry fails the same way and stays retryable.
	assert.ErrorIs(t, f.wiz.ResumeProfileCheck(ctx), core.ErrUpstream)
	assert.Equal(t, StepProfileCheck, f.wiz.Step())

	f.profiles.getErr = nil
	require.NoError(t, f.wiz.ResumeProfileCheck(ctx))
	assert.Equal(t, StepProductInfo, f.wiz.Step())

	// Nothing pending once the check completed.
	assert.ErrorIs(t, f.wiz.ResumeProfileCheck(ctx), core.ErrInvalidState)
}

func TestWizard_ProfileCheckSessionExpiryEndsFlow(t *testing.T) {
	f := newFixture(t, completeProfile())
	f.profiles.getErr = fmt.Errorf("%w: token dead", core.ErrUnauthorized)
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	assert.ErrorIs(t, f.wiz.VerifyOTP(ctx, validOTP), core.ErrUnauthorized)
	assert.Equal(t, StepFailed, f.wiz.Step())
}

func TestWizard_EmailReconciliationIsBestEffort(t *testing.T) {
	f := newFixture(t, completeProfile())
	f.profiles.updateErr = fmt.Errorf("%w: profile service down", core.ErrUpstream)
	ctx := context.Background()

	in := personal()
	in.Email = "new@example.com"
	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, in))
	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))

	// The failed update is swallowed; the wizard still advances.
	assert.Equal(t, StepProductInfo, f.wiz.Step())
}

func TestWizard_SubmitProposal(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))

	t.Run("invalid inputs stay local", func(t *testing.T) {
		_, err := f.wiz.SubmitProductInfo(ctx, map[string]string{"heightCm": "600", "weightKg": "70"})
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.Zero(t, f.agg.createCalls)
	})

	t.Run("creation failure returns to product step", func(t *testing.T) {
		f.agg.createErr = fmt.Errorf("%w: aggregator down", core.ErrUpstream)
		_, err := f.wiz.SubmitProductInfo(ctx, map[string]string{"heightCm": "175", "weightKg": "70"})
		assert.Error(t, err)
		assert.Equal(t, StepProductInfo, f.wiz.Step())
	})

	t.Run("success publishes proposal id", func(t *testing.T) {
		f.agg.createErr = nil
		id, err := f.wiz.SubmitProductInfo(ctx, map[string]string{"heightCm": "175", "weightKg": "70"})
		require.NoError(t, err)
		assert.Equal(t, "prop-1", id)
		assert.Equal(t, StepDone, f.wiz.Step())

		rec, err := f.store.Get(ctx, "sess-1", core.LineHealth)
		require.NoError(t, err)
		assert.Equal(t, "prop-1", rec.ProposalID)
	})
}

func TestWizard_MilestoneEventsFireOncePerSession(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	// Re-submitting while awaiting OTP must not double the milestone.
	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))

	assert.Equal(t, 1, f.events.emitted["tss_funnel_started"])
	assert.Equal(t, 1, f.events.emitted["tss_otp_verified"])
}

func TestWizard_CaseCreatedOnceAcrossRemounts(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	require.NoError(t, f.wiz.SubmitPersonalInfo(ctx, personal()))
	require.NoError(t, f.wiz.VerifyOTP(ctx, validOTP))
	assert.Equal(t, 1, f.cases.calls)

	// Same session re-mounted: the persisted guard suppresses the second
	// check-then-create.
	wiz2 := f.newWizard(t)
	require.NoError(t, wiz2.SubmitPersonalInfo(ctx, personal()))
	assert.Equal(t, StepProductInfo, wiz2.Step(), "existing tokens skip the OTP branch")
	assert.Equal(t, 1, f.cases.calls)
}

func TestWizard_StepOrderEnforced(t *testing.T) {
	f := newFixture(t, completeProfile())
	ctx := context.Background()

	err := f.wiz.VerifyOTP(ctx, validOTP)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.wiz.SubmitProductInfo(ctx, map[string]string{"heightCm": "175", "weightKg": "70"})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}
