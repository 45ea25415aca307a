package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// Step is the wizard's state. Submitting is transient; Done, Failed and
// PhoneMismatch are terminal.
type Step string

const (
	StepPersonalInfo    Step = "personal_info"
	StepAwaitingOTP     Step = "awaiting_otp"
	StepProfileCheck    Step = "profile_check"
	StepAdditionalInfo  Step = "additional_info"
	StepProductInfo     Step = "product_info"
	StepSubmitting      Step = "submitting"
	StepDone            Step = "done"
	StepFailed          Step = "failed"
	StepPhoneMismatch   Step = "phone_mismatch"
)

// Events receives funnel milestone events. The once-per-session guard lives
// in the wizard, not here.
type Events interface {
	Emit(line core.LineCode, event string)
}

// PersonalInfo is the entry step's input.
type PersonalInfo struct {
	IdentityNumber   string `json:"identityNumber"`
	Phone            string `json:"phone"`
	Email            string `json:"email,omitempty"`
	BirthDate        string `json:"birthDate,omitempty"`
	Job              string `json:"job,omitempty"`
	Consent          bool   `json:"consent"`
	MarketingConsent bool   `json:"marketingConsent"`
}

// AdditionalInfo collects the profile fields the completion gate found
// missing.
type AdditionalInfo struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	CompanyTitle string `json:"companyTitle,omitempty"`
	CityRef      string `json:"cityRef"`
	DistrictRef  string `json:"districtRef"`
}

// Wizard drives one funnel session through the quote acquisition steps.
// Callers are expected to serialize access per session; operations returning
// ErrInvalidState indicate a request for a step the session is not on.
type Wizard struct {
	line     core.ProductLine
	bridge   core.SessionBridge
	profiles core.ProfileStore
	refdata  core.ReferenceData
	agg      core.ProposalAggregator
	cases    core.CaseDesk
	store    core.SessionStore
	events   Events
	log      *slog.Logger
	clock    func() time.Time

	sessionID string
	agentID   string
	channel   string

	step           Step
	customerType   core.CustomerType
	personal       PersonalInfo
	challengeToken string
	profile        core.CustomerProfile
	gaps           core.ProfileGaps
	proposalID     string

	// Idempotency guards: milestone events fire once per session, and the
	// case check-then-create runs at most once even across re-mounts.
	fired       map[string]bool
	caseEnsured bool
}

type Deps struct {
	Bridge   core.SessionBridge
	Profiles core.ProfileStore
	RefData  core.ReferenceData
	Agg      core.ProposalAggregator
	Cases    core.CaseDesk
	Store    core.SessionStore
	Events   Events
	Log      *slog.Logger
}

func New(sessionID, agentID, channel string, line core.ProductLine, d Deps) *Wizard {
	return &Wizard{
		line:      line,
		bridge:    d.Bridge,
		profiles:  d.Profiles,
		refdata:   d.RefData,
		agg:       d.Agg,
		cases:     d.Cases,
		store:     d.Store,
		events:    d.Events,
		log:       d.Log.With("session", sessionID, "line", line.Code),
		clock:     time.Now,
		sessionID: sessionID,
		agentID:   agentID,
		channel:   channel,
		step:      StepPersonalInfo,
		fired:     map[string]bool{},
	}
}

func (w *Wizard) Step() Step                    { return w.step }
func (w *Wizard) ProposalID() string            { return w.proposalID }
func (w *Wizard) Gaps() core.ProfileGaps        { return w.gaps }
func (w *Wizard) Profile() core.CustomerProfile { return w.profile }

// restore loads persisted session-scoped state so guards survive re-mounts.
func (w *Wizard) restore(ctx context.Context) core.SessionRecord {
	rec, err := w.store.Get(ctx, w.sessionID, w.line.Code)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		w.log.Warn("session record load failed", "err", err)
	}
	if rec.CaseCreated {
		w.caseEnsured = true
	}
	return rec
}

func (w *Wizard) persist(ctx context.Context, mutate func(*core.SessionRecord)) {
	rec := w.restore(ctx)
	rec.SessionID = w.sessionID
	rec.ProductLine = w.line.Code
	rec.UpdatedAt = w.clock()
	mutate(&rec)
	if err := w.store.Put(ctx, rec); err != nil {
		w.log.Warn("session record save failed", "err", err)
	}
}

// SubmitPersonalInfo validates the entry step and either starts an OTP
// challenge or, when a session already exists, goes straight to the profile
// check. Missing consent is a local validation failure, never a network
// call.
func (w *Wizard) SubmitPersonalInfo(ctx context.Context, in PersonalInfo) error {
	if w.step != StepPersonalInfo && w.step != StepAwaitingOTP {
		return fmt.Errorf("%w: personal info already submitted", core.ErrInvalidState)
	}
	if !in.Consent {
		return fmt.Errorf("%w: consent is required", core.ErrValidation)
	}

	ctype, err := ClassifyIdentity(in.IdentityNumber)
	if err != nil {
		return err
	}
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if ctype == core.CustomerIndividual {
		if err := ValidateBirthDate(in.BirthDate, w.clock()); err != nil {
			return err
		}
	}

	in.Phone = phone
	w.personal = in
	w.customerType = ctype
	w.fireOnce(w.line.EventFunnelStart)

	// Stage email/job/birthdate for post-OTP reconciliation.
	w.persist(ctx, func(rec *core.SessionRecord) {
		rec.StagedEmail = in.Email
		rec.StagedJob = in.Job
		rec.StagedBirthDate = in.BirthDate
	})

	if w.bridge.Tokens().AccessToken != "" {
		return w.runProfileCheck(ctx)
	}

	challenge, err := w.bridge.Login(ctx, w.loginInput())
	if err != nil {
		if errors.Is(err, core.ErrIdentityMismatch) {
			w.step = StepPhoneMismatch
			w.log.Info("identity/phone mismatch, routing to recovery")
			return err
		}
		return err
	}
	w.challengeToken = challenge
	w.step = StepAwaitingOTP
	return nil
}

func (w *Wizard) loginInput() core.LoginInput {
	return core.LoginInput{
		IdentityNumber: w.personal.IdentityNumber,
		BirthDate:      w.personal.BirthDate,
		Phone:          w.personal.Phone,
		AgentID:        w.agentID,
		CustomerType:   w.customerType,
	}
}

// VerifyOTP exchanges the passcode for tokens and moves on to the profile
// check. A wrong code keeps the session on this step with all entered
// personal-info values intact.
func (w *Wizard) VerifyOTP(ctx context.Context, code string) error {
	if w.step != StepAwaitingOTP {
		return fmt.Errorf("%w: no passcode pending", core.ErrInvalidState)
	}
	if _, err := w.bridge.VerifyOTP(ctx, w.challengeToken, code); err != nil {
		return err
	}
	w.fireOnce(w.line.EventOTPVerified)
	return w.runProfileCheck(ctx)
}

// ResendOTP re-invokes login to mint a fresh challenge.
func (w *Wizard) ResendOTP(ctx context.Context) error {
	if w.step != StepAwaitingOTP {
		return fmt.Errorf("%w: no passcode pending", core.ErrInvalidState)
	}
	challenge, err := w.bridge.Login(ctx, w.loginInput())
	if err != nil {
		return err
	}
	w.challengeToken = challenge
	return nil
}

func (w *Wizard) runProfileCheck(ctx context.Context) error {
	w.step = StepProfileCheck

	profile, err := w.profiles.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			w.step = StepFailed
		}
		return err
	}
	w.profile = profile
	w.gaps = core.CheckProfile(profile)

	if w.gaps.Any() {
		w.step = StepAdditionalInfo
		return nil
	}

	w.reconcileEmail(ctx)
	return w.enterProductStep(ctx)
}

// ResumeProfileCheck re-runs a profile check that failed on a transient
// upstream error. Only session expiry ends the flow; any other failure leaves
// the check pending so the client can retry without re-entering the funnel.
func (w *Wizard) ResumeProfileCheck(ctx context.Context) error {
	if w.step != StepProfileCheck {
		return fmt.Errorf("%w: no profile check pending", core.ErrInvalidState)
	}
	return w.runProfileCheck(ctx)
}

// reconcileEmail pushes a user-entered email onto a complete profile.
// Best-effort: an update failure is logged and swallowed.
func (w *Wizard) reconcileEmail(ctx context.Context) {
	if w.personal.Email == "" || w.personal.Email == w.profile.Email {
		return
	}
	updated := w.profile
	updated.Email = w.personal.Email
	out, err := w.profiles.UpdateProfile(ctx, updated)
	if err != nil {
		w.log.Warn("email reconciliation failed", "err", err)
		return
	}
	w.profile = out
}

// SubmitAdditionalInfo persists the missing profile fields. All of name,
// city and district must be present; a city without a resolved district is
// rejected before any network call.
func (w *Wizard) SubmitAdditionalInfo(ctx context.Context, in AdditionalInfo) error {
	if w.step != StepAdditionalInfo {
		return fmt.Errorf("%w: additional info not expected", core.ErrInvalidState)
	}

	updated := w.profile
	updated.CustomerType = w.customerType
	switch w.customerType {
	case core.CustomerCorporate:
		if in.CompanyTitle == "" {
			return fmt.Errorf("%w: company title is required", core.ErrValidation)
		}
		updated.CompanyTitle = in.CompanyTitle
	default:
		if in.FirstName == "" || in.LastName == "" {
			return fmt.Errorf("%w: first and last name are required", core.ErrValidation)
		}
		updated.FirstName = in.FirstName
		updated.LastName = in.LastName
	}
	if in.CityRef == "" {
		return fmt.Errorf("%w: city is required", core.ErrValidation)
	}
	if in.DistrictRef == "" {
		return fmt.Errorf("%w: district is required", core.ErrValidation)
	}
	updated.CityRef = in.CityRef
	updated.DistrictRef = in.DistrictRef
	if w.personal.Email != "" {
		updated.Email = w.personal.Email
	}

	out, err := w.profiles.UpdateProfile(ctx, updated)
	if err != nil {
		return err
	}
	w.profile = out
	w.gaps = core.ProfileGaps{}
	return w.enterProductStep(ctx)
}

// Districts lists the district options for a city. Changing the city on the
// client clears its district selection and re-invokes this.
func (w *Wizard) Districts(ctx context.Context, cityValue string) ([]core.RefItem, error) {
	if cityValue == "" {
		return nil, fmt.Errorf("%w: city is required", core.ErrValidation)
	}
	return w.refdata.ListDistricts(ctx, cityValue)
}

func (w *Wizard) enterProductStep(ctx context.Context) error {
	w.step = StepProductInfo
	w.ensureCase(ctx)
	return nil
}

// ensureCase runs the sales-opportunity check-then-create at most once per
// session, with the guard persisted so re-mounts do not repeat it.
func (w *Wizard) ensureCase(ctx context.Context) {
	w.restore(ctx)
	if w.caseEnsured {
		return
	}
	w.caseEnsured = true
	if err := w.cases.EnsureCase(ctx, w.profile.CustomerID, w.line.Code); err != nil {
		w.log.Warn("sales case creation failed", "err", err)
		return
	}
	w.persist(ctx, func(rec *core.SessionRecord) { rec.CaseCreated = true })
}

// SubmitProductInfo validates the line-specific inputs and creates the
// proposal. On success the session is Done and the proposal id is published
// for the polling engine; on failure the session returns to the product step
// with its inputs preserved.
func (w *Wizard) SubmitProductInfo(ctx context.Context, inputs map[string]string) (string, error) {
	if w.step != StepProductInfo {
		return "", fmt.Errorf("%w: product info not expected", core.ErrInvalidState)
	}
	for _, f := range w.line.RequiredInputs {
		if inputs[f] == "" {
			return "", fmt.Errorf("%w: %s is required", core.ErrValidation, f)
		}
	}
	if err := w.line.ValidateInput(inputs); err != nil {
		return "", err
	}

	w.step = StepSubmitting
	proposalID, err := w.agg.CreateProposal(ctx, core.ProposalPayload{
		ProductLine: w.line.Code,
		CustomerID:  w.profile.CustomerID,
		Channel:     w.channel,
		Inputs:      inputs,
	})
	if err != nil {
		w.step = StepProductInfo
		return "", err
	}

	w.proposalID = proposalID
	w.step = StepDone
	w.fireOnce(w.line.EventProposal)
	w.persist(ctx, func(rec *core.SessionRecord) { rec.ProposalID = proposalID })
	w.log.Info("proposal created", "proposal", proposalID)
	return proposalID, nil
}

// Restart clears the session's persisted state for this line.
func (w *Wizard) Restart(ctx context.Context) error {
	w.step = StepPersonalInfo
	w.personal = PersonalInfo{}
	w.challengeToken = ""
	w.proposalID = ""
	w.gaps = core.ProfileGaps{}
	w.caseEnsured = false
	w.fired = map[string]bool{}
	return w.store.Delete(ctx, w.sessionID, w.line.Code)
}

func (w *Wizard) fireOnce(event string) {
	if event == "" || w.fired[event] {
		return
	}
	w.fired[event] = true
	w.events.Emit(w.line.Code, event)
}
