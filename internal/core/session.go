package core

import (
	"context"
	"time"
)

// SessionRecord is the session-scoped state the funnel persists at the
// storage boundary, namespaced per product line. The wizard owns the live
// state; this record is a serialization of it, not the source of truth
// during an active session.
type SessionRecord struct {
	SessionID   string    `bson:"sessionId" json:"sessionId"`
	ProductLine LineCode  `bson:"productLine" json:"productLine"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`

	ProposalID          string `bson:"proposalId,omitempty" json:"proposalId,omitempty"`
	SelectedQuoteID     string `bson:"selectedQuoteId,omitempty" json:"selectedQuoteId,omitempty"`
	SelectedInstallment int    `bson:"selectedInstallment,omitempty" json:"selectedInstallment,omitempty"`

	// Staged during the OTP flow, reconciled into the profile afterwards.
	StagedEmail     string `bson:"stagedEmail,omitempty" json:"stagedEmail,omitempty"`
	StagedJob       string `bson:"stagedJob,omitempty" json:"stagedJob,omitempty"`
	StagedBirthDate string `bson:"stagedBirthDate,omitempty" json:"stagedBirthDate,omitempty"`

	CaseCreated bool `bson:"caseCreated" json:"caseCreated"`
}

// SessionStore persists SessionRecords keyed by (sessionID, productLine).
type SessionStore interface {
	Get(ctx context.Context, sessionID string, line LineCode) (SessionRecord, error)
	Put(ctx context.Context, rec SessionRecord) error
	// Delete clears a line's record on successful purchase or explicit restart.
	Delete(ctx context.Context, sessionID string, line LineCode) error
}
