package models

import "time"

// ReviewDecision enumerates the outcomes a reviewer can submit.
type ReviewDecision string

const (
	DecisionApprove         ReviewDecision = "APPROVE"
	DecisionReject          ReviewDecision = "REJECT"
	DecisionRequestRevision ReviewDecision = "REQUEST_REVISION"
)

// TargetStatus returns the template status a decision transitions to.
func (d ReviewDecision) TargetStatus() TemplateStatus {
	switch d {
	case DecisionApprove:
		return TemplateStatusApproved
	case DecisionReject:
		return TemplateStatusRejected
	case DecisionRequestRevision:
		return TemplateStatusNeedsRevision
	}
	return ""
}

// RequiresComment reports whether the decision needs a non-empty comment.
func (d ReviewDecision) RequiresComment() bool {
	return d == DecisionReject || d == DecisionRequestRevision
}

// ReviewRecord is an append-only record of a single review decision.
// Records are never mutated after creation.
type ReviewRecord struct {
	ID         string         `db:"id" json:"id"`
	TemplateID string         `db:"template_id" json:"template_id"`
	ReviewerID string         `db:"reviewer_id" json:"reviewer_id"`
	Decision   ReviewDecision `db:"decision" json:"decision"`
	Comment    string         `db:"comment" json:"comment"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
