/*
approval.go - Variance approval workflow

PURPOSE:
  State machine over ApprovalState for a ThreeWayMatching.

STATES:
  ┌──────┐
  │ NONE │  terminal, no approval needed
  └──────┘

  ┌─────────┐ approveVariance ┌──────────┐
  │ PENDING │ ──────────────▶ │ APPROVED │ terminal
  └─────────┘                 └──────────┘
       │      rejectVariance  ┌──────────┐
       └────────────────────▶ │ REJECTED │ terminal
                              └──────────┘

RULES:
  - The actor needs CapabilityApproveVariances, checked before anything else.
  - Only PENDING may transition. Anything else is an InvalidStateError.
  - A reason is mandatory and recorded in the audit entry.
  - Rejection never touches document data. Re-evaluation produces a new
    ThreeWayMatching instead of reopening a terminal one.

CONCURRENCY:
  The persisted write is guarded by the record Version (see store.go).
  The loser of a race sees InvalidStateError, never a silent overwrite.

SEE ALSO:
  - service.go: ApproveVariance, RejectVariance
*/
package matching

import (
	"strings"
	"time"
)

// Decision is the outcome an approver records.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) target() ApprovalState {
	if d == DecisionApprove {
		return ApprovalApproved
	}
	return ApprovalRejected
}

func (d Decision) auditAction() AuditAction {
	if d == DecisionApprove {
		return AuditVarianceApproved
	}
	return AuditVarianceRejected
}

// Authorize checks the actor may decide on variances.
func Authorize(actor Actor, capability Capability) error {
	if !actor.Can(capability) {
		return &PermissionError{ActorID: actor.ID, Capability: capability}
	}
	return nil
}

// Transition applies decision to m and returns the updated copy.
// m itself is left untouched.
func Transition(m ThreeWayMatching, decision Decision, actor Actor, reason string, at time.Time) (ThreeWayMatching, error) {
	if err := Authorize(actor, CapabilityApproveVariances); err != nil {
		return ThreeWayMatching{}, err
	}
	if m.ApprovalState != ApprovalPending {
		return ThreeWayMatching{}, &InvalidStateError{
			MatchingID: m.ID,
			Current:    m.ApprovalState,
			Action:     string(decision),
		}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		verr := &ValidationError{}
		verr.add("reason", "is required to %s a variance", decision)
		return ThreeWayMatching{}, verr
	}

	next := m
	next.ApprovalState = decision.target()
	next.DecidedBy = actor.ID
	next.DecidedAt = &at
	next.DecisionReason = reason
	next.Version = m.Version + 1
	return next, nil
}
