/*
service.go - Matching service: persistence, workflow and events

PURPOSE:
  Orchestrates the pure engine with storage and collaborators:
  1. Match: snapshot rules, run Match, persist with audit entry, emit events
  2. ApproveVariance / RejectVariance: authorized, versioned transitions
  3. Document intake: store PO/GR/Invoice and auto-match when enabled
  4. Configuration: replace the whole rule snapshot

EVENT DELIVERY:
  Events are published after the matching is persisted. A failing sink is
  logged; the matching stays created and is returned to the caller.

EXAMPLE:
  svc := matching.NewService(store, store, rules, matching.NewLogSink(logger))
  m, err := svc.Match(ctx, actor, po, gr, inv)
  approved, err := svc.ApproveVariance(ctx, approver, m.ID, "price increase agreed")

SEE ALSO:
  - document.go: The pure matcher
  - approval.go: Transition rules
  - store.go: Interfaces used here
*/
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service holds all dependencies of the matching workflow.
type Service struct {
	Store     MatchingStore
	Audit     AuditLog
	Rules     *RuleStore
	Events    EventSink
	Documents DocumentStore      // optional, needed for intake and auto-match
	Configs   ConfigurationStore // optional, persists configuration changes
	Logger    *slog.Logger

	Now   func() time.Time
	NewID func() string
}

// NewService creates a service with wall-clock time and UUID identifiers.
func NewService(store MatchingStore, audit AuditLog, rules *RuleStore, events EventSink) *Service {
	return &Service{
		Store:  store,
		Audit:  audit,
		Rules:  rules,
		Events: events,
		Logger: slog.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

// =============================================================================
// MATCHING
// =============================================================================

// Match evaluates the three documents against the current rule snapshot
// and persists the result.
func (s *Service) Match(ctx context.Context, actor Actor, po PurchaseOrder, gr GoodsReceipt, inv Invoice) (ThreeWayMatching, error) {
	return s.match(ctx, actor, po, gr, inv, s.Store.CreateMatching)
}

// createFunc persists a new matching with its audit entry.
type createFunc func(ctx context.Context, m ThreeWayMatching, entry AuditEntry) error

func (s *Service) match(ctx context.Context, actor Actor, po PurchaseOrder, gr GoodsReceipt, inv Invoice, create createFunc) (ThreeWayMatching, error) {
	cfg := s.Rules.Snapshot()
	now := s.Now()

	m, err := Match(po, gr, inv, cfg, actor, now)
	if err != nil {
		return ThreeWayMatching{}, err
	}
	m.ID = MatchingID(s.NewID())
	m.Version = 1

	entry := AuditEntry{
		ID:         s.NewID(),
		Timestamp:  now,
		ActorID:    actor.ID,
		Action:     AuditMatchingCreated,
		MatchingID: m.ID,
		Payload: map[string]any{
			"overall_status":    string(m.OverallStatus),
			"total_variance":    m.TotalVariance.String(),
			"requires_approval": m.RequiresApproval,
			"payment_blocked":   m.PaymentBlocked,
		},
	}
	if err := create(ctx, m, entry); err != nil {
		return ThreeWayMatching{}, fmt.Errorf("failed to save matching: %w", err)
	}

	s.Logger.InfoContext(ctx, "matching created",
		"matching_id", m.ID,
		"invoice_id", m.InvoiceID,
		"purchase_order", m.PurchaseOrderNumber,
		"status", m.OverallStatus,
		"approval_state", m.ApprovalState,
	)

	for _, e := range eventsFor(m, cfg) {
		if s.Events == nil {
			break
		}
		if err := s.Events.Publish(ctx, e); err != nil {
			s.Logger.ErrorContext(ctx, "failed to publish event",
				"type", e.Type, "matching_id", m.ID, "error", err)
		}
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, id MatchingID) (ThreeWayMatching, error) {
	return s.Store.GetMatching(ctx, id)
}

func (s *Service) List(ctx context.Context, filter MatchingFilter) ([]ThreeWayMatching, error) {
	return s.Store.ListMatchings(ctx, filter)
}

// Analytics computes statistics over the matchings passing filter.
func (s *Service) Analytics(ctx context.Context, filter MatchingFilter) (AnalyticsSummary, error) {
	ms, err := s.Store.ListMatchings(ctx, filter)
	if err != nil {
		return AnalyticsSummary{}, err
	}
	return ComputeAnalytics(ms), nil
}

// AuditTrail returns every audit entry recorded for a matching.
func (s *Service) AuditTrail(ctx context.Context, id MatchingID) ([]AuditEntry, error) {
	if _, err := s.Store.GetMatching(ctx, id); err != nil {
		return nil, err
	}
	return s.Audit.QueryAudit(ctx, AuditFilter{MatchingID: &id})
}

// =============================================================================
// APPROVAL WORKFLOW
// =============================================================================

// ApproveVariance moves a PENDING matching to APPROVED.
func (s *Service) ApproveVariance(ctx context.Context, actor Actor, id MatchingID, reason string) (ThreeWayMatching, error) {
	return s.decide(ctx, actor, id, DecisionApprove, reason)
}

// RejectVariance moves a PENDING matching to REJECTED.
func (s *Service) RejectVariance(ctx context.Context, actor Actor, id MatchingID, reason string) (ThreeWayMatching, error) {
	return s.decide(ctx, actor, id, DecisionReject, reason)
}

func (s *Service) decide(ctx context.Context, actor Actor, id MatchingID, decision Decision, reason string) (ThreeWayMatching, error) {
	// Permission is checked regardless of state.
	if err := Authorize(actor, CapabilityApproveVariances); err != nil {
		return ThreeWayMatching{}, err
	}

	current, err := s.Store.GetMatching(ctx, id)
	if err != nil {
		return ThreeWayMatching{}, err
	}

	now := s.Now()
	next, err := Transition(current, decision, actor, reason, now)
	if err != nil {
		return ThreeWayMatching{}, err
	}

	entry := AuditEntry{
		ID:         s.NewID(),
		Timestamp:  now,
		ActorID:    actor.ID,
		Action:     decision.auditAction(),
		MatchingID: id,
		Reason:     next.DecisionReason,
		Payload: map[string]any{
			"from": string(current.ApprovalState),
			"to":   string(next.ApprovalState),
		},
	}

	err = s.Store.UpdateMatching(ctx, next, current.Version, entry)
	if errors.Is(err, ErrConcurrentModification) {
		// Someone else decided first. Report the state they left behind.
		winner, gerr := s.Store.GetMatching(ctx, id)
		if gerr != nil {
			return ThreeWayMatching{}, err
		}
		return ThreeWayMatching{}, &InvalidStateError{
			MatchingID: id,
			Current:    winner.ApprovalState,
			Action:     string(decision),
		}
	}
	if err != nil {
		return ThreeWayMatching{}, fmt.Errorf("failed to save %s decision: %w", decision, err)
	}

	s.Logger.InfoContext(ctx, "variance decided",
		"matching_id", id,
		"decision", decision,
		"actor", actor.ID,
		"approval_state", next.ApprovalState,
	)
	return next, nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Configuration returns the current snapshot.
func (s *Service) Configuration() MatchingConfiguration {
	return s.Rules.Snapshot()
}

// UpdateConfiguration persists cfg and publishes it as the new snapshot.
func (s *Service) UpdateConfiguration(ctx context.Context, actor Actor, cfg MatchingConfiguration) error {
	if err := Authorize(actor, CapabilityManageRules); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.Configs != nil {
		if err := s.Configs.SaveConfiguration(ctx, cfg); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
	}
	if err := s.Rules.Replace(cfg); err != nil {
		return err
	}

	entry := AuditEntry{
		ID:        s.NewID(),
		Timestamp: s.Now(),
		ActorID:   actor.ID,
		Action:    AuditConfigurationChanged,
		Payload: map[string]any{
			"rules":        cfg.Rules.Len(),
			"active_rules": len(cfg.Rules.Active()),
		},
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to audit configuration change: %w", err)
	}
	s.Logger.InfoContext(ctx, "configuration replaced",
		"actor", actor.ID, "rules", cfg.Rules.Len())
	return nil
}
