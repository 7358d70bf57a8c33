/*
store.go - Persistence interfaces for matchings, documents and audit

PURPOSE:
  Defines the interface between the engine and the database. The engine
  itself never touches storage; the Service wires these interfaces.

KEY INTERFACES:
  MatchingStore:      ThreeWayMatching records with optimistic versioning
  AuditLog:           Append-only audit trail
  DocumentStore:      PO / GR / Invoice intake for auto-matching
  ConfigurationStore: The persisted MatchingConfiguration

SINGLE WRITER:
  UpdateMatching succeeds only when the stored Version equals
  expectedVersion, and bumps it. Two concurrent approve/reject calls both
  read Version N; the first write moves it to N+1 and the second gets
  ErrConcurrentModification. The Service turns that into an
  InvalidStateError naming the winner's state.

ATOMICITY:
  Create/Update write the matching and its audit entry together. Either
  both are stored or neither is.

ONE AUTO-MATCH PER INVOICE:
  Invoice intake and the scheduler sweep may race on the same invoice.
  Both create through CreateMatchingOnce, so only one matching (and one
  set of events) results. Explicit re-evaluation uses CreateMatching and
  may add further records.

IMPLEMENTATIONS:
  - matching/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - service.go: Uses these interfaces
*/
package matching

import (
	"context"
	"time"
)

// =============================================================================
// MATCHING STORE
// =============================================================================

// MatchingFilter narrows ListMatchings. Zero fields match everything.
type MatchingFilter struct {
	Status              MatchStatus
	ApprovalState       ApprovalState
	PurchaseOrderNumber string
	InvoiceID           InvoiceID
	From                *time.Time
	To                  *time.Time
}

// Matches reports whether m passes the filter.
func (f MatchingFilter) Matches(m ThreeWayMatching) bool {
	if f.Status != "" && m.OverallStatus != f.Status {
		return false
	}
	if f.ApprovalState != "" && m.ApprovalState != f.ApprovalState {
		return false
	}
	if f.PurchaseOrderNumber != "" && m.PurchaseOrderNumber != f.PurchaseOrderNumber {
		return false
	}
	if f.InvoiceID != "" && m.InvoiceID != f.InvoiceID {
		return false
	}
	if f.From != nil && m.MatchingDate.Before(*f.From) {
		return false
	}
	if f.To != nil && m.MatchingDate.After(*f.To) {
		return false
	}
	return true
}

type MatchingStore interface {
	// CreateMatching persists a new record together with its audit entry.
	CreateMatching(ctx context.Context, m ThreeWayMatching, entry AuditEntry) error

	// CreateMatchingOnce is CreateMatching guarded by the invoice: it returns
	// ErrAlreadyMatched, storing nothing, when a matching for m.InvoiceID
	// exists. Check and insert are one atomic step.
	CreateMatchingOnce(ctx context.Context, m ThreeWayMatching, entry AuditEntry) error

	// UpdateMatching replaces the record if its stored Version equals
	// expectedVersion. Returns ErrConcurrentModification otherwise.
	UpdateMatching(ctx context.Context, m ThreeWayMatching, expectedVersion int, entry AuditEntry) error

	// GetMatching returns ErrMatchingNotFound when id is unknown.
	GetMatching(ctx context.Context, id MatchingID) (ThreeWayMatching, error)

	// ListMatchings returns records ordered by MatchingDate, oldest first.
	ListMatchings(ctx context.Context, filter MatchingFilter) ([]ThreeWayMatching, error)
}

// =============================================================================
// AUDIT LOG - Separate from matchings, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditMatchingCreated      AuditAction = "matching_created"
	AuditVarianceApproved     AuditAction = "variance_approved"
	AuditVarianceRejected     AuditAction = "variance_rejected"
	AuditConfigurationChanged AuditAction = "configuration_changed"
)

// AuditEntry records who did what when. Never modified.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	Action     AuditAction
	MatchingID MatchingID // empty for configuration changes
	Reason     string
	Payload    map[string]any
}

type AuditFilter struct {
	MatchingID *MatchingID
	ActorID    *string
	Actions    []AuditAction
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.MatchingID != nil && e.MatchingID != *f.MatchingID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

type DocumentStore interface {
	SavePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, number string) (PurchaseOrder, error)

	SaveGoodsReceipt(ctx context.Context, gr GoodsReceipt) error
	GetGoodsReceipt(ctx context.Context, number string) (GoodsReceipt, error)
	// FindGoodsReceipts returns every receipt referencing the PO.
	FindGoodsReceipts(ctx context.Context, poNumber string) ([]GoodsReceipt, error)

	SaveInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (Invoice, error)
	// ListUnmatchedInvoices returns invoices with no matching record yet.
	ListUnmatchedInvoices(ctx context.Context) ([]Invoice, error)
}

// =============================================================================
// CONFIGURATION STORE
// =============================================================================

type ConfigurationStore interface {
	SaveConfiguration(ctx context.Context, cfg MatchingConfiguration) error
	// LoadConfiguration returns (nil, nil) when nothing was saved yet.
	LoadConfiguration(ctx context.Context) (*MatchingConfiguration, error)
}
