// Package store provides in-memory implementations of the matching stores.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements MatchingStore, AuditLog, DocumentStore and
// ConfigurationStore behind a single RWMutex.
type Memory struct {
	mu        sync.RWMutex
	matchings map[matching.MatchingID]matching.ThreeWayMatching
	order     []matching.MatchingID
	audit     []matching.AuditEntry

	purchaseOrders map[string]matching.PurchaseOrder
	goodsReceipts  map[string]matching.GoodsReceipt
	invoices       map[matching.InvoiceID]matching.Invoice
	invoiceOrder   []matching.InvoiceID

	config *matching.MatchingConfiguration
}

var (
	_ matching.MatchingStore      = (*Memory)(nil)
	_ matching.AuditLog           = (*Memory)(nil)
	_ matching.DocumentStore      = (*Memory)(nil)
	_ matching.ConfigurationStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		matchings:      make(map[matching.MatchingID]matching.ThreeWayMatching),
		purchaseOrders: make(map[string]matching.PurchaseOrder),
		goodsReceipts:  make(map[string]matching.GoodsReceipt),
		invoices:       make(map[matching.InvoiceID]matching.Invoice),
	}
}

// CreateMatching adds a new matching and its audit entry atomically.
func (m *Memory) CreateMatching(_ context.Context, rec matching.ThreeWayMatching, entry matching.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.create(rec, entry)
}

// CreateMatchingOnce adds the matching unless its invoice already has one.
func (m *Memory) CreateMatchingOnce(_ context.Context, rec matching.ThreeWayMatching, entry matching.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.matchings {
		if existing.InvoiceID == rec.InvoiceID {
			return matching.ErrAlreadyMatched
		}
	}
	return m.create(rec, entry)
}

func (m *Memory) create(rec matching.ThreeWayMatching, entry matching.AuditEntry) error {
	if _, exists := m.matchings[rec.ID]; exists {
		return matching.ErrConcurrentModification
	}
	m.matchings[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	m.audit = append(m.audit, entry)
	return nil
}

// UpdateMatching replaces the record if the stored version matches.
// The version check and write happen under one lock: single writer.
func (m *Memory) UpdateMatching(_ context.Context, rec matching.ThreeWayMatching, expectedVersion int, entry matching.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.matchings[rec.ID]
	if !ok {
		return matching.ErrMatchingNotFound
	}
	if cur.Version != expectedVersion {
		return matching.ErrConcurrentModification
	}
	rec.Version = expectedVersion + 1
	m.matchings[rec.ID] = rec
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) GetMatching(_ context.Context, id matching.MatchingID) (matching.ThreeWayMatching, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.matchings[id]
	if !ok {
		return matching.ThreeWayMatching{}, matching.ErrMatchingNotFound
	}
	return rec, nil
}

func (m *Memory) ListMatchings(_ context.Context, filter matching.MatchingFilter) ([]matching.ThreeWayMatching, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []matching.ThreeWayMatching
	for _, id := range m.order {
		rec := m.matchings[id]
		if filter.Matches(rec) {
			result = append(result, rec)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].MatchingDate.Before(result[j].MatchingDate)
	})
	return result, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry matching.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter matching.AuditFilter) ([]matching.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []matching.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (m *Memory) SavePurchaseOrder(_ context.Context, po matching.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchaseOrders[po.Number] = po
	return nil
}

func (m *Memory) GetPurchaseOrder(_ context.Context, number string) (matching.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	po, ok := m.purchaseOrders[number]
	if !ok {
		return matching.PurchaseOrder{}, matching.ErrDocumentNotFound
	}
	return po, nil
}

func (m *Memory) SaveGoodsReceipt(_ context.Context, gr matching.GoodsReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goodsReceipts[gr.Number] = gr
	return nil
}

func (m *Memory) GetGoodsReceipt(_ context.Context, number string) (matching.GoodsReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gr, ok := m.goodsReceipts[number]
	if !ok {
		return matching.GoodsReceipt{}, matching.ErrDocumentNotFound
	}
	return gr, nil
}

func (m *Memory) FindGoodsReceipts(_ context.Context, poNumber string) ([]matching.GoodsReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []matching.GoodsReceipt
	for _, gr := range m.goodsReceipts {
		if gr.PurchaseOrderNumber == poNumber {
			result = append(result, gr)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (m *Memory) SaveInvoice(_ context.Context, inv matching.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invoices[inv.ID]; !exists {
		m.invoiceOrder = append(m.invoiceOrder, inv.ID)
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id matching.InvoiceID) (matching.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return matching.Invoice{}, matching.ErrDocumentNotFound
	}
	return inv, nil
}

func (m *Memory) ListUnmatchedInvoices(_ context.Context) ([]matching.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make(map[matching.InvoiceID]bool, len(m.matchings))
	for _, rec := range m.matchings {
		matched[rec.InvoiceID] = true
	}
	var result []matching.Invoice
	for _, id := range m.invoiceOrder {
		if !matched[id] {
			result = append(result, m.invoices[id])
		}
	}
	return result, nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (m *Memory) SaveConfiguration(_ context.Context, cfg matching.MatchingConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}

func (m *Memory) LoadConfiguration(_ context.Context) (*matching.MatchingConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, nil
	}
	cfg := *m.config
	return &cfg, nil
}
