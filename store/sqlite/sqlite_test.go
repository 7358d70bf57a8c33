package sqlite_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/matching"
	"github.com/warp/threeway-match/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	clerk    = matching.Actor{ID: "ap-clerk"}
	approver = matching.Actor{ID: "ap-manager", Capabilities: []matching.Capability{matching.CapabilityApproveVariances}}
	matchAt  = time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, store *sqlite.Store) *matching.Service {
	rules, err := matching.NewRuleStore(factory.DefaultConfiguration())
	require.NoError(t, err)

	svc := matching.NewService(store, store, rules, nil)
	svc.Documents = store
	svc.Configs = store
	svc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	svc.Now = func() time.Time { return matchAt }
	return svc
}

func line(n int, qty, price string) matching.DocumentLine {
	return matching.DocumentLine{
		LineNumber: n,
		SKU:        fmt.Sprintf("SKU-%d", n),
		Quantity:   decimal.RequireFromString(qty),
		UnitPrice:  decimal.RequireFromString(price),
	}
}

func docs(seq string, poPrice, invPrice string) (matching.PurchaseOrder, matching.GoodsReceipt, matching.Invoice) {
	expected := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	po := matching.PurchaseOrder{
		Number:               "PO-" + seq,
		VendorID:             "V-1",
		OrderDate:            expected.AddDate(0, 0, -14),
		ExpectedDeliveryDate: expected,
		Lines:                []matching.DocumentLine{line(1, "25", poPrice), line(2, "4", "19.99")},
	}
	gr := matching.GoodsReceipt{
		Number:              "GR-" + seq,
		PurchaseOrderNumber: po.Number,
		ReceiptDate:         expected.AddDate(0, 0, 2),
		Lines:               []matching.DocumentLine{line(1, "25", poPrice), line(2, "4", "19.99")},
	}
	inv := matching.Invoice{
		ID:                  matching.InvoiceID("inv-" + seq),
		Number:              "INV-" + seq,
		PurchaseOrderNumber: po.Number,
		GoodsReceiptNumber:  gr.Number,
		VendorID:            "V-1",
		InvoiceDate:         expected.AddDate(0, 0, 5),
		Lines:               []matching.DocumentLine{line(1, "25", invPrice), line(2, "4", "19.99")},
	}
	return po, gr, inv
}

// =============================================================================
// MATCHINGS
// =============================================================================

func TestStore_MatchingRoundTrip(t *testing.T) {
	// GIVEN: A matching with a breach persisted through the service
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")

	created, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	// WHEN: Reading it back
	loaded, err := store.GetMatching(ctx, created.ID)
	require.NoError(t, err)

	// THEN: Every field survives
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, matching.InvoiceID("inv-1"), loaded.InvoiceID)
	assert.Equal(t, "PO-1", loaded.PurchaseOrderNumber)
	assert.Equal(t, "GR-1", loaded.GoodsReceiptNumber)
	assert.Equal(t, matching.StatusVarianceExceedsTolerance, loaded.OverallStatus)
	assert.True(t, loaded.ToleranceExceeded)
	assert.True(t, loaded.RequiresApproval)
	assert.True(t, loaded.PaymentBlocked)
	assert.Equal(t, matching.ApprovalPending, loaded.ApprovalState)
	assert.True(t, loaded.TotalVariance.Equal(decimal.RequireFromString("875")))
	assert.True(t, matchAt.Equal(loaded.MatchingDate))
	assert.Equal(t, "ap-clerk", loaded.MatchedBy)
	assert.Equal(t, 1, loaded.Version)
	assert.Nil(t, loaded.DecidedAt)

	require.Len(t, loaded.LineResults, 2)
	first := loaded.LineResults[0]
	assert.Equal(t, 1, first.LineNumber)
	assert.True(t, first.POPrice.Equal(decimal.RequireFromString("315")))
	assert.True(t, first.InvoicePrice.Equal(decimal.RequireFromString("350")))
	assert.Equal(t, 2, first.DateVarianceDays)
	assert.Equal(t, matching.ReasonToleranceExceeded, first.Reason)
	require.NotEmpty(t, first.Breaches)
	assert.Equal(t, "price-tolerance", first.Breaches[0].RuleID)

	assert.Equal(t, matching.StatusMatched, loaded.LineResults[1].Status)
	assert.Empty(t, loaded.LineResults[1].Breaches)
}

func TestStore_UpdateMatching_StaleVersion(t *testing.T) {
	// GIVEN: A stored PENDING matching at version 1
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	m, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	decided := m
	decided.ApprovalState = matching.ApprovalApproved
	entry := matching.AuditEntry{ID: "a-1", Timestamp: matchAt, ActorID: "x", Action: matching.AuditVarianceApproved, MatchingID: m.ID}

	// WHEN: Updating with the right version, then again with the same stale one
	require.NoError(t, store.UpdateMatching(ctx, decided, 1, entry))
	entry.ID = "a-2"
	err = store.UpdateMatching(ctx, decided, 1, entry)

	// THEN: The second write is rejected and not audited
	assert.ErrorIs(t, err, matching.ErrConcurrentModification)

	loaded, err := store.GetMatching(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)

	trail, err := store.QueryAudit(ctx, matching.AuditFilter{MatchingID: &m.ID})
	require.NoError(t, err)
	assert.Len(t, trail, 2)
}

func TestStore_UpdateMatching_Unknown(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateMatching(context.Background(), matching.ThreeWayMatching{ID: "nope"}, 1, matching.AuditEntry{ID: "a"})

	assert.ErrorIs(t, err, matching.ErrMatchingNotFound)
}

func TestStore_GetMatching_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetMatching(context.Background(), "missing")

	assert.ErrorIs(t, err, matching.ErrMatchingNotFound)
}

func TestStore_ApprovalWorkflow(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	m, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	approved, err := svc.ApproveVariance(ctx, approver, m.ID, "agreed with supplier")
	require.NoError(t, err)

	loaded, err := store.GetMatching(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.ApprovalApproved, loaded.ApprovalState)
	assert.Equal(t, "ap-manager", loaded.DecidedBy)
	assert.Equal(t, "agreed with supplier", loaded.DecisionReason)
	require.NotNil(t, loaded.DecidedAt)
	assert.True(t, approved.DecidedAt.Equal(*loaded.DecidedAt))
	assert.Equal(t, 2, loaded.Version)

	_, err = svc.RejectVariance(ctx, approver, m.ID, "too late")
	assert.ErrorIs(t, err, matching.ErrInvalidState)
}

func TestStore_ConcurrentDecisions_SingleWriter(t *testing.T) {
	// GIVEN: A PENDING matching in SQLite
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	m, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	// WHEN: Several approvers decide at once
	const workers = 8
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				_, errs[i] = svc.ApproveVariance(ctx, approver, m.ID, "approve")
			} else {
				_, errs[i] = svc.RejectVariance(ctx, approver, m.ID, "reject")
			}
		}(i)
	}
	close(start)
	wg.Wait()

	// THEN: Exactly one succeeds, the rest see InvalidStateError
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, matching.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, successes)

	loaded, err := store.GetMatching(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ApprovalState.IsTerminal())
	assert.Equal(t, 2, loaded.Version)
}

func TestStore_ListMatchings_Filters(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	po, gr, inv := docs("1", "125.00", "125.00")
	_, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)
	po, gr, inv = docs("2", "315.00", "350.00")
	_, err = svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	all, err := store.ListMatchings(ctx, matching.MatchingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	exceeded, err := store.ListMatchings(ctx, matching.MatchingFilter{Status: matching.StatusVarianceExceedsTolerance})
	require.NoError(t, err)
	require.Len(t, exceeded, 1)
	assert.Equal(t, "PO-2", exceeded[0].PurchaseOrderNumber)

	pending, err := store.ListMatchings(ctx, matching.MatchingFilter{ApprovalState: matching.ApprovalPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	later := matchAt.Add(time.Hour)
	none, err := store.ListMatchings(ctx, matching.MatchingFilter{From: &later})
	require.NoError(t, err)
	assert.Empty(t, none)

	summary, err := svc.Analytics(ctx, matching.MatchingFilter{})
	require.NoError(t, err)
	assert.True(t, summary.MatchedRate.Equal(decimal.NewFromInt(50)))
	assert.True(t, summary.AverageVariance.Equal(decimal.RequireFromString("437.5")))
}

// =============================================================================
// AUDIT
// =============================================================================

func TestStore_QueryAudit_ByActorAndAction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mid := matching.MatchingID("m-1")
	entries := []matching.AuditEntry{
		{ID: "1", Timestamp: matchAt, ActorID: "alice", Action: matching.AuditConfigurationChanged, Payload: map[string]any{"rules": 3}},
		{ID: "2", Timestamp: matchAt.Add(time.Minute), ActorID: "bob", Action: matching.AuditVarianceRejected, MatchingID: mid, Reason: "overcharged"},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAudit(ctx, e))
	}

	alice := "alice"
	byActor, err := store.QueryAudit(ctx, matching.AuditFilter{ActorID: &alice})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, float64(3), byActor[0].Payload["rules"])

	byAction, err := store.QueryAudit(ctx, matching.AuditFilter{Actions: []matching.AuditAction{matching.AuditVarianceRejected}})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "overcharged", byAction[0].Reason)
	assert.Equal(t, mid, byAction[0].MatchingID)
}

func TestStore_CreateMatchingOnce(t *testing.T) {
	// GIVEN: Two evaluations of the same invoice
	store := newTestStore(t)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	first, err := matching.Match(po, gr, inv, factory.DefaultConfiguration(), clerk, matchAt)
	require.NoError(t, err)
	first.ID = "m-1"
	second := first
	second.ID = "m-2"
	entry := func(id matching.MatchingID) matching.AuditEntry {
		return matching.AuditEntry{ID: "a-" + string(id), Timestamp: matchAt, ActorID: clerk.ID, Action: matching.AuditMatchingCreated, MatchingID: id}
	}

	// WHEN: Both are stored once-per-invoice
	require.NoError(t, store.CreateMatchingOnce(ctx, first, entry(first.ID)))
	err = store.CreateMatchingOnce(ctx, second, entry(second.ID))

	// THEN: The second is refused and leaves no trace
	assert.ErrorIs(t, err, matching.ErrAlreadyMatched)
	assert.True(t, matching.IsConflict(err))

	all, err := store.ListMatchings(ctx, matching.MatchingFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)

	audit, err := store.QueryAudit(ctx, matching.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, audit, 1)

	_, err = store.GetMatching(ctx, second.ID)
	assert.ErrorIs(t, err, matching.ErrMatchingNotFound)

	// AND: An explicit re-match is still allowed
	require.NoError(t, store.CreateMatching(ctx, second, entry(second.ID)))
}

func TestStore_CreateMatchingOnce_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	base, err := matching.Match(po, gr, inv, factory.DefaultConfiguration(), clerk, matchAt)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := base
			m.ID = matching.MatchingID(fmt.Sprintf("m-%d", i))
			results[i] = store.CreateMatchingOnce(ctx, m, matching.AuditEntry{
				ID: fmt.Sprintf("a-%d", i), Timestamp: matchAt, ActorID: clerk.ID,
				Action: matching.AuditMatchingCreated, MatchingID: m.ID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, matching.ErrAlreadyMatched)
	}
	assert.Equal(t, 1, succeeded)

	all, err := store.ListMatchings(ctx, matching.MatchingFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_GetMatching_CorruptDecimal(t *testing.T) {
	// GIVEN: A stored matching whose total variance was overwritten
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	created, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)
	require.NoError(t, store.ExecRaw(ctx, "UPDATE matchings SET total_variance = 'abc'"))

	// WHEN: Reading it back
	_, err = store.GetMatching(ctx, created.ID)

	// THEN: The corruption is reported, not read as zero
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt total_variance")

	_, err = store.ListMatchings(ctx, matching.MatchingFilter{})
	assert.Error(t, err)
}

func TestStore_GetMatching_CorruptLineAndTimestamp(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "315.00", "350.00")
	created, err := svc.Match(ctx, clerk, po, gr, inv)
	require.NoError(t, err)

	require.NoError(t, store.ExecRaw(ctx, "UPDATE matching_lines SET price_variance = '1.2.3' WHERE line_number = 2"))
	_, err = store.GetMatching(ctx, created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt price_variance")

	require.NoError(t, store.ExecRaw(ctx, "UPDATE matching_lines SET price_variance = '0'"))
	require.NoError(t, store.ExecRaw(ctx, "UPDATE matchings SET matching_date = 'yesterday'"))
	_, err = store.GetMatching(ctx, created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt matching_date")
}

func TestStore_QueryAudit_CorruptPayload(t *testing.T) {
	// GIVEN: An audit entry whose payload is no longer valid JSON
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendAudit(ctx, matching.AuditEntry{
		ID: "1", Timestamp: matchAt, ActorID: "alice",
		Action: matching.AuditConfigurationChanged, Payload: map[string]any{"rules": 3},
	}))
	require.NoError(t, store.ExecRaw(ctx, "UPDATE audit_log SET payload_json = '{bad' WHERE id = '1'"))

	// WHEN: Querying the log
	entries, err := store.QueryAudit(ctx, matching.AuditFilter{})

	// THEN: The decode failure is returned instead of an empty payload
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.Contains(t, err.Error(), "audit entry 1")
}

func TestStore_QueryAudit_CorruptTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendAudit(ctx, matching.AuditEntry{
		ID: "1", Timestamp: matchAt, ActorID: "alice", Action: matching.AuditConfigurationChanged,
	}))
	require.NoError(t, store.ExecRaw(ctx, "UPDATE audit_log SET timestamp = 'not-a-time'"))

	_, err := store.QueryAudit(ctx, matching.AuditFilter{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt timestamp")
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestStore_Documents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	po, gr, inv := docs("7", "10.00", "10.00")

	require.NoError(t, store.SavePurchaseOrder(ctx, po))
	require.NoError(t, store.SaveGoodsReceipt(ctx, gr))
	require.NoError(t, store.SaveInvoice(ctx, inv))

	gotPO, err := store.GetPurchaseOrder(ctx, "PO-7")
	require.NoError(t, err)
	assert.Equal(t, "V-1", gotPO.VendorID)
	assert.True(t, po.ExpectedDeliveryDate.Equal(gotPO.ExpectedDeliveryDate))
	require.Len(t, gotPO.Lines, 2)
	assert.Equal(t, "SKU-2", gotPO.Lines[1].SKU)
	assert.True(t, gotPO.Lines[1].UnitPrice.Equal(decimal.RequireFromString("19.99")))

	receipts, err := store.FindGoodsReceipts(ctx, "PO-7")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "GR-7", receipts[0].Number)

	gotInv, err := store.GetInvoice(ctx, "inv-7")
	require.NoError(t, err)
	assert.Equal(t, "INV-7", gotInv.Number)
	assert.Equal(t, "GR-7", gotInv.GoodsReceiptNumber)

	_, err = store.GetPurchaseOrder(ctx, "PO-404")
	assert.ErrorIs(t, err, matching.ErrDocumentNotFound)
	_, err = store.GetGoodsReceipt(ctx, "GR-404")
	assert.ErrorIs(t, err, matching.ErrDocumentNotFound)
	_, err = store.GetInvoice(ctx, "inv-404")
	assert.ErrorIs(t, err, matching.ErrDocumentNotFound)
}

func TestStore_ListUnmatchedInvoices(t *testing.T) {
	// GIVEN: Two stored invoices, one of them matched
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	po, gr, inv := docs("1", "10.00", "10.00")
	require.NoError(t, svc.SubmitPurchaseOrder(ctx, po))
	require.NoError(t, svc.SubmitGoodsReceipt(ctx, gr))
	m, err := svc.SubmitInvoice(ctx, clerk, inv)
	require.NoError(t, err)
	require.NotNil(t, m)

	_, _, waiting := docs("2", "10.00", "10.00")
	m, err = svc.SubmitInvoice(ctx, clerk, waiting)
	require.NoError(t, err)
	assert.Nil(t, m, "PO-2 is unknown")

	// WHEN: Listing unmatched invoices
	pending, err := store.ListUnmatchedInvoices(ctx)
	require.NoError(t, err)

	// THEN: Only the waiting one is returned
	require.Len(t, pending, 1)
	assert.Equal(t, matching.InvoiceID("inv-2"), pending[0].ID)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestStore_Configuration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	none, err := store.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	cfg := factory.DefaultConfiguration()
	cfg.SendNotifications = false
	require.NoError(t, store.SaveConfiguration(ctx, cfg))

	// Saving twice keeps a single current configuration.
	require.NoError(t, store.SaveConfiguration(ctx, cfg))

	loaded, err := store.LoadConfiguration(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.False(t, loaded.SendNotifications)
	assert.Equal(t, cfg.Rules.Len(), loaded.Rules.Len())

	want, err := factory.ToJSON(cfg)
	require.NoError(t, err)
	got, err := factory.ToJSON(*loaded)
	require.NoError(t, err)
	assert.JSONEq(t, want, got)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()
	po, gr, inv := docs("1", "10.00", "10.00")
	require.NoError(t, svc.SubmitPurchaseOrder(ctx, po))
	require.NoError(t, svc.SubmitGoodsReceipt(ctx, gr))
	_, err := svc.SubmitInvoice(ctx, clerk, inv)
	require.NoError(t, err)
	require.NoError(t, store.SaveConfiguration(ctx, factory.DefaultConfiguration()))

	require.NoError(t, store.Reset(ctx))

	all, err := store.ListMatchings(ctx, matching.MatchingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = store.GetPurchaseOrder(ctx, "PO-1")
	assert.ErrorIs(t, err, matching.ErrDocumentNotFound)

	cfg, err := store.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cfg, "configuration survives a reset")
}
