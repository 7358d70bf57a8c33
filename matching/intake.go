package matching

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// DOCUMENT INTAKE - Store documents, auto-match invoices when enabled
// =============================================================================

var errNoDocuments = errors.New("service has no document store")

func (s *Service) SubmitPurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	if s.Documents == nil {
		return errNoDocuments
	}
	if err := ValidatePurchaseOrder(po); err != nil {
		return err
	}
	return s.Documents.SavePurchaseOrder(ctx, po)
}

func (s *Service) SubmitGoodsReceipt(ctx context.Context, gr GoodsReceipt) error {
	if s.Documents == nil {
		return errNoDocuments
	}
	if err := ValidateGoodsReceipt(gr); err != nil {
		return err
	}
	return s.Documents.SaveGoodsReceipt(ctx, gr)
}

// SubmitInvoice stores the invoice. When AutoMatch is on and its PO and GR
// are already known, it is matched right away and the matching returned.
// Otherwise the returned matching is nil and the scheduler picks the
// invoice up once the missing documents arrive.
//
// An invoice rejected with a ValidationError is not stored.
func (s *Service) SubmitInvoice(ctx context.Context, actor Actor, inv Invoice) (*ThreeWayMatching, error) {
	if s.Documents == nil {
		return nil, errNoDocuments
	}
	if inv.ID == "" {
		inv.ID = InvoiceID(s.NewID())
	}
	if err := ValidateInvoice(inv); err != nil {
		return nil, err
	}
	if !s.Rules.Snapshot().AutoMatch {
		return nil, s.saveInvoice(ctx, inv)
	}

	po, gr, err := s.resolveDocuments(ctx, inv)
	if IsNotFound(err) {
		if err := s.saveInvoice(ctx, inv); err != nil {
			return nil, err
		}
		s.Logger.InfoContext(ctx, "invoice waiting for documents",
			"invoice_id", inv.ID, "reason", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateDocuments(po, gr, inv); err != nil {
		return nil, err
	}
	if err := s.saveInvoice(ctx, inv); err != nil {
		return nil, err
	}

	m, err := s.match(ctx, actor, po, gr, inv, s.Store.CreateMatchingOnce)
	if errors.Is(err, ErrAlreadyMatched) {
		// The sweep got there first.
		return s.existingMatching(ctx, inv.ID, err)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) saveInvoice(ctx context.Context, inv Invoice) error {
	if err := s.Documents.SaveInvoice(ctx, inv); err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (s *Service) existingMatching(ctx context.Context, id InvoiceID, cause error) (*ThreeWayMatching, error) {
	ms, err := s.Store.ListMatchings(ctx, MatchingFilter{InvoiceID: id})
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, cause
	}
	return &ms[0], nil
}

// MatchInvoice matches a stored invoice against its stored PO and GR.
// Each call creates a new matching, even when the invoice was matched before.
func (s *Service) MatchInvoice(ctx context.Context, actor Actor, id InvoiceID) (ThreeWayMatching, error) {
	return s.matchStored(ctx, actor, id, s.Store.CreateMatching)
}

func (s *Service) matchStored(ctx context.Context, actor Actor, id InvoiceID, create createFunc) (ThreeWayMatching, error) {
	if s.Documents == nil {
		return ThreeWayMatching{}, errNoDocuments
	}
	inv, err := s.Documents.GetInvoice(ctx, id)
	if err != nil {
		return ThreeWayMatching{}, err
	}
	po, gr, err := s.resolveDocuments(ctx, inv)
	if err != nil {
		return ThreeWayMatching{}, err
	}
	return s.match(ctx, actor, po, gr, inv, create)
}

func (s *Service) resolveDocuments(ctx context.Context, inv Invoice) (PurchaseOrder, GoodsReceipt, error) {
	po, err := s.Documents.GetPurchaseOrder(ctx, inv.PurchaseOrderNumber)
	if err != nil {
		return PurchaseOrder{}, GoodsReceipt{}, err
	}

	if inv.GoodsReceiptNumber != "" {
		gr, err := s.Documents.GetGoodsReceipt(ctx, inv.GoodsReceiptNumber)
		return po, gr, err
	}

	receipts, err := s.Documents.FindGoodsReceipts(ctx, po.Number)
	if err != nil {
		return PurchaseOrder{}, GoodsReceipt{}, err
	}
	switch len(receipts) {
	case 0:
		return PurchaseOrder{}, GoodsReceipt{}, fmt.Errorf("no goods receipt for purchase order %s: %w", po.Number, ErrDocumentNotFound)
	case 1:
		return po, receipts[0], nil
	}
	return PurchaseOrder{}, GoodsReceipt{}, &ValidationError{Problems: []Problem{{
		Field:   "invoice.goods_receipt_number",
		Message: fmt.Sprintf("purchase order %s has %d goods receipts, invoice must name one", po.Number, len(receipts)),
	}}}
}

// AutoMatchPending matches every stored invoice whose documents are now
// available. Invoices still missing a document are skipped. Returns the
// number of matchings created.
func (s *Service) AutoMatchPending(ctx context.Context) (int, error) {
	if s.Documents == nil {
		return 0, errNoDocuments
	}
	if !s.Rules.Snapshot().AutoMatch {
		return 0, nil
	}
	invoices, err := s.Documents.ListUnmatchedInvoices(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, err := s.matchStored(ctx, SystemActor, inv.ID, s.Store.CreateMatchingOnce)
		switch {
		case err == nil:
			created++
		case IsNotFound(err), errors.Is(err, ErrAlreadyMatched):
			// documents not there yet, or intake matched it meanwhile
		default:
			s.Logger.WarnContext(ctx, "auto-match failed",
				"invoice_id", inv.ID, "error", err)
		}
	}
	return created, nil
}
