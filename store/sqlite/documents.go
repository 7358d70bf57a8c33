package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// DOCUMENT RECORDS - JSON shapes stored in doc_json columns
// =============================================================================

type lineRecord struct {
	LineNumber  int             `json:"line_number"`
	SKU         string          `json:"sku,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type purchaseOrderRecord struct {
	Number               string       `json:"number"`
	VendorID             string       `json:"vendor_id,omitempty"`
	OrderDate            time.Time    `json:"order_date"`
	ExpectedDeliveryDate time.Time    `json:"expected_delivery_date"`
	Lines                []lineRecord `json:"lines"`
}

type goodsReceiptRecord struct {
	Number              string       `json:"number"`
	PurchaseOrderNumber string       `json:"purchase_order_number"`
	ReceiptDate         time.Time    `json:"receipt_date"`
	Lines               []lineRecord `json:"lines"`
}

type invoiceRecord struct {
	ID                  string       `json:"id"`
	Number              string       `json:"number"`
	PurchaseOrderNumber string       `json:"purchase_order_number"`
	GoodsReceiptNumber  string       `json:"goods_receipt_number,omitempty"`
	VendorID            string       `json:"vendor_id,omitempty"`
	InvoiceDate         time.Time    `json:"invoice_date"`
	Lines               []lineRecord `json:"lines"`
}

type breachRecord struct {
	RuleID             string          `json:"rule_id"`
	RuleType           string          `json:"rule_type"`
	Unit               string          `json:"unit"`
	NormalizedVariance decimal.Decimal `json:"normalized_variance"`
	Tolerance          decimal.Decimal `json:"tolerance"`
}

func toLineRecords(lines []matching.DocumentLine) []lineRecord {
	out := make([]lineRecord, len(lines))
	for i, l := range lines {
		out[i] = lineRecord{l.LineNumber, l.SKU, l.Description, l.Quantity, l.UnitPrice}
	}
	return out
}

func fromLineRecords(recs []lineRecord) []matching.DocumentLine {
	out := make([]matching.DocumentLine, len(recs))
	for i, r := range recs {
		out[i] = matching.DocumentLine{
			LineNumber:  r.LineNumber,
			SKU:         r.SKU,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		}
	}
	return out
}

func toBreachRecords(bs []matching.RuleBreach) []breachRecord {
	out := make([]breachRecord, len(bs))
	for i, b := range bs {
		out[i] = breachRecord{b.RuleID, string(b.RuleType), string(b.Unit), b.NormalizedVariance, b.Tolerance}
	}
	return out
}

func fromBreachRecords(recs []breachRecord) []matching.RuleBreach {
	if len(recs) == 0 {
		return nil
	}
	out := make([]matching.RuleBreach, len(recs))
	for i, r := range recs {
		out[i] = matching.RuleBreach{
			RuleID:             r.RuleID,
			RuleType:           matching.RuleType(r.RuleType),
			Unit:               matching.ToleranceUnit(r.Unit),
			NormalizedVariance: r.NormalizedVariance,
			Tolerance:          r.Tolerance,
		}
	}
	return out
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// SavePurchaseOrder inserts or replaces a PO by number.
func (s *Store) SavePurchaseOrder(ctx context.Context, po matching.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(purchaseOrderRecord{
		Number:               po.Number,
		VendorID:             po.VendorID,
		OrderDate:            po.OrderDate,
		ExpectedDeliveryDate: po.ExpectedDeliveryDate,
		Lines:                toLineRecords(po.Lines),
	})
	if err != nil {
		return fmt.Errorf("failed to encode purchase order: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (number, vendor_id, doc_json, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET vendor_id = excluded.vendor_id, doc_json = excluded.doc_json
	`, po.Number, nullString(po.VendorID), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}
	return nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, number string) (matching.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM purchase_orders WHERE number = ?", number).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return matching.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", number, matching.ErrDocumentNotFound)
	}
	if err != nil {
		return matching.PurchaseOrder{}, fmt.Errorf("failed to get purchase order: %w", err)
	}
	var rec purchaseOrderRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return matching.PurchaseOrder{}, fmt.Errorf("failed to decode purchase order: %w", err)
	}
	return matching.PurchaseOrder{
		Number:               rec.Number,
		VendorID:             rec.VendorID,
		OrderDate:            rec.OrderDate,
		ExpectedDeliveryDate: rec.ExpectedDeliveryDate,
		Lines:                fromLineRecords(rec.Lines),
	}, nil
}

// SaveGoodsReceipt inserts or replaces a GR by number.
func (s *Store) SaveGoodsReceipt(ctx context.Context, gr matching.GoodsReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(goodsReceiptRecord{
		Number:              gr.Number,
		PurchaseOrderNumber: gr.PurchaseOrderNumber,
		ReceiptDate:         gr.ReceiptDate,
		Lines:               toLineRecords(gr.Lines),
	})
	if err != nil {
		return fmt.Errorf("failed to encode goods receipt: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goods_receipts (number, purchase_order_number, doc_json, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET purchase_order_number = excluded.purchase_order_number, doc_json = excluded.doc_json
	`, gr.Number, gr.PurchaseOrderNumber, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save goods receipt: %w", err)
	}
	return nil
}

func (s *Store) GetGoodsReceipt(ctx context.Context, number string) (matching.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM goods_receipts WHERE number = ?", number).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return matching.GoodsReceipt{}, fmt.Errorf("goods receipt %s: %w", number, matching.ErrDocumentNotFound)
	}
	if err != nil {
		return matching.GoodsReceipt{}, fmt.Errorf("failed to get goods receipt: %w", err)
	}
	return decodeGoodsReceipt(data)
}

func (s *Store) FindGoodsReceipts(ctx context.Context, poNumber string) ([]matching.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_json FROM goods_receipts WHERE purchase_order_number = ? ORDER BY number ASC", poNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query goods receipts: %w", err)
	}
	defer rows.Close()

	var result []matching.GoodsReceipt
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan goods receipt: %w", err)
		}
		gr, err := decodeGoodsReceipt(data)
		if err != nil {
			return nil, err
		}
		result = append(result, gr)
	}
	return result, rows.Err()
}

func decodeGoodsReceipt(data string) (matching.GoodsReceipt, error) {
	var rec goodsReceiptRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return matching.GoodsReceipt{}, fmt.Errorf("failed to decode goods receipt: %w", err)
	}
	return matching.GoodsReceipt{
		Number:              rec.Number,
		PurchaseOrderNumber: rec.PurchaseOrderNumber,
		ReceiptDate:         rec.ReceiptDate,
		Lines:               fromLineRecords(rec.Lines),
	}, nil
}

// SaveInvoice inserts or replaces an invoice by ID.
func (s *Store) SaveInvoice(ctx context.Context, inv matching.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(invoiceRecord{
		ID:                  string(inv.ID),
		Number:              inv.Number,
		PurchaseOrderNumber: inv.PurchaseOrderNumber,
		GoodsReceiptNumber:  inv.GoodsReceiptNumber,
		VendorID:            inv.VendorID,
		InvoiceDate:         inv.InvoiceDate,
		Lines:               toLineRecords(inv.Lines),
	})
	if err != nil {
		return fmt.Errorf("failed to encode invoice: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, number, purchase_order_number, doc_json, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET number = excluded.number,
			purchase_order_number = excluded.purchase_order_number, doc_json = excluded.doc_json
	`, inv.ID, nullString(inv.Number), inv.PurchaseOrderNumber, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id matching.InvoiceID) (matching.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT doc_json FROM invoices WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return matching.Invoice{}, fmt.Errorf("invoice %s: %w", id, matching.ErrDocumentNotFound)
	}
	if err != nil {
		return matching.Invoice{}, fmt.Errorf("failed to get invoice: %w", err)
	}
	return decodeInvoice(data)
}

// ListUnmatchedInvoices returns invoices with no matching row, oldest first.
func (s *Store) ListUnmatchedInvoices(ctx context.Context) ([]matching.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.doc_json FROM invoices i
		WHERE NOT EXISTS (SELECT 1 FROM matchings m WHERE m.invoice_id = i.id)
		ORDER BY i.created_at ASC, i.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var result []matching.Invoice
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv, err := decodeInvoice(data)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func decodeInvoice(data string) (matching.Invoice, error) {
	var rec invoiceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return matching.Invoice{}, fmt.Errorf("failed to decode invoice: %w", err)
	}
	return matching.Invoice{
		ID:                  matching.InvoiceID(rec.ID),
		Number:              rec.Number,
		PurchaseOrderNumber: rec.PurchaseOrderNumber,
		GoodsReceiptNumber:  rec.GoodsReceiptNumber,
		VendorID:            rec.VendorID,
		InvoiceDate:         rec.InvoiceDate,
		Lines:               fromLineRecords(rec.Lines),
	}, nil
}
