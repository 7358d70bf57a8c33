package matching

import (
	"fmt"
)

// ValidateDocuments checks the three documents before any variance is
// computed. Every problem is collected into a single *ValidationError.
func ValidateDocuments(po PurchaseOrder, gr GoodsReceipt, inv Invoice) error {
	verr := &ValidationError{}

	if po.Number == "" {
		verr.add("purchase_order.number", "is required")
	}
	if gr.Number == "" {
		verr.add("goods_receipt.number", "is required")
	}
	if inv.Number == "" && inv.ID == "" {
		verr.add("invoice.number", "is required")
	}

	// Cross-references are optional, but must agree when present.
	if gr.PurchaseOrderNumber != "" && po.Number != "" && gr.PurchaseOrderNumber != po.Number {
		verr.add("goods_receipt.purchase_order_number", "references %q, expected %q", gr.PurchaseOrderNumber, po.Number)
	}
	if inv.PurchaseOrderNumber != "" && po.Number != "" && inv.PurchaseOrderNumber != po.Number {
		verr.add("invoice.purchase_order_number", "references %q, expected %q", inv.PurchaseOrderNumber, po.Number)
	}
	if inv.GoodsReceiptNumber != "" && gr.Number != "" && inv.GoodsReceiptNumber != gr.Number {
		verr.add("invoice.goods_receipt_number", "references %q, expected %q", inv.GoodsReceiptNumber, gr.Number)
	}

	if len(po.Lines) == 0 {
		verr.add("purchase_order.lines", "at least one line is required")
	}
	if len(inv.Lines) == 0 {
		verr.add("invoice.lines", "at least one line is required")
	}

	validateLines(verr, "purchase_order", po.Lines)
	validateLines(verr, "goods_receipt", gr.Lines)
	validateLines(verr, "invoice", inv.Lines)

	return verr.orNil()
}

// ValidateInvoice checks an invoice on its own, before it is stored.
func ValidateInvoice(inv Invoice) error {
	verr := &ValidationError{}
	if inv.Number == "" && inv.ID == "" {
		verr.add("invoice.number", "is required")
	}
	if inv.PurchaseOrderNumber == "" {
		verr.add("invoice.purchase_order_number", "is required")
	}
	if len(inv.Lines) == 0 {
		verr.add("invoice.lines", "at least one line is required")
	}
	validateLines(verr, "invoice", inv.Lines)
	return verr.orNil()
}

// ValidatePurchaseOrder checks a purchase order on its own, before it is stored.
func ValidatePurchaseOrder(po PurchaseOrder) error {
	verr := &ValidationError{}
	if po.Number == "" {
		verr.add("purchase_order.number", "is required")
	}
	if len(po.Lines) == 0 {
		verr.add("purchase_order.lines", "at least one line is required")
	}
	validateLines(verr, "purchase_order", po.Lines)
	return verr.orNil()
}

// ValidateGoodsReceipt checks a goods receipt on its own, before it is stored.
func ValidateGoodsReceipt(gr GoodsReceipt) error {
	verr := &ValidationError{}
	if gr.Number == "" {
		verr.add("goods_receipt.number", "is required")
	}
	if gr.PurchaseOrderNumber == "" {
		verr.add("goods_receipt.purchase_order_number", "is required")
	}
	validateLines(verr, "goods_receipt", gr.Lines)
	return verr.orNil()
}

func validateLines(verr *ValidationError, doc string, lines []DocumentLine) {
	seen := make(map[int]bool, len(lines))
	for i, l := range lines {
		field := fmt.Sprintf("%s.lines[%d]", doc, i)
		if l.LineNumber <= 0 {
			verr.add(field+".line_number", "must be a positive line number, got %d", l.LineNumber)
		} else if seen[l.LineNumber] {
			verr.add(field+".line_number", "duplicate line number %d", l.LineNumber)
		}
		seen[l.LineNumber] = true

		if l.Quantity.IsNegative() {
			verr.add(field+".quantity", "must be >= 0, got %s", l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			verr.add(field+".unit_price", "must be >= 0, got %s", l.UnitPrice)
		}
	}
}
