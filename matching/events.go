package matching

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENTS - Signals for external collaborators (payment, messaging)
// =============================================================================

type EventType string

const (
	// EventPaymentBlock asks the payment system to hold the invoice.
	EventPaymentBlock EventType = "payment_block"

	// EventVarianceExceeded is a notification for the messaging collaborator.
	EventVarianceExceeded EventType = "variance_exceeded"
)

type Event struct {
	Type                EventType
	MatchingID          MatchingID
	InvoiceID           InvoiceID
	PurchaseOrderNumber string
	TotalVariance       decimal.Decimal
	RequiresApproval    bool
	OccurredAt          time.Time
}

// EventSink delivers events. Delivery failures are logged by the Service
// and never undo a persisted matching.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// eventsFor returns the events a freshly created matching triggers.
func eventsFor(m ThreeWayMatching, cfg MatchingConfiguration) []Event {
	var events []Event
	base := Event{
		MatchingID:          m.ID,
		InvoiceID:           m.InvoiceID,
		PurchaseOrderNumber: m.PurchaseOrderNumber,
		TotalVariance:       m.TotalVariance,
		RequiresApproval:    m.RequiresApproval,
		OccurredAt:          m.MatchingDate,
	}
	if m.PaymentBlocked {
		e := base
		e.Type = EventPaymentBlock
		events = append(events, e)
	}
	if cfg.SendNotifications && m.OverallStatus == StatusVarianceExceedsTolerance {
		e := base
		e.Type = EventVarianceExceeded
		events = append(events, e)
	}
	return events
}

// LogSink writes events to a structured logger. Used when no messaging
// collaborator is wired.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, e Event) error {
	s.Logger.LogAttrs(ctx, slog.LevelWarn, "matching event",
		slog.String("type", string(e.Type)),
		slog.String("matching_id", string(e.MatchingID)),
		slog.String("invoice_id", string(e.InvoiceID)),
		slog.String("purchase_order", e.PurchaseOrderNumber),
		slog.String("total_variance", e.TotalVariance.StringFixed(2)),
		slog.Bool("requires_approval", e.RequiresApproval),
	)
	return nil
}

// MultiSink fans an event out to several sinks, returning the first error.
type MultiSink []EventSink

func (ms MultiSink) Publish(ctx context.Context, e Event) error {
	var first error
	for _, s := range ms {
		if err := s.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
