/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces of the match engine using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  matching.MatchingStore:      Matchings with optimistic versioning
  matching.AuditLog:           Append-only audit trail
  matching.DocumentStore:      PO / GR / Invoice intake
  matching.ConfigurationStore: Current matching configuration

SINGLE-WRITER ENFORCEMENT:
  Workflow transitions are written with

    UPDATE matchings SET ... , version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means another writer got there first, reported as
  matching.ErrConcurrentModification. No read-modify-write window exists
  inside the database.

APPEND-ONLY AUDIT:
  audit_log has no UPDATE or DELETE statements. Audit entries for matching
  changes are written in the same SQL transaction as the change.

KEY TABLES:
  matchings:        One row per ThreeWayMatching (aggregate fields)
  matching_lines:   LineMatchResults, keyed by (matching_id, line_number)
  audit_log:        Who did what when
  purchase_orders, goods_receipts, invoices: Documents as JSON
  configuration:    Single-row matching configuration JSON

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/threeway.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - matching/store.go: Interface definitions
  - matching/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/matching"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ matching.MatchingStore      = (*Store)(nil)
	_ matching.AuditLog           = (*Store)(nil)
	_ matching.DocumentStore      = (*Store)(nil)
	_ matching.ConfigurationStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Matchings (aggregate record, mutated only by approval workflow)
	CREATE TABLE IF NOT EXISTS matchings (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		purchase_order_number TEXT NOT NULL,
		goods_receipt_number TEXT NOT NULL,
		overall_status TEXT NOT NULL,
		tolerance_exceeded BOOLEAN NOT NULL,
		requires_approval BOOLEAN NOT NULL,
		payment_blocked BOOLEAN NOT NULL,
		quantity_variance TEXT NOT NULL,
		price_variance TEXT NOT NULL,
		total_variance TEXT NOT NULL,
		matching_date TEXT NOT NULL,
		matched_by TEXT NOT NULL,
		approval_state TEXT NOT NULL,
		decided_by TEXT,
		decided_at TEXT,
		decision_reason TEXT,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_matchings_invoice
		ON matchings(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_matchings_status
		ON matchings(overall_status);
	CREATE INDEX IF NOT EXISTS idx_matchings_approval_state
		ON matchings(approval_state);
	CREATE INDEX IF NOT EXISTS idx_matchings_date
		ON matchings(matching_date);

	-- Line results
	CREATE TABLE IF NOT EXISTS matching_lines (
		matching_id TEXT NOT NULL REFERENCES matchings(id),
		line_number INTEGER NOT NULL,
		po_quantity TEXT NOT NULL,
		gr_quantity TEXT NOT NULL,
		invoice_quantity TEXT NOT NULL,
		po_price TEXT NOT NULL,
		invoice_price TEXT NOT NULL,
		quantity_variance TEXT NOT NULL,
		price_variance TEXT NOT NULL,
		total_variance TEXT NOT NULL,
		date_variance_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		tolerance_exceeded BOOLEAN NOT NULL,
		reason TEXT,
		breaches_json TEXT,
		PRIMARY KEY (matching_id, line_number)
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		matching_id TEXT,
		reason TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_matching
		ON audit_log(matching_id) WHERE matching_id IS NOT NULL;

	-- Documents
	CREATE TABLE IF NOT EXISTS purchase_orders (
		number TEXT PRIMARY KEY,
		vendor_id TEXT,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goods_receipts (
		number TEXT PRIMARY KEY,
		purchase_order_number TEXT NOT NULL,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goods_receipts_po
		ON goods_receipts(purchase_order_number);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT,
		purchase_order_number TEXT NOT NULL,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Matching configuration (single row)
	CREATE TABLE IF NOT EXISTS configuration (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// MATCHING STORE
// =============================================================================

// CreateMatching inserts the matching, its lines and the audit entry atomically.
func (s *Store) CreateMatching(ctx context.Context, m matching.ThreeWayMatching, entry matching.AuditEntry) error {
	return s.createMatching(ctx, m, entry, false)
}

// CreateMatchingOnce is CreateMatching, unless the invoice already has a
// matching. The existence check is part of the INSERT statement.
func (s *Store) CreateMatchingOnce(ctx context.Context, m matching.ThreeWayMatching, entry matching.AuditEntry) error {
	return s.createMatching(ctx, m, entry, true)
}

func (s *Store) createMatching(ctx context.Context, m matching.ThreeWayMatching, entry matching.AuditEntry, once bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO matchings
		(id, invoice_id, purchase_order_number, goods_receipt_number, overall_status,
		 tolerance_exceeded, requires_approval, payment_blocked,
		 quantity_variance, price_variance, total_variance,
		 matching_date, matched_by, approval_state, decided_by, decided_at, decision_reason, version)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	args := []any{
		m.ID, m.InvoiceID, m.PurchaseOrderNumber, m.GoodsReceiptNumber, m.OverallStatus,
		m.ToleranceExceeded, m.RequiresApproval, m.PaymentBlocked,
		m.QuantityVariance.String(), m.PriceVariance.String(), m.TotalVariance.String(),
		formatTime(m.MatchingDate), m.MatchedBy, m.ApprovalState,
		nullString(m.DecidedBy), nullTime(m.DecidedAt), nullString(m.DecisionReason), m.Version,
	}
	if once {
		query += " WHERE NOT EXISTS (SELECT 1 FROM matchings WHERE invoice_id = ?)"
		args = append(args, m.InvoiceID)
	}

	res, err := sqlTx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return matching.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert matching: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert matching: %w", err)
	}
	if n == 0 {
		return matching.ErrAlreadyMatched
	}

	for _, lr := range m.LineResults {
		if err := insertLine(ctx, sqlTx, m.ID, lr); err != nil {
			return err
		}
	}
	if err := appendAudit(ctx, sqlTx, entry); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func insertLine(ctx context.Context, db execer, id matching.MatchingID, lr matching.LineMatchResult) error {
	breaches, err := json.Marshal(toBreachRecords(lr.Breaches))
	if err != nil {
		return fmt.Errorf("failed to encode breaches: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO matching_lines
		(matching_id, line_number, po_quantity, gr_quantity, invoice_quantity, po_price, invoice_price,
		 quantity_variance, price_variance, total_variance, date_variance_days,
		 status, tolerance_exceeded, reason, breaches_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, lr.LineNumber,
		lr.POQuantity.String(), lr.GRQuantity.String(), lr.InvoiceQuantity.String(),
		lr.POPrice.String(), lr.InvoicePrice.String(),
		lr.QuantityVariance.String(), lr.PriceVariance.String(), lr.TotalVariance.String(),
		lr.DateVarianceDays, lr.Status, lr.ToleranceExceeded, nullString(string(lr.Reason)), string(breaches),
	)
	if err != nil {
		return fmt.Errorf("failed to insert line %d: %w", lr.LineNumber, err)
	}
	return nil
}

// UpdateMatching writes the workflow fields if the stored version is expectedVersion.
// Line results and variances are immutable and never rewritten.
func (s *Store) UpdateMatching(ctx context.Context, m matching.ThreeWayMatching, expectedVersion int, entry matching.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE matchings
		SET approval_state = ?, decided_by = ?, decided_at = ?, decision_reason = ?,
		    version = version + 1
		WHERE id = ? AND version = ?
	`,
		m.ApprovalState, nullString(m.DecidedBy), nullTime(m.DecidedAt), nullString(m.DecisionReason),
		m.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update matching: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update matching: %w", err)
	}
	if n == 0 {
		var exists int
		err := sqlTx.QueryRowContext(ctx, "SELECT COUNT(*) FROM matchings WHERE id = ?", m.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check matching: %w", err)
		}
		if exists == 0 {
			return matching.ErrMatchingNotFound
		}
		return matching.ErrConcurrentModification
	}

	if err := appendAudit(ctx, sqlTx, entry); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const matchingColumns = `
	id, invoice_id, purchase_order_number, goods_receipt_number, overall_status,
	tolerance_exceeded, requires_approval, payment_blocked,
	quantity_variance, price_variance, total_variance,
	matching_date, matched_by, approval_state, decided_by, decided_at, decision_reason, version`

// GetMatching loads one matching with its lines.
func (s *Store) GetMatching(ctx context.Context, id matching.MatchingID) (matching.ThreeWayMatching, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, err := s.queryMatchings(ctx, "SELECT "+matchingColumns+" FROM matchings WHERE id = ?", id)
	if err != nil {
		return matching.ThreeWayMatching{}, err
	}
	if len(ms) == 0 {
		return matching.ThreeWayMatching{}, matching.ErrMatchingNotFound
	}
	return ms[0], nil
}

// ListMatchings returns matchings passing filter, oldest first.
func (s *Store) ListMatchings(ctx context.Context, filter matching.MatchingFilter) ([]matching.ThreeWayMatching, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "overall_status = ?")
		args = append(args, filter.Status)
	}
	if filter.ApprovalState != "" {
		where = append(where, "approval_state = ?")
		args = append(args, filter.ApprovalState)
	}
	if filter.PurchaseOrderNumber != "" {
		where = append(where, "purchase_order_number = ?")
		args = append(args, filter.PurchaseOrderNumber)
	}
	if filter.InvoiceID != "" {
		where = append(where, "invoice_id = ?")
		args = append(args, filter.InvoiceID)
	}
	if filter.From != nil {
		where = append(where, "matching_date >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "matching_date <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := "SELECT " + matchingColumns + " FROM matchings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY matching_date ASC, id ASC"

	return s.queryMatchings(ctx, query, args...)
}

// queryMatchings reads matching rows, then their lines. Rows are fully
// drained before lines are queried.
func (s *Store) queryMatchings(ctx context.Context, query string, args ...any) ([]matching.ThreeWayMatching, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matchings: %w", err)
	}

	var result []matching.ThreeWayMatching
	for rows.Next() {
		m, err := scanMatching(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range result {
		lines, err := s.loadLines(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].LineResults = lines
	}
	return result, nil
}

func scanMatching(rows *sql.Rows) (matching.ThreeWayMatching, error) {
	var (
		m                          matching.ThreeWayMatching
		qtyVar, priceVar, totalVar string
		matchingDate               string
		decidedBy, decidedAt       sql.NullString
		decisionReason             sql.NullString
	)
	err := rows.Scan(
		&m.ID, &m.InvoiceID, &m.PurchaseOrderNumber, &m.GoodsReceiptNumber, &m.OverallStatus,
		&m.ToleranceExceeded, &m.RequiresApproval, &m.PaymentBlocked,
		&qtyVar, &priceVar, &totalVar,
		&matchingDate, &m.MatchedBy, &m.ApprovalState, &decidedBy, &decidedAt, &decisionReason, &m.Version,
	)
	if err != nil {
		return m, fmt.Errorf("failed to scan matching: %w", err)
	}
	var dec columnDecoder
	m.QuantityVariance = dec.decimal("quantity_variance", qtyVar)
	m.PriceVariance = dec.decimal("price_variance", priceVar)
	m.TotalVariance = dec.decimal("total_variance", totalVar)
	m.MatchingDate = dec.time("matching_date", matchingDate)
	m.DecidedBy = decidedBy.String
	m.DecisionReason = decisionReason.String
	if decidedAt.Valid {
		t := dec.time("decided_at", decidedAt.String)
		m.DecidedAt = &t
	}
	if dec.err != nil {
		return m, fmt.Errorf("matching %s: %w", m.ID, dec.err)
	}
	return m, nil
}

func (s *Store) loadLines(ctx context.Context, id matching.MatchingID) ([]matching.LineMatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_number, po_quantity, gr_quantity, invoice_quantity, po_price, invoice_price,
		       quantity_variance, price_variance, total_variance, date_variance_days,
		       status, tolerance_exceeded, reason, breaches_json
		FROM matching_lines
		WHERE matching_id = ?
		ORDER BY line_number ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []matching.LineMatchResult
	for rows.Next() {
		var (
			lr                                matching.LineMatchResult
			poQty, grQty, invQty, poPr, invPr string
			qtyVar, priceVar, totalVar        string
			reason, breachesJSON              sql.NullString
		)
		if err := rows.Scan(
			&lr.LineNumber, &poQty, &grQty, &invQty, &poPr, &invPr,
			&qtyVar, &priceVar, &totalVar, &lr.DateVarianceDays,
			&lr.Status, &lr.ToleranceExceeded, &reason, &breachesJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		var dec columnDecoder
		lr.POQuantity = dec.decimal("po_quantity", poQty)
		lr.GRQuantity = dec.decimal("gr_quantity", grQty)
		lr.InvoiceQuantity = dec.decimal("invoice_quantity", invQty)
		lr.POPrice = dec.decimal("po_price", poPr)
		lr.InvoicePrice = dec.decimal("invoice_price", invPr)
		lr.QuantityVariance = dec.decimal("quantity_variance", qtyVar)
		lr.PriceVariance = dec.decimal("price_variance", priceVar)
		lr.TotalVariance = dec.decimal("total_variance", totalVar)
		if dec.err != nil {
			return nil, fmt.Errorf("line %d of matching %s: %w", lr.LineNumber, id, dec.err)
		}
		lr.Reason = matching.LineReason(reason.String)
		if breachesJSON.Valid && breachesJSON.String != "" {
			var recs []breachRecord
			if err := json.Unmarshal([]byte(breachesJSON.String), &recs); err != nil {
				return nil, fmt.Errorf("failed to decode breaches: %w", err)
			}
			lr.Breaches = fromBreachRecords(recs)
		}
		lines = append(lines, lr)
	}
	return lines, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry matching.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, db execer, e matching.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, matching_id, reason, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, e.Action,
		nullString(string(e.MatchingID)), nullString(e.Reason), string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter matching.AuditFilter) ([]matching.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.MatchingID != nil {
		where = append(where, "matching_id = ?")
		args = append(args, *filter.MatchingID)
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		where = append(where, "action IN ("+strings.Join(marks, ",")+")")
	}

	query := "SELECT id, timestamp, actor_id, action, matching_id, reason, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []matching.AuditEntry
	for rows.Next() {
		var (
			e                           matching.AuditEntry
			ts                          string
			matchingID, reason, payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &matchingID, &reason, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		var dec columnDecoder
		e.Timestamp = dec.time("timestamp", ts)
		if dec.err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, dec.err)
		}
		e.MatchingID = matching.MatchingID(matchingID.String)
		e.Reason = reason.String
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of audit entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// CONFIGURATION STORE
// =============================================================================

func (s *Store) SaveConfiguration(ctx context.Context, cfg matching.MatchingConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := factory.ToJSON(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO configuration (id, config_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at
	`, data, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

func (s *Store) LoadConfiguration(ctx context.Context) (*matching.MatchingConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM configuration WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err := factory.ParseConfiguration([]byte(data))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Only for demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"matching_lines", "matchings", "audit_log", "purchase_orders", "goods_receipts", "invoices"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// sortableTime is fixed width so stored timestamps order lexically.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// columnDecoder parses text columns and keeps the first failure.
type columnDecoder struct {
	err error
}

func (c *columnDecoder) decimal(column, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return d
}

func (c *columnDecoder) time(column, s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
