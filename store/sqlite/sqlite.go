/*
Package sqlite provides a SQLite-backed implementation of the dues storage
interfaces.

PURPOSE:
  Implements dues.Store (catalog, periods, units, unit dues, payments,
  settings) using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  due_types:        Billing categories with per-unit-category overrides
  dues_periods:     Billing cycles with the lifecycle status column
  units:            Unit roster master data
  unit_dues:        Obligations, one per (period, unit, due type)
  payments:         Payment events, receipt-numbered per organization
  receipt_counters: Monotonic per-organization receipt allocation
  org_settings:     Late-fee configuration

INVARIANTS ENFORCED HERE, NOT ONLY IN APPLICATION LOGIC:
  - idx_unique_unit_due: UNIQUE(period_id, unit_id, due_type_id) protects
    against double accrual even when a second confirm races the status
    check from another process
  - TransitionPeriod: UPDATE ... WHERE status IN (...) is the accrual
    lock-acquire compare-and-swap
  - ApplyPayment / CancelDue: version-guarded single-row updates so racing
    mutations of the same due cannot both apply
  - idx_payments_receipt: UNIQUE(org_id, receipt_number)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so the frequent status
  polling of a processing period never blocks on the accrual batch writer.

USAGE:
  store, err := sqlite.New("./data/dues.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - dues/store.go: Interface definitions and contracts
  - dues/accrual.go: Two-phase accrual driving TransitionPeriod
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aidat/dues-engine/dues"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements dues.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS due_types (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		default_amount TEXT NOT NULL,
		category_amounts_json TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_due_types_org ON due_types(org_id);

	CREATE TABLE IF NOT EXISTS dues_periods (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_by TEXT,
		created_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_periods_org ON dues_periods(org_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		block_name TEXT,
		unit_number TEXT NOT NULL,
		category TEXT,
		resident_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_units_org ON units(org_id);

	CREATE TABLE IF NOT EXISTS unit_dues (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		due_type_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one obligation per (period, unit, due type). Data-layer
	-- guard against double accrual; the status CAS alone cannot stop a
	-- second confirm racing from another process.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_unit_due
		ON unit_dues(period_id, unit_id, due_type_id);

	CREATE INDEX IF NOT EXISTS idx_unit_dues_period_status
		ON unit_dues(period_id, status);
	CREATE INDEX IF NOT EXISTS idx_unit_dues_unit
		ON unit_dues(unit_id);
	CREATE INDEX IF NOT EXISTS idx_unit_dues_type
		ON unit_dues(due_type_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		unit_due_id TEXT NOT NULL,
		receipt_number TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL,
		collected_by TEXT,
		note TEXT,
		is_overpayment BOOLEAN NOT NULL DEFAULT FALSE,
		overpayment_amount TEXT,
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_receipt
		ON payments(org_id, receipt_number);
	CREATE INDEX IF NOT EXISTS idx_payments_due
		ON payments(unit_due_id, created_at);

	CREATE TABLE IF NOT EXISTS receipt_counters (
		org_id TEXT PRIMARY KEY,
		next INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS org_settings (
		org_id TEXT PRIMARY KEY,
		late_fee_rate TEXT NOT NULL DEFAULT '0',
		grace_days INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG STORE (dues.CatalogStore interface)
// =============================================================================

// SaveDueType inserts or updates a due type.
func (s *Store) SaveDueType(ctx context.Context, dt dues.DueType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var categoryJSON sql.NullString
	if len(dt.CategoryAmounts) > 0 {
		raw := make(map[string]string, len(dt.CategoryAmounts))
		for cat, amount := range dt.CategoryAmounts {
			raw[string(cat)] = amount.String()
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("failed to encode category amounts: %w", err)
		}
		categoryJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO due_types
		(id, org_id, name, description, default_amount, category_amounts_json, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_amount = excluded.default_amount,
			category_amounts_json = excluded.category_amounts_json,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		dt.ID, dt.OrganizationID, dt.Name, nullString(dt.Description),
		dt.DefaultAmount.String(), categoryJSON, dt.IsActive,
		dt.CreatedAt.Format(time.RFC3339), dt.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// GetDueType retrieves a due type by ID within an organization.
func (s *Store) GetDueType(ctx context.Context, org dues.OrgID, id dues.DueTypeID) (*dues.DueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, description, default_amount, category_amounts_json, is_active, created_at, updated_at
		FROM due_types WHERE id = ? AND org_id = ?`, id, org)

	dt, err := scanDueType(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dt, nil
}

// ListDueTypes returns the organization's due types ordered by name.
func (s *Store) ListDueTypes(ctx context.Context, org dues.OrgID, activeOnly bool) ([]dues.DueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, org_id, name, description, default_amount, category_amounts_json, is_active, created_at, updated_at
		FROM due_types WHERE org_id = ?`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, org)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []dues.DueType
	for rows.Next() {
		dt, err := scanDueType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *dt)
	}
	return types, rows.Err()
}

// DeleteDueType removes a due type. Reference checks are the catalog's job.
func (s *Store) DeleteDueType(ctx context.Context, org dues.OrgID, id dues.DueTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM due_types WHERE id = ? AND org_id = ?", id, org)
	return err
}

// CountDuesForType returns how many unit dues reference the due type.
func (s *Store) CountDuesForType(ctx context.Context, id dues.DueTypeID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM unit_dues WHERE due_type_id = ?", id).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDueType(row rowScanner) (*dues.DueType, error) {
	var (
		dt           dues.DueType
		description  sql.NullString
		defaultAmt   string
		categoryJSON sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(&dt.ID, &dt.OrganizationID, &dt.Name, &description,
		&defaultAmt, &categoryJSON, &dt.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	dt.Description = description.String
	dt.DefaultAmount = mustDecimal(defaultAmt)
	dt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	dt.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if categoryJSON.Valid && categoryJSON.String != "" {
		raw := map[string]string{}
		if err := json.Unmarshal([]byte(categoryJSON.String), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode category amounts: %w", err)
		}
		dt.CategoryAmounts = make(map[dues.UnitCategory]decimal.Decimal, len(raw))
		for cat, amount := range raw {
			dt.CategoryAmounts[dues.UnitCategory(cat)] = mustDecimal(amount)
		}
	}

	return &dt, nil
}

// =============================================================================
// PERIOD STORE (dues.PeriodStore interface)
// =============================================================================

// SavePeriod inserts or updates a period.
func (s *Store) SavePeriod(ctx context.Context, p dues.DuesPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closedAt sql.NullString
	if p.ClosedAt != nil {
		closedAt = sql.NullString{String: p.ClosedAt.Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT INTO dues_periods
		(id, org_id, name, start_date, due_date, status, created_by, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			due_date = excluded.due_date,
			status = excluded.status,
			closed_at = excluded.closed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OrganizationID, p.Name,
		p.StartDate.Format(time.RFC3339), p.DueDate.Format(time.RFC3339),
		p.Status, nullString(p.CreatedBy),
		p.CreatedAt.Format(time.RFC3339), closedAt,
	)
	return err
}

// GetPeriod retrieves a period by ID within an organization.
func (s *Store) GetPeriod(ctx context.Context, org dues.OrgID, id dues.PeriodID) (*dues.DuesPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, start_date, due_date, status, created_by, created_at, closed_at
		FROM dues_periods WHERE id = ? AND org_id = ?`, id, org)

	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPeriods returns the organization's periods, newest first.
func (s *Store) ListPeriods(ctx context.Context, org dues.OrgID) ([]dues.DuesPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, start_date, due_date, status, created_by, created_at, closed_at
		FROM dues_periods WHERE org_id = ?
		ORDER BY created_at DESC`, org)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []dues.DuesPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

// DeletePeriod removes a period. Lifecycle checks are the period manager's job.
func (s *Store) DeletePeriod(ctx context.Context, org dues.OrgID, id dues.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM dues_periods WHERE id = ? AND org_id = ?", id, org)
	return err
}

// TransitionPeriod is the status compare-and-swap. The WHERE clause is the
// whole locking protocol: only the caller whose expected status still holds
// gets RowsAffected == 1.
func (s *Store) TransitionPeriod(ctx context.Context, id dues.PeriodID, from []dues.PeriodStatus, to dues.PeriodStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(from))
	args := make([]any, 0, len(from)+2)
	args = append(args, to, id)
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}

	query := fmt.Sprintf(
		"UPDATE dues_periods SET status = ? WHERE id = ? AND status IN (%s)",
		strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClosePeriod sets status=closed and closed_at, guarded on status=active.
func (s *Store) ClosePeriod(ctx context.Context, id dues.PeriodID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE dues_periods SET status = 'closed', closed_at = ?
		WHERE id = ? AND status = 'active'`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanPeriod(row rowScanner) (*dues.DuesPeriod, error) {
	var (
		p         dues.DuesPeriod
		startDate string
		dueDate   string
		createdBy sql.NullString
		createdAt string
		closedAt  sql.NullString
	)

	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &startDate, &dueDate,
		&p.Status, &createdBy, &createdAt, &closedAt)
	if err != nil {
		return nil, err
	}

	p.StartDate, _ = time.Parse(time.RFC3339, startDate)
	p.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	p.CreatedBy = createdBy.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		p.ClosedAt = &t
	}

	return &p, nil
}

// =============================================================================
// UNIT STORE (dues.UnitStore interface)
// =============================================================================

// SaveUnit inserts or updates a roster unit.
func (s *Store) SaveUnit(ctx context.Context, u dues.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO units (id, org_id, block_name, unit_number, category, resident_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			block_name = excluded.block_name,
			unit_number = excluded.unit_number,
			category = excluded.category,
			resident_name = excluded.resident_name
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.OrganizationID, nullString(u.BlockName), u.UnitNumber,
		nullString(string(u.Category)), nullString(u.ResidentName),
	)
	return err
}

// ListUnits returns the organization's roster ordered by block and number.
func (s *Store) ListUnits(ctx context.Context, org dues.OrgID) ([]dues.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, block_name, unit_number, category, resident_name
		FROM units WHERE org_id = ?
		ORDER BY block_name, unit_number`, org)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []dues.Unit
	for rows.Next() {
		var (
			u            dues.Unit
			blockName    sql.NullString
			category     sql.NullString
			residentName sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.OrganizationID, &blockName, &u.UnitNumber, &category, &residentName); err != nil {
			return nil, err
		}
		u.BlockName = blockName.String
		u.Category = dues.UnitCategory(category.String)
		u.ResidentName = residentName.String
		units = append(units, u)
	}
	return units, rows.Err()
}

// =============================================================================
// UNIT DUE STORE (dues.DueStore interface)
// =============================================================================

// InsertUnitDuesAndActivate writes the accrual batch and the
// processing -> active transition in a single transaction. Either every row
// lands and the period activates, or nothing is written.
func (s *Store) InsertUnitDuesAndActivate(ctx context.Context, periodID dues.PeriodID, batch []dues.UnitDue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", dues.ErrTransient, err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO unit_dues
		(id, period_id, unit_id, due_type_id, amount, paid_amount, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, d := range batch {
		_, err := tx.ExecContext(ctx, insert,
			d.ID, d.PeriodID, d.UnitID, d.DueTypeID,
			d.Amount.String(), d.PaidAmount.String(), d.Status, d.Version,
			d.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return dues.ErrDuplicateUnitDue
			}
			return fmt.Errorf("%w: %v", dues.ErrTransient, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE dues_periods SET status = 'active' WHERE id = ? AND status = 'processing'", periodID)
	if err != nil {
		return fmt.Errorf("%w: %v", dues.ErrTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", dues.ErrTransient, err)
	}
	if n != 1 {
		return dues.ErrAlreadyProcessing
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", dues.ErrTransient, err)
	}
	return nil
}

// DeleteUnitDuesForPeriod clears rows left by a failed accrual attempt.
func (s *Store) DeleteUnitDuesForPeriod(ctx context.Context, periodID dues.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM unit_dues WHERE period_id = ?", periodID)
	return err
}

// GetUnitDue retrieves one unit due by ID.
func (s *Store) GetUnitDue(ctx context.Context, id dues.UnitDueID) (*dues.UnitDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, period_id, unit_id, due_type_id, amount, paid_amount, status, version, created_at
		FROM unit_dues WHERE id = ?`, id)

	d, err := scanUnitDue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListUnitDues returns one page of a period's dues joined with display data.
func (s *Store) ListUnitDues(ctx context.Context, periodID dues.PeriodID, f dues.DueFilter) ([]dues.UnitDueRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := "WHERE d.period_id = ?"
	args := []any{periodID}
	if f.Status != "" {
		where += " AND d.status = ?"
		args = append(args, f.Status)
	}
	if f.UnitID != "" {
		where += " AND d.unit_id = ?"
		args = append(args, f.UnitID)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM unit_dues d " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT d.id, d.period_id, d.unit_id, d.due_type_id, d.amount, d.paid_amount,
		       d.status, d.version, d.created_at,
		       COALESCE(u.block_name, ''), COALESCE(u.unit_number, ''),
		       COALESCE(u.resident_name, ''), COALESCE(t.name, '')
		FROM unit_dues d
		LEFT JOIN units u ON u.id = d.unit_id
		LEFT JOIN due_types t ON t.id = d.due_type_id
		` + where + `
		ORDER BY u.block_name, u.unit_number, t.name
	`
	if f.Page > 0 && f.PageSize > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collectUnitDueRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListUnitDuesByUnit returns all dues for one unit across the organization's
// periods, newest first. Backs the resident "my dues" view.
func (s *Store) ListUnitDuesByUnit(ctx context.Context, org dues.OrgID, unitID dues.UnitID) ([]dues.UnitDueRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.period_id, d.unit_id, d.due_type_id, d.amount, d.paid_amount,
		       d.status, d.version, d.created_at,
		       COALESCE(u.block_name, ''), COALESCE(u.unit_number, ''),
		       COALESCE(u.resident_name, ''), COALESCE(t.name, '')
		FROM unit_dues d
		JOIN dues_periods p ON p.id = d.period_id
		LEFT JOIN units u ON u.id = d.unit_id
		LEFT JOIN due_types t ON t.id = d.due_type_id
		WHERE d.unit_id = ? AND p.org_id = ?
		ORDER BY d.created_at DESC`, unitID, org)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUnitDueRows(rows)
}

// CountUnitDues returns the number of dues in a period.
func (s *Store) CountUnitDues(ctx context.Context, periodID dues.PeriodID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM unit_dues WHERE period_id = ?", periodID).Scan(&count)
	return count, err
}

func scanUnitDue(row rowScanner) (*dues.UnitDue, error) {
	var (
		d          dues.UnitDue
		amount     string
		paidAmount string
		createdAt  string
	)
	err := row.Scan(&d.ID, &d.PeriodID, &d.UnitID, &d.DueTypeID,
		&amount, &paidAmount, &d.Status, &d.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Amount = mustDecimal(amount)
	d.PaidAmount = mustDecimal(paidAmount)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}

func collectUnitDueRows(rows *sql.Rows) ([]dues.UnitDueRow, error) {
	var items []dues.UnitDueRow
	for rows.Next() {
		var (
			r          dues.UnitDueRow
			amount     string
			paidAmount string
			createdAt  string
		)
		err := rows.Scan(&r.ID, &r.PeriodID, &r.UnitID, &r.DueTypeID,
			&amount, &paidAmount, &r.Status, &r.Version, &createdAt,
			&r.BlockName, &r.UnitNumber, &r.ResidentName, &r.DueTypeName)
		if err != nil {
			return nil, err
		}
		r.Amount = mustDecimal(amount)
		r.PaidAmount = mustDecimal(paidAmount)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		items = append(items, r)
	}
	return items, rows.Err()
}

// =============================================================================
// PAYMENT STORE (dues.PaymentStore interface)
// =============================================================================

// ApplyPayment atomically updates the due (version-guarded), allocates the
// next receipt number for the organization, and inserts the payment.
func (s *Store) ApplyPayment(ctx context.Context, org dues.OrgID, due dues.UnitDue, p dues.Payment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE unit_dues SET paid_amount = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		due.PaidAmount.String(), due.Status, due.ID, due.Version)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n != 1 {
		return "", dues.ErrConcurrentModification
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO receipt_counters (org_id, next) VALUES (?, 1)
		ON CONFLICT(org_id) DO UPDATE SET next = next + 1
		RETURNING next`, org).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to allocate receipt number: %w", err)
	}
	receipt := fmt.Sprintf("RCP-%06d", seq)

	var overpayment sql.NullString
	if p.IsOverpayment {
		overpayment = sql.NullString{String: p.OverpaymentAmount.String(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments
		(id, org_id, unit_due_id, receipt_number, amount, paid_at, method,
		 collected_by, note, is_overpayment, overpayment_amount, voided, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
		p.ID, org, p.UnitDueID, receipt, p.Amount.String(),
		p.PaidAt.Format(time.RFC3339), p.Method,
		nullString(p.CollectedBy), nullString(p.Note),
		p.IsOverpayment, overpayment,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return receipt, nil
}

// CancelDue atomically marks the due cancelled (version-guarded) and voids
// its payments. Payments stay in history; voided rows drop out of
// remaining-owed math.
func (s *Store) CancelDue(ctx context.Context, due dues.UnitDue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE unit_dues SET status = 'cancelled', version = version + 1
		WHERE id = ? AND version = ?`, due.ID, due.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return dues.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE payments SET voided = TRUE WHERE unit_due_id = ?", due.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListPayments returns a due's payment history, voided entries included,
// oldest first.
func (s *Store) ListPayments(ctx context.Context, unitDueID dues.UnitDueID) ([]dues.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_due_id, receipt_number, amount, paid_at, method,
		       collected_by, note, is_overpayment, overpayment_amount, voided, created_at
		FROM payments WHERE unit_due_id = ?
		ORDER BY created_at ASC`, unitDueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

// ListPaymentsByUnit returns one page of a unit's payment history, newest
// first. Backs the resident "my payments" view.
func (s *Store) ListPaymentsByUnit(ctx context.Context, org dues.OrgID, unitID dues.UnitID, page, pageSize int) ([]dues.Payment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM payments p JOIN unit_dues d ON d.id = p.unit_due_id
		WHERE p.org_id = ? AND d.unit_id = ?`, org, unitID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT p.id, p.unit_due_id, p.receipt_number, p.amount, p.paid_at, p.method,
		       p.collected_by, p.note, p.is_overpayment, p.overpayment_amount, p.voided, p.created_at
		FROM payments p JOIN unit_dues d ON d.id = p.unit_due_id
		WHERE p.org_id = ? AND d.unit_id = ?
		ORDER BY p.created_at DESC
	`
	args := []any{org, unitID}
	if page > 0 && pageSize > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, pageSize, (page-1)*pageSize)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func collectPayments(rows *sql.Rows) ([]dues.Payment, error) {
	var payments []dues.Payment
	for rows.Next() {
		var (
			p           dues.Payment
			amount      string
			paidAt      string
			collectedBy sql.NullString
			note        sql.NullString
			overpayment sql.NullString
			createdAt   string
		)
		err := rows.Scan(&p.ID, &p.UnitDueID, &p.ReceiptNumber, &amount, &paidAt,
			&p.Method, &collectedBy, &note, &p.IsOverpayment, &overpayment,
			&p.Voided, &createdAt)
		if err != nil {
			return nil, err
		}
		p.Amount = mustDecimal(amount)
		p.PaidAt, _ = time.Parse(time.RFC3339, paidAt)
		p.CollectedBy = collectedBy.String
		p.Note = note.String
		if overpayment.Valid {
			p.OverpaymentAmount = mustDecimal(overpayment.String)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// SETTINGS STORE (dues.SettingsStore interface)
// =============================================================================

// GetSettings returns the organization's late-fee settings, or nil when none
// were ever saved.
func (s *Store) GetSettings(ctx context.Context, org dues.OrgID) (*dues.OrgSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		settings dues.OrgSettings
		rate     string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT org_id, late_fee_rate, grace_days FROM org_settings WHERE org_id = ?",
		org).Scan(&settings.OrganizationID, &rate, &settings.GraceDays)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	settings.LateFeeRate = mustDecimal(rate)
	return &settings, nil
}

// SaveSettings inserts or updates the organization's late-fee settings.
func (s *Store) SaveSettings(ctx context.Context, settings dues.OrgSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_settings (org_id, late_fee_rate, grace_days)
		VALUES (?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			late_fee_rate = excluded.late_fee_rate,
			grace_days = excluded.grace_days`,
		settings.OrganizationID, settings.LateFeeRate.String(), settings.GraceDays)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "unit_dues", "dues_periods", "due_types", "units", "receipt_counters", "org_settings"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
