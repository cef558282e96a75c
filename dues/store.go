/*
store.go - Persistence interfaces for the dues engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  split mirrors component boundaries: catalog, periods, units, unit dues,
  payments, settings. store/sqlite implements all of them on one struct.

CRITICAL DATA-LAYER DUTIES (cannot live in application logic alone):
  - Uniqueness of (period_id, unit_id, due_type_id) on unit_dues:
    a unique index, because two confirm calls from different processes can
    both pass the status check before either writes.
  - TransitionPeriod is a compare-and-swap on the period's status column.
    It is the accrual mutex: only the caller whose UPDATE matches the
    expected statuses proceeds to write rows.
  - ApplyPayment / CancelDue verify the unit due's version column so a
    payment and a cancellation racing on the same row cannot both apply.

SEE ALSO:
  - store/sqlite/sqlite.go: the concrete implementation
  - accrual.go, ledger.go: the consumers
*/
package dues

import "context"

// =============================================================================
// CATALOG STORE
// =============================================================================

type CatalogStore interface {
	SaveDueType(ctx context.Context, dt DueType) error
	GetDueType(ctx context.Context, org OrgID, id DueTypeID) (*DueType, error)
	ListDueTypes(ctx context.Context, org OrgID, activeOnly bool) ([]DueType, error)

	// DeleteDueType hard-deletes a due type. Callers must first verify the
	// type is unreferenced; the catalog does this via CountDuesForType.
	DeleteDueType(ctx context.Context, org OrgID, id DueTypeID) error

	// CountDuesForType returns how many UnitDue rows reference the type.
	CountDuesForType(ctx context.Context, id DueTypeID) (int, error)
}

// =============================================================================
// PERIOD STORE
// =============================================================================

type PeriodStore interface {
	SavePeriod(ctx context.Context, p DuesPeriod) error
	GetPeriod(ctx context.Context, org OrgID, id PeriodID) (*DuesPeriod, error)
	ListPeriods(ctx context.Context, org OrgID) ([]DuesPeriod, error)
	DeletePeriod(ctx context.Context, org OrgID, id PeriodID) error

	// TransitionPeriod atomically moves the period from one of the expected
	// statuses to the target status. Returns false when no expected status
	// matched, i.e. another caller won the transition.
	TransitionPeriod(ctx context.Context, id PeriodID, from []PeriodStatus, to PeriodStatus) (bool, error)

	// ClosePeriod sets status=closed and closed_at in one statement,
	// guarded on status=active.
	ClosePeriod(ctx context.Context, id PeriodID) (bool, error)
}

// =============================================================================
// UNIT STORE - master data, read-only input for the engine
// =============================================================================

type UnitStore interface {
	SaveUnit(ctx context.Context, u Unit) error
	ListUnits(ctx context.Context, org OrgID) ([]Unit, error)
}

// =============================================================================
// UNIT DUE STORE
// =============================================================================

// DueFilter narrows ListUnitDues. Zero values mean "no filter".
type DueFilter struct {
	Status   DueStatus
	UnitID   UnitID
	Page     int // 1-based; 0 disables pagination
	PageSize int
}

// UnitDueRow is a UnitDue joined with display master data for listings.
type UnitDueRow struct {
	UnitDue
	BlockName    string
	UnitNumber   string
	ResidentName string
	DueTypeName  string
}

type DueStore interface {
	// InsertUnitDuesAndActivate writes the whole accrual batch and the
	// processing→active transition in one transaction. On any failure
	// nothing is written and the period stays processing; the engine then
	// records the failed status.
	InsertUnitDuesAndActivate(ctx context.Context, periodID PeriodID, batch []UnitDue) error

	// DeleteUnitDuesForPeriod removes leftovers from a failed attempt so a
	// retry starts from a clean draft-equivalent state.
	DeleteUnitDuesForPeriod(ctx context.Context, periodID PeriodID) error

	GetUnitDue(ctx context.Context, id UnitDueID) (*UnitDue, error)
	ListUnitDues(ctx context.Context, periodID PeriodID, f DueFilter) ([]UnitDueRow, int, error)
	ListUnitDuesByUnit(ctx context.Context, org OrgID, unitID UnitID) ([]UnitDueRow, error)
	CountUnitDues(ctx context.Context, periodID PeriodID) (int, error)
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

type PaymentStore interface {
	// ApplyPayment atomically inserts the payment, allocates the next
	// receipt number for the organization, and updates the due's
	// paid_amount/status, guarded on the due's version. Returns the
	// allocated receipt number. ErrConcurrentModification when the version
	// check fails.
	ApplyPayment(ctx context.Context, org OrgID, due UnitDue, p Payment) (string, error)

	// CancelDue atomically marks the due cancelled and voids its payments,
	// guarded on the due's version.
	CancelDue(ctx context.Context, due UnitDue) error

	ListPayments(ctx context.Context, unitDueID UnitDueID) ([]Payment, error)
	ListPaymentsByUnit(ctx context.Context, org OrgID, unitID UnitID, page, pageSize int) ([]Payment, int, error)
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

type SettingsStore interface {
	GetSettings(ctx context.Context, org OrgID) (*OrgSettings, error)
	SaveSettings(ctx context.Context, s OrgSettings) error
}

// Store is the full persistence surface the engine needs.
type Store interface {
	CatalogStore
	PeriodStore
	UnitStore
	DueStore
	PaymentStore
	SettingsStore
}
