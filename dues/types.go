/*
Package dues implements the dues accrual and payment ledger engine for a
property-management organization.

PURPOSE:
  This package contains the domain types and algorithms for turning a billing
  period plus a set of due-type definitions into per-unit financial
  obligations, recording payments against those obligations, and computing
  overdue state. The HTTP layer and storage are thin adapters around it.

KEY CONCEPTS IN THIS FILE (types.go):
  - DueType:    An organization-scoped billing category with a default amount
                and per-unit-category overrides
  - DuesPeriod: One billing cycle with a state machine
                (draft → processing → active → closed, failed branch)
  - UnitDue:    One obligation for one (unit, due type, period) triple
  - Payment:    One payment event against a UnitDue
  - Unit:       Read-only master data consumed by the accrual engine

DESIGN PRINCIPLES:
  1. Precision: shopspring/decimal for all money, never float64
  2. Snapshotting: UnitDue.Amount is copied at accrual time, so later
     catalog edits never alter historical obligations
  3. Type Safety: distinct ID types prevent mixing identifiers
  4. Status purity: UnitDue status is a function of paidAmount vs amount,
     except for the explicit cancelled terminal state

SEE ALSO:
  - catalog.go: Due type CRUD and validation
  - accrual.go: Two-phase preview/confirm accrual
  - ledger.go:  Payment recording and cancellation
  - overdue.go: Overdue flag and late-fee estimation
*/
package dues

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrgID string
type DueTypeID string
type PeriodID string
type UnitID string
type UnitDueID string
type PaymentID string

// Role is the caller's role, resolved by an external collaborator before the
// request reaches the engine.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleBoardMember Role = "board_member"
	RoleResident    Role = "resident"
)

// CanManage reports whether the role may perform admin-only operations
// (catalog writes, period lifecycle, accrual, cancellation).
func (r Role) CanManage() bool { return r == RoleAdmin }

// CanCollect reports whether the role may record payments.
func (r Role) CanCollect() bool { return r == RoleAdmin || r == RoleBoardMember }

// =============================================================================
// UNIT CATEGORIES - closed vocabulary, validated at write time
// =============================================================================

// UnitCategory labels a billable unit for amount overrides. The vocabulary is
// closed: categoryAmounts written with a key outside this set are rejected.
type UnitCategory string

const (
	CategorySmall      UnitCategory = "small"
	CategoryLarge      UnitCategory = "large"
	CategoryCommercial UnitCategory = "commercial"
	CategoryOther      UnitCategory = "other"
)

var knownCategories = map[UnitCategory]bool{
	CategorySmall:      true,
	CategoryLarge:      true,
	CategoryCommercial: true,
	CategoryOther:      true,
}

// ValidCategory reports whether c is in the known vocabulary.
// The empty category is valid on a Unit (it means "no category", and the
// due type's default amount applies) but never as a categoryAmounts key.
func ValidCategory(c UnitCategory) bool { return knownCategories[c] }

// =============================================================================
// DUE TYPE - organization-scoped billing category
// =============================================================================

type DueType struct {
	ID             DueTypeID
	OrganizationID OrgID
	Name           string
	Description    string
	DefaultAmount  decimal.Decimal
	// CategoryAmounts overrides DefaultAmount per unit category.
	// Absent categories fall back to DefaultAmount.
	CategoryAmounts map[UnitCategory]decimal.Decimal
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AmountFor resolves the chargeable amount for a unit category.
func (dt *DueType) AmountFor(category UnitCategory) decimal.Decimal {
	if category != "" {
		if amount, ok := dt.CategoryAmounts[category]; ok {
			return amount
		}
	}
	return dt.DefaultAmount
}

// =============================================================================
// DUES PERIOD - one billing cycle with a lifecycle
// =============================================================================

type PeriodStatus string

const (
	PeriodDraft      PeriodStatus = "draft"
	PeriodProcessing PeriodStatus = "processing"
	PeriodActive     PeriodStatus = "active"
	PeriodFailed     PeriodStatus = "failed"
	PeriodClosed     PeriodStatus = "closed"
)

type DuesPeriod struct {
	ID             PeriodID
	OrganizationID OrgID
	Name           string
	StartDate      time.Time
	DueDate        time.Time
	Status         PeriodStatus
	CreatedBy      string
	CreatedAt      time.Time
	ClosedAt       *time.Time
}

// Accruable reports whether this period may enter a confirmed accrual.
// Only draft periods and periods whose previous run failed (and was rolled
// back) qualify.
func (p *DuesPeriod) Accruable() bool {
	return p.Status == PeriodDraft || p.Status == PeriodFailed
}

// =============================================================================
// UNIT - read-only master data consumed by the accrual engine
// =============================================================================

type Unit struct {
	ID             UnitID
	OrganizationID OrgID
	BlockName      string
	UnitNumber     string
	Category       UnitCategory // empty means no category assigned
	ResidentName   string       // empty means no active occupant
}

// Occupied reports whether the unit has an active occupant.
func (u *Unit) Occupied() bool { return u.ResidentName != "" }

// =============================================================================
// UNIT DUE - one obligation for one (unit, due type, period) triple
// =============================================================================

type DueStatus string

const (
	DuePending   DueStatus = "pending"
	DuePartial   DueStatus = "partial"
	DuePaid      DueStatus = "paid"
	DueCancelled DueStatus = "cancelled"
)

type UnitDue struct {
	ID         UnitDueID
	PeriodID   PeriodID
	UnitID     UnitID
	DueTypeID  DueTypeID
	Amount     decimal.Decimal // snapshotted at accrual time
	PaidAmount decimal.Decimal
	Status     DueStatus
	Version    int // optimistic concurrency token
	CreatedAt  time.Time
}

// Remaining returns amount − paidAmount, floored at zero. Overpayments keep
// the true total in PaidAmount but never drive Remaining negative.
func (d *UnitDue) Remaining() decimal.Decimal {
	rem := d.Amount.Sub(d.PaidAmount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// StatusFor derives status purely from paid vs amount. A due with no
// outstanding balance reads paid, zero-amount dues included, so exempt
// units never show as outstanding or overdue.
// Cancellation is explicit and never derived.
func StatusFor(amount, paid decimal.Decimal) DueStatus {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return DuePaid
	case paid.IsPositive():
		return DuePartial
	default:
		return DuePending
	}
}

// =============================================================================
// PAYMENT - one payment event against a UnitDue
// =============================================================================

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodOther        PaymentMethod = "other"
)

// ValidPaymentMethod reports whether m is a known method.
func ValidPaymentMethod(m PaymentMethod) bool {
	return m == MethodCash || m == MethodBankTransfer || m == MethodOther
}

type Payment struct {
	ID                PaymentID
	UnitDueID         UnitDueID
	ReceiptNumber     string // unique per organization, monotonically increasing
	Amount            decimal.Decimal
	PaidAt            time.Time
	Method            PaymentMethod
	CollectedBy       string
	Note              string
	IsOverpayment     bool
	OverpaymentAmount decimal.Decimal
	Voided            bool // set when the owning due is cancelled
	CreatedAt         time.Time
}

// =============================================================================
// ORGANIZATION SETTINGS - late-fee configuration
// =============================================================================

// OrgSettings holds per-organization late-fee configuration. A zero LateFeeRate
// disables fee estimation entirely.
type OrgSettings struct {
	OrganizationID OrgID
	LateFeeRate    decimal.Decimal // daily rate applied to the remaining amount
	GraceDays      int
}
