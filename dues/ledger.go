/*
ledger.go - Payment Ledger

PURPOSE:
  Records payments against UnitDue rows and handles cancellation. Both
  operations carry a manual two-step confirmation protocol:

  - recordPayment with amount > remaining is rejected with a
    "needs confirmation" outcome carrying the would-be overpayment; the
    caller re-submits with confirmed=true and the payment is recorded with
    the overpayment flagged.
  - cancelUnitDue on a due with payments (or already paid) is rejected with
    a "needs confirmation" outcome; the second call with confirm=true
    cancels the due and voids its payments for reporting purposes.

  "Needs confirmation" is a distinct result variant on the outcome structs,
  not an error: the transport maps it to a distinguishable status so the
  client can re-issue with explicit intent.

CONCURRENCY:
  Each mutation is per-row and atomic: the store guards the write on the
  due's version column, so a payment and a cancellation racing on the same
  due cannot both apply. The loser sees ErrConcurrentModification and must
  re-read.

SEE ALSO:
  - store.go:  ApplyPayment / CancelDue contracts
  - overdue.go: read-time overdue and late-fee computation
*/
package dues

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger records payments and cancellations against unit dues.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a payment ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// =============================================================================
// OUTCOME VARIANTS
// =============================================================================

// OverpaymentPrompt is the "needs confirmation" detail for a payment whose
// amount exceeds the remaining balance.
type OverpaymentPrompt struct {
	RemainingAmount   decimal.Decimal
	OverpaymentAmount decimal.Decimal
}

// PaymentOutcome is the tagged result of RecordPayment: exactly one of
// Payment (success) or Confirmation (needs confirmation) is set.
type PaymentOutcome struct {
	Payment      *Payment
	Confirmation *OverpaymentPrompt
}

// CancelPrompt is the "needs confirmation" detail for cancelling a due that
// has money recorded against it.
type CancelPrompt struct {
	PaidAmount   decimal.Decimal
	PaymentCount int
}

// CancelOutcome is the tagged result of CancelUnitDue: Cancelled is true on
// success (including the idempotent repeat), otherwise Confirmation is set.
type CancelOutcome struct {
	Cancelled    bool
	Due          *UnitDue
	Confirmation *CancelPrompt
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

// RecordPaymentInput carries one payment submission.
type RecordPaymentInput struct {
	Amount      decimal.Decimal
	PaidAt      time.Time
	Method      PaymentMethod
	CollectedBy string
	Note        string
	Confirmed   bool
}

// RecordPayment validates and applies one payment against a unit due.
// When the amount exceeds the remaining balance and Confirmed is false, the
// outcome carries an OverpaymentPrompt and nothing is mutated.
func (l *Ledger) RecordPayment(ctx context.Context, org OrgID, dueID UnitDueID, in RecordPaymentInput) (*PaymentOutcome, error) {
	if !in.Amount.IsPositive() {
		return nil, validationf("amount", "amount must be greater than zero")
	}
	if !ValidPaymentMethod(in.Method) {
		return nil, validationf("paymentMethod", "unknown payment method %q", in.Method)
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = l.now()
	}

	due, err := l.store.GetUnitDue(ctx, dueID)
	if err != nil {
		return nil, err
	}
	if due == nil {
		return nil, ErrNotFound
	}
	if due.Status == DueCancelled {
		return nil, conflictf(string(due.Status), "cannot record a payment against a cancelled due")
	}

	remaining := due.Remaining()
	overpay := in.Amount.Sub(remaining)
	if overpay.IsPositive() && !in.Confirmed {
		return &PaymentOutcome{Confirmation: &OverpaymentPrompt{
			RemainingAmount:   remaining,
			OverpaymentAmount: overpay,
		}}, nil
	}

	payment := Payment{
		ID:          PaymentID(uuid.NewString()),
		UnitDueID:   due.ID,
		Amount:      in.Amount,
		PaidAt:      in.PaidAt,
		Method:      in.Method,
		CollectedBy: in.CollectedBy,
		Note:        in.Note,
		CreatedAt:   l.now(),
	}
	if overpay.IsPositive() {
		payment.IsOverpayment = true
		payment.OverpaymentAmount = overpay
	}

	// paidAmount reflects the true total collected; status floors remaining
	// at zero, so an overpayment lands on paid.
	due.PaidAmount = due.PaidAmount.Add(in.Amount)
	due.Status = StatusFor(due.Amount, due.PaidAmount)

	receipt, err := l.store.ApplyPayment(ctx, org, *due, payment)
	if err != nil {
		return nil, err
	}
	payment.ReceiptNumber = receipt

	return &PaymentOutcome{Payment: &payment}, nil
}

// =============================================================================
// CANCEL UNIT DUE
// =============================================================================

// CancelUnitDue cancels one obligation. Forbidden when the owning period is
// closed. A due with recorded money requires confirm=true; repeating the
// cancellation of an already-cancelled due is a no-op success.
func (l *Ledger) CancelUnitDue(ctx context.Context, org OrgID, dueID UnitDueID, confirm bool) (*CancelOutcome, error) {
	due, err := l.store.GetUnitDue(ctx, dueID)
	if err != nil {
		return nil, err
	}
	if due == nil {
		return nil, ErrNotFound
	}

	if due.Status == DueCancelled {
		return &CancelOutcome{Cancelled: true, Due: due}, nil
	}

	period, err := l.store.GetPeriod(ctx, org, due.PeriodID)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, ErrNotFound
	}
	if period.Status == PeriodClosed {
		return nil, ErrPeriodClosed
	}

	payments, err := l.store.ListPayments(ctx, dueID)
	if err != nil {
		return nil, err
	}
	live := 0
	for _, p := range payments {
		if !p.Voided {
			live++
		}
	}

	if (due.Status == DuePaid || live > 0) && !confirm {
		return &CancelOutcome{Confirmation: &CancelPrompt{
			PaidAmount:   due.PaidAmount,
			PaymentCount: live,
		}}, nil
	}

	due.Status = DueCancelled
	if err := l.store.CancelDue(ctx, *due); err != nil {
		return nil, err
	}

	return &CancelOutcome{Cancelled: true, Due: due}, nil
}

// =============================================================================
// READS
// =============================================================================

// Payments returns the payment history of one due, voided entries included.
func (l *Ledger) Payments(ctx context.Context, dueID UnitDueID) ([]Payment, error) {
	due, err := l.store.GetUnitDue(ctx, dueID)
	if err != nil {
		return nil, err
	}
	if due == nil {
		return nil, ErrNotFound
	}
	return l.store.ListPayments(ctx, dueID)
}
