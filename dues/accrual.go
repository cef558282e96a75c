/*
accrual.go - Accrual Engine

PURPOSE:
  Turns a billing period plus a set of selected due types into one UnitDue
  row per (included unit, selected due type). Always two-phase:

  1. Preview  (confirmed=false): pure, repeatable pricing. Resolves each
     unit's chargeable amount (category override, else default), reports
     which units are included/excluded and why, and totals per due type ×
     category. Writes nothing.
  2. Confirm  (confirmed=true): re-validates the period is still accruable,
     wins the draft/failed → processing compare-and-swap (the period status
     is the lock), and materializes the whole batch atomically together
     with the processing → active transition. Any failure rolls the rows
     back and records failed; a retry starts from a clean state.

CONCURRENCY:
  Two confirms racing on the same period serialize on TransitionPeriod:
  exactly one wins and writes rows, the loser observes a conflict. The
  unique index on (period_id, unit_id, due_type_id) backs this up at the
  data layer in case a second process slips past the status check.

SEE ALSO:
  - period.go: the rest of the period lifecycle
  - store.go:  TransitionPeriod / InsertUnitDuesAndActivate contracts
*/
package dues

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Accrual runs the two-phase accrual protocol.
type Accrual struct {
	store Store
	now   func() time.Time
}

// NewAccrual creates an accrual engine backed by the given store.
func NewAccrual(store Store) *Accrual {
	return &Accrual{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// =============================================================================
// REQUEST / PREVIEW TYPES
// =============================================================================

// AccrualRequest is the caller's selection for one accrual run.
type AccrualRequest struct {
	DueTypeIDs        []DueTypeID
	IncludeEmptyUnits bool
	Confirmed         bool
}

// CategoryLine prices one unit category within a due type breakdown.
// An empty Category means the units had no category and the due type's
// default amount applied.
type CategoryLine struct {
	Category  UnitCategory
	UnitCount int
	Amount    decimal.Decimal // per-unit amount for this category
	Subtotal  decimal.Decimal
}

// DueTypeBreakdown totals one selected due type across included units.
type DueTypeBreakdown struct {
	DueTypeID     DueTypeID
	DueTypeName   string
	CategoryLines []CategoryLine
	Subtotal      decimal.Decimal
}

// AccrualPreview is the non-committing pricing of an accrual run. Calling
// preview twice with identical inputs and unchanged master data yields
// identical numbers.
type AccrualPreview struct {
	TotalUnits           int
	IncludedUnits        int
	ExcludedEmptyUnits   int
	UnitsWithoutCategory int
	DueTypeBreakdowns    []DueTypeBreakdown
	TotalAmount          decimal.Decimal
}

// AccrualResult is returned from a confirmed run.
type AccrualResult struct {
	Preview      AccrualPreview
	CreatedDues  int
	PeriodStatus PeriodStatus
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Accrue executes the preview or confirm phase against a period.
func (a *Accrual) Accrue(ctx context.Context, org OrgID, periodID PeriodID, req AccrualRequest) (*AccrualResult, error) {
	if len(req.DueTypeIDs) == 0 {
		return nil, validationf("dueTypeIds", "select at least one type")
	}

	period, err := a.store.GetPeriod(ctx, org, periodID)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, ErrNotFound
	}
	if !period.Accruable() {
		if period.Status == PeriodProcessing {
			return nil, ErrAlreadyProcessing
		}
		return nil, conflictf(string(period.Status), "accrual is a one-time materialization; period already has rows")
	}

	types, err := a.resolveDueTypes(ctx, org, req.DueTypeIDs)
	if err != nil {
		return nil, err
	}

	units, err := a.store.ListUnits(ctx, org)
	if err != nil {
		return nil, err
	}

	preview, included := buildPreview(units, types, req.IncludeEmptyUnits)

	if !req.Confirmed {
		return &AccrualResult{Preview: *preview, PeriodStatus: period.Status}, nil
	}

	return a.confirm(ctx, period, types, included, preview)
}

func (a *Accrual) resolveDueTypes(ctx context.Context, org OrgID, ids []DueTypeID) ([]DueType, error) {
	seen := make(map[DueTypeID]bool, len(ids))
	types := make([]DueType, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, validationf("dueTypeIds", "duplicate due type %s", id)
		}
		seen[id] = true

		dt, err := a.store.GetDueType(ctx, org, id)
		if err != nil {
			return nil, err
		}
		if dt == nil {
			return nil, validationf("dueTypeIds", "unknown due type %s", id)
		}
		if !dt.IsActive {
			return nil, validationf("dueTypeIds", "due type %q is inactive", dt.Name)
		}
		types = append(types, *dt)
	}
	return types, nil
}

// =============================================================================
// PREVIEW - pure pricing, no writes
// =============================================================================

func buildPreview(units []Unit, types []DueType, includeEmpty bool) (*AccrualPreview, []Unit) {
	preview := &AccrualPreview{
		TotalUnits:  len(units),
		TotalAmount: decimal.Zero,
	}

	var included []Unit
	for _, u := range units {
		if !u.Occupied() && !includeEmpty {
			preview.ExcludedEmptyUnits++
			continue
		}
		included = append(included, u)
		if u.Category == "" {
			preview.UnitsWithoutCategory++
		}
	}
	preview.IncludedUnits = len(included)

	for _, dt := range types {
		line := DueTypeBreakdown{
			DueTypeID:   dt.ID,
			DueTypeName: dt.Name,
			Subtotal:    decimal.Zero,
		}

		counts := make(map[UnitCategory]int)
		for _, u := range included {
			counts[u.Category]++
		}

		for _, cat := range sortedCategories(counts) {
			amount := dt.AmountFor(cat)
			subtotal := amount.Mul(decimal.NewFromInt(int64(counts[cat])))
			line.CategoryLines = append(line.CategoryLines, CategoryLine{
				Category:  cat,
				UnitCount: counts[cat],
				Amount:    amount,
				Subtotal:  subtotal,
			})
			line.Subtotal = line.Subtotal.Add(subtotal)
		}

		preview.DueTypeBreakdowns = append(preview.DueTypeBreakdowns, line)
		preview.TotalAmount = preview.TotalAmount.Add(line.Subtotal)
	}

	return preview, included
}

// sortedCategories orders named categories alphabetically with the empty
// "no category" bucket last, so preview output is deterministic.
func sortedCategories(counts map[UnitCategory]int) []UnitCategory {
	cats := make([]UnitCategory, 0, len(counts))
	for cat := range counts {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i] == "" {
			return false
		}
		if cats[j] == "" {
			return true
		}
		return cats[i] < cats[j]
	})
	return cats
}

// =============================================================================
// CONFIRM - CAS, batch insert, activate or fail
// =============================================================================

func (a *Accrual) confirm(ctx context.Context, period *DuesPeriod, types []DueType, included []Unit, preview *AccrualPreview) (*AccrualResult, error) {
	won, err := a.store.TransitionPeriod(ctx, period.ID, []PeriodStatus{PeriodDraft, PeriodFailed}, PeriodProcessing)
	if err != nil {
		return nil, err
	}
	if !won {
		// another confirm won the race, or the period moved on entirely
		return nil, ErrAlreadyProcessing
	}

	// A retry after a failed run may find leftovers if the failure happened
	// outside the batch transaction. Start from a clean slate.
	if err := a.store.DeleteUnitDuesForPeriod(ctx, period.ID); err != nil {
		return nil, a.fail(ctx, period.ID, err)
	}

	now := a.now()
	batch := make([]UnitDue, 0, len(included)*len(types))
	for _, dt := range types {
		for _, u := range included {
			// StatusFor settles zero-amount dues at birth
			amount := dt.AmountFor(u.Category)
			batch = append(batch, UnitDue{
				ID:         UnitDueID(uuid.NewString()),
				PeriodID:   period.ID,
				UnitID:     u.ID,
				DueTypeID:  dt.ID,
				Amount:     amount,
				PaidAmount: decimal.Zero,
				Status:     StatusFor(amount, decimal.Zero),
				CreatedAt:  now,
			})
		}
	}

	if err := a.store.InsertUnitDuesAndActivate(ctx, period.ID, batch); err != nil {
		return nil, a.fail(ctx, period.ID, err)
	}

	return &AccrualResult{
		Preview:      *preview,
		CreatedDues:  len(batch),
		PeriodStatus: PeriodActive,
	}, nil
}

// fail records the failed status after a broken run. The batch transaction
// has already rolled back any rows it wrote; the explicit delete covers
// failures that happened before the batch started.
func (a *Accrual) fail(ctx context.Context, periodID PeriodID, cause error) error {
	_ = a.store.DeleteUnitDuesForPeriod(ctx, periodID)
	if _, terr := a.store.TransitionPeriod(ctx, periodID, []PeriodStatus{PeriodProcessing}, PeriodFailed); terr != nil {
		return fmt.Errorf("%w: accrual failed (%v) and status update also failed: %v", ErrTransient, cause, terr)
	}
	return fmt.Errorf("%w: %v", ErrTransient, cause)
}
