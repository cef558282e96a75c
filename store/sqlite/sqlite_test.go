package sqlite_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidat/dues-engine/dues"
	"github.com/aidat/dues-engine/store/sqlite"
)

const org = dues.OrgID("org-1")

func newStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedPeriod(t *testing.T, store *sqlite.Store, id dues.PeriodID, status dues.PeriodStatus) {
	t.Helper()
	err := store.SavePeriod(context.Background(), dues.DuesPeriod{
		ID:             id,
		OrganizationID: org,
		Name:           string(id),
		StartDate:      time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
}

func due(id dues.UnitDueID, periodID dues.PeriodID, unitID dues.UnitID, typeID dues.DueTypeID) dues.UnitDue {
	return dues.UnitDue{
		ID:         id,
		PeriodID:   periodID,
		UnitID:     unitID,
		DueTypeID:  typeID,
		Amount:     decimal.NewFromInt(500),
		PaidAmount: decimal.Zero,
		Status:     dues.DuePending,
		CreatedAt:  time.Now().UTC(),
	}
}

// =============================================================================
// PERIOD TRANSITION CAS
// =============================================================================

func TestTransitionPeriod_CompareAndSwap(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodDraft)

	from := []dues.PeriodStatus{dues.PeriodDraft, dues.PeriodFailed}

	won, err := store.TransitionPeriod(ctx, "p-1", from, dues.PeriodProcessing)
	require.NoError(t, err)
	assert.True(t, won, "first caller should win the transition")

	won, err = store.TransitionPeriod(ctx, "p-1", from, dues.PeriodProcessing)
	require.NoError(t, err)
	assert.False(t, won, "second caller must lose: status already moved")

	p, err := store.GetPeriod(ctx, org, "p-1")
	require.NoError(t, err)
	assert.Equal(t, dues.PeriodProcessing, p.Status)
}

func TestClosePeriod_GuardedOnActive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodDraft)

	ok, err := store.ClosePeriod(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok, "draft must not close")

	seedPeriod(t, store, "p-2", dues.PeriodActive)
	ok, err = store.ClosePeriod(ctx, "p-2")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := store.GetPeriod(ctx, org, "p-2")
	require.NoError(t, err)
	assert.Equal(t, dues.PeriodClosed, p.Status)
	assert.NotNil(t, p.ClosedAt)
}

// =============================================================================
// BATCH INSERT + UNIQUE TRIPLE INDEX
// =============================================================================

func TestInsertUnitDuesAndActivate_AtomicWithActivation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodProcessing)

	batch := []dues.UnitDue{
		due("d-1", "p-1", "u-1", "t-1"),
		due("d-2", "p-1", "u-2", "t-1"),
	}
	require.NoError(t, store.InsertUnitDuesAndActivate(ctx, "p-1", batch))

	count, err := store.CountUnitDues(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	p, err := store.GetPeriod(ctx, org, "p-1")
	require.NoError(t, err)
	assert.Equal(t, dues.PeriodActive, p.Status)
}

func TestInsertUnitDuesAndActivate_DuplicateTripleRollsBack(t *testing.T) {
	// GIVEN: A batch containing the same (period, unit, type) twice
	// WHEN: Inserting
	// THEN: ErrDuplicateUnitDue, zero rows written, period not activated

	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodProcessing)

	batch := []dues.UnitDue{
		due("d-1", "p-1", "u-1", "t-1"),
		due("d-2", "p-1", "u-1", "t-1"),
	}
	err := store.InsertUnitDuesAndActivate(ctx, "p-1", batch)
	assert.ErrorIs(t, err, dues.ErrDuplicateUnitDue)

	count, err := store.CountUnitDues(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "the transaction must roll back entirely")

	p, err := store.GetPeriod(ctx, org, "p-1")
	require.NoError(t, err)
	assert.Equal(t, dues.PeriodProcessing, p.Status)
}

func TestInsertUnitDuesAndActivate_RequiresProcessingStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodActive)

	err := store.InsertUnitDuesAndActivate(ctx, "p-1", []dues.UnitDue{
		due("d-1", "p-1", "u-1", "t-1"),
	})
	assert.ErrorIs(t, err, dues.ErrAlreadyProcessing)

	count, err := store.CountUnitDues(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// PAYMENT VERSIONING + RECEIPTS
// =============================================================================

func seedDue(t *testing.T, store *sqlite.Store) dues.UnitDue {
	t.Helper()
	seedPeriod(t, store, "p-1", dues.PeriodProcessing)
	d := due("d-1", "p-1", "u-1", "t-1")
	require.NoError(t, store.InsertUnitDuesAndActivate(context.Background(), "p-1", []dues.UnitDue{d}))
	return d
}

func payment(id dues.PaymentID, dueID dues.UnitDueID, amount int64) dues.Payment {
	return dues.Payment{
		ID:        id,
		UnitDueID: dueID,
		Amount:    decimal.NewFromInt(amount),
		PaidAt:    time.Now().UTC(),
		Method:    dues.MethodCash,
		CreatedAt: time.Now().UTC(),
	}
}

func TestApplyPayment_VersionGuard(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	d := seedDue(t, store)

	// First writer applies at version 0.
	updated := d
	updated.PaidAmount = decimal.NewFromInt(200)
	updated.Status = dues.DuePartial
	receipt, err := store.ApplyPayment(ctx, org, updated, payment("pay-1", d.ID, 200))
	require.NoError(t, err)
	assert.Equal(t, "RCP-000001", receipt)

	// Second writer still holding version 0 must be rejected.
	stale := d
	stale.PaidAmount = decimal.NewFromInt(300)
	stale.Status = dues.DuePartial
	_, err = store.ApplyPayment(ctx, org, stale, payment("pay-2", d.ID, 300))
	assert.ErrorIs(t, err, dues.ErrConcurrentModification)

	// Rejection leaves no orphan payment behind.
	payments, err := store.ListPayments(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	loaded, err := store.GetUnitDue(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.True(t, decimal.NewFromInt(200).Equal(loaded.PaidAmount))
}

func TestReceiptNumbers_MonotonicPerOrganization(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	d := seedDue(t, store)

	for i, want := range []string{"RCP-000001", "RCP-000002", "RCP-000003"} {
		loaded, err := store.GetUnitDue(ctx, d.ID)
		require.NoError(t, err)
		current := *loaded
		current.PaidAmount = current.PaidAmount.Add(decimal.NewFromInt(10))
		current.Status = dues.DuePartial

		receipt, err := store.ApplyPayment(ctx, org, current,
			payment(dues.PaymentID("pay-"+want), d.ID, 10))
		require.NoError(t, err)
		assert.Equal(t, want, receipt, "payment %d", i+1)
	}
}

func TestCancelDue_VoidsPayments(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	d := seedDue(t, store)

	updated := d
	updated.PaidAmount = decimal.NewFromInt(200)
	updated.Status = dues.DuePartial
	_, err := store.ApplyPayment(ctx, org, updated, payment("pay-1", d.ID, 200))
	require.NoError(t, err)

	loaded, err := store.GetUnitDue(ctx, d.ID)
	require.NoError(t, err)
	require.NoError(t, store.CancelDue(ctx, *loaded))

	loaded, err = store.GetUnitDue(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, dues.DueCancelled, loaded.Status)

	payments, err := store.ListPayments(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Voided)

	// Stale version is rejected here too.
	err = store.CancelDue(ctx, d)
	assert.ErrorIs(t, err, dues.ErrConcurrentModification)
}

// =============================================================================
// LISTING
// =============================================================================

func TestListUnitDues_FilterAndPagination(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedPeriod(t, store, "p-1", dues.PeriodProcessing)

	var batch []dues.UnitDue
	for i := 0; i < 5; i++ {
		n := strconv.Itoa(i)
		batch = append(batch, due(dues.UnitDueID("d-"+n), "p-1", dues.UnitID("u-"+n), "t-1"))
	}
	require.NoError(t, store.InsertUnitDuesAndActivate(ctx, "p-1", batch))

	page1, total, err := store.ListUnitDues(ctx, "p-1", dues.DueFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page1, 2)

	page3, _, err := store.ListUnitDues(ctx, "p-1", dues.DueFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	pending, total, err := store.ListUnitDues(ctx, "p-1", dues.DueFilter{Status: dues.DuePending})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, pending, 5)

	paid, total, err := store.ListUnitDues(ctx, "p-1", dues.DueFilter{Status: dues.DuePaid})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, paid)
}
