package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidat/dues-engine/dues"
)

func TestPeriods_Create_Draft(t *testing.T) {
	store := newTestStore(t)

	p := createPeriod(t, store, "March 2026")
	assert.Equal(t, dues.PeriodDraft, p.Status)
	assert.Nil(t, p.ClosedAt)
}

func TestPeriods_Create_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	periods := dues.NewPeriods(store)

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	_, err := periods.Create(ctx, testOrg, dues.CreatePeriodInput{
		Name:      "",
		StartDate: start,
		DueDate:   start,
	})
	assert.True(t, dues.IsValidation(err), "blank name should be rejected")

	_, err = periods.Create(ctx, testOrg, dues.CreatePeriodInput{
		Name:      "March 2026",
		StartDate: start,
		DueDate:   start.AddDate(0, 0, -1),
	})
	assert.True(t, dues.IsValidation(err), "dueDate before startDate should be rejected")

	// Same-day start and due is allowed.
	_, err = periods.Create(ctx, testOrg, dues.CreatePeriodInput{
		Name:      "One Day",
		StartDate: start,
		DueDate:   start,
	})
	assert.NoError(t, err)
}

func TestPeriods_Update_DraftOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	periods := dues.NewPeriods(store)

	p := createPeriod(t, store, "March 2026")
	in := dues.CreatePeriodInput{
		Name:      "March 2026 (revised)",
		StartDate: p.StartDate,
		DueDate:   p.DueDate.AddDate(0, 0, 5),
	}

	updated, err := periods.Update(ctx, testOrg, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "March 2026 (revised)", updated.Name)

	// Move it out of draft, then try again.
	won, err := store.TransitionPeriod(ctx, p.ID,
		[]dues.PeriodStatus{dues.PeriodDraft}, dues.PeriodActive)
	require.NoError(t, err)
	require.True(t, won)

	_, err = periods.Update(ctx, testOrg, p.ID, in)
	assert.True(t, dues.IsConflict(err), "non-draft periods must not be editable")
}

func TestPeriods_Delete_EmptyDraftOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	periods := dues.NewPeriods(store)

	empty := createPeriod(t, store, "Empty Draft")
	require.NoError(t, periods.Delete(ctx, testOrg, empty.ID))
	_, err := periods.Get(ctx, testOrg, empty.ID)
	assert.True(t, dues.IsNotFound(err))

	// A period with materialized dues cannot be deleted even if forced back
	// to draft.
	dt := createDueType(t, store, "Maintenance", "500", nil)
	accrued := createPeriod(t, store, "Accrued")
	saveUnit(t, store, "u-1", dues.CategorySmall, "Ali")
	_, err = dues.NewAccrual(store).Accrue(ctx, testOrg, accrued.ID, dues.AccrualRequest{
		DueTypeIDs: []dues.DueTypeID{dt.ID},
		Confirmed:  true,
	})
	require.NoError(t, err)

	err = periods.Delete(ctx, testOrg, accrued.ID)
	assert.True(t, dues.IsConflict(err), "active period must not be deletable")

	won, err := store.TransitionPeriod(ctx, accrued.ID,
		[]dues.PeriodStatus{dues.PeriodActive}, dues.PeriodDraft)
	require.NoError(t, err)
	require.True(t, won)

	err = periods.Delete(ctx, testOrg, accrued.ID)
	assert.True(t, dues.IsConflict(err), "draft with rows must not be deletable")
}

func TestPeriods_Close_ActiveOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	periods := dues.NewPeriods(store)

	p := createPeriod(t, store, "March 2026")

	_, err := periods.Close(ctx, testOrg, p.ID)
	assert.True(t, dues.IsConflict(err), "draft period must not close")

	won, err := store.TransitionPeriod(ctx, p.ID,
		[]dues.PeriodStatus{dues.PeriodDraft}, dues.PeriodActive)
	require.NoError(t, err)
	require.True(t, won)

	closed, err := periods.Close(ctx, testOrg, p.ID)
	require.NoError(t, err)
	assert.Equal(t, dues.PeriodClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = periods.Close(ctx, testOrg, p.ID)
	assert.True(t, dues.IsConflict(err), "closing twice must conflict")
}

func TestPeriods_List_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Distinct createdAt values via explicit saves.
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"January", "February", "March"} {
		err := store.SavePeriod(ctx, dues.DuesPeriod{
			ID:             dues.PeriodID(name),
			OrganizationID: testOrg,
			Name:           name,
			StartDate:      base.AddDate(0, i, 0),
			DueDate:        base.AddDate(0, i, 14),
			Status:         dues.PeriodDraft,
			CreatedAt:      base.AddDate(0, i, 0),
		})
		require.NoError(t, err)
	}

	listed, err := dues.NewPeriods(store).List(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "March", listed[0].Name)
	assert.Equal(t, "January", listed[2].Name)
}
