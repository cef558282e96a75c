package dues_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidat/dues-engine/dues"
)

func TestCatalog_Create_Valid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dt, err := dues.NewCatalog(store).Create(ctx, testOrg, dues.CreateDueTypeInput{
		Name:          "  Maintenance  ",
		Description:   "Monthly maintenance",
		DefaultAmount: money("500"),
		CategoryAmounts: map[dues.UnitCategory]decimal.Decimal{
			dues.CategoryLarge: money("750"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Maintenance", dt.Name, "name should be trimmed")
	assert.True(t, dt.IsActive)
	assert.True(t, money("750").Equal(dt.AmountFor(dues.CategoryLarge)))
	assert.True(t, money("500").Equal(dt.AmountFor(dues.CategorySmall)), "missing override falls back to default")
	assert.True(t, money("500").Equal(dt.AmountFor("")), "no category falls back to default")

	// Round-trips with the category overrides intact.
	loaded, err := dues.NewCatalog(store).Get(ctx, testOrg, dt.ID)
	require.NoError(t, err)
	assert.True(t, money("750").Equal(loaded.AmountFor(dues.CategoryLarge)))
}

func TestCatalog_Create_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	_, err := catalog.Create(ctx, testOrg, dues.CreateDueTypeInput{
		Name:          "   ",
		DefaultAmount: money("100"),
	})
	assert.True(t, dues.IsValidation(err), "blank name should be rejected")

	_, err = catalog.Create(ctx, testOrg, dues.CreateDueTypeInput{
		Name:          "Maintenance",
		DefaultAmount: money("-1"),
	})
	assert.True(t, dues.IsValidation(err), "negative default should be rejected")

	_, err = catalog.Create(ctx, testOrg, dues.CreateDueTypeInput{
		Name:          "Maintenance",
		DefaultAmount: money("100"),
		CategoryAmounts: map[dues.UnitCategory]decimal.Decimal{
			"penthouse": money("900"),
		},
	})
	assert.True(t, dues.IsValidation(err), "unknown category key should be rejected")

	_, err = catalog.Create(ctx, testOrg, dues.CreateDueTypeInput{
		Name:          "Maintenance",
		DefaultAmount: money("100"),
		CategoryAmounts: map[dues.UnitCategory]decimal.Decimal{
			dues.CategorySmall: money("-5"),
		},
	})
	assert.True(t, dues.IsValidation(err), "negative override should be rejected")
}

func TestCatalog_Deactivate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	dt := createDueType(t, store, "Maintenance", "500", nil)

	require.NoError(t, catalog.Deactivate(ctx, testOrg, dt.ID))
	require.NoError(t, catalog.Deactivate(ctx, testOrg, dt.ID), "repeat deactivation is a no-op")

	loaded, err := catalog.Get(ctx, testOrg, dt.ID)
	require.NoError(t, err)
	assert.False(t, loaded.IsActive)

	err = catalog.Deactivate(ctx, testOrg, "no-such-type")
	assert.True(t, dues.IsNotFound(err))
}

func TestCatalog_List_ActiveFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	createDueType(t, store, "Maintenance", "500", nil)
	old := createDueType(t, store, "Old Fund", "100", nil)
	require.NoError(t, catalog.Deactivate(ctx, testOrg, old.ID))

	all, err := catalog.List(ctx, testOrg, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := catalog.List(ctx, testOrg, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Maintenance", active[0].Name)
}

func TestCatalog_Delete_UnreferencedOnly(t *testing.T) {
	// GIVEN: One referenced and one unreferenced due type
	// WHEN: Deleting each
	// THEN: The unreferenced one goes; the referenced one conflicts

	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	unused := createDueType(t, store, "Unused", "100", nil)
	used := createDueType(t, store, "Maintenance", "500", nil)
	period := createPeriod(t, store, "March 2026")
	saveUnit(t, store, "u-1", dues.CategorySmall, "Ali")

	_, err := dues.NewAccrual(store).Accrue(ctx, testOrg, period.ID, dues.AccrualRequest{
		DueTypeIDs: []dues.DueTypeID{used.ID},
		Confirmed:  true,
	})
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, testOrg, unused.ID))
	_, err = catalog.Get(ctx, testOrg, unused.ID)
	assert.True(t, dues.IsNotFound(err))

	err = catalog.Delete(ctx, testOrg, used.ID)
	assert.True(t, dues.IsConflict(err), "referenced type must not be deletable")
}

func TestCatalog_Update_DoesNotTouchHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	dt := createDueType(t, store, "Maintenance", "500", nil)

	updated, err := catalog.Update(ctx, testOrg, dt.ID, dues.CreateDueTypeInput{
		Name:          "Maintenance 2026",
		DefaultAmount: money("550"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Maintenance 2026", updated.Name)
	assert.True(t, money("550").Equal(updated.DefaultAmount))
	assert.Equal(t, dt.ID, updated.ID)

	_, err = catalog.Update(ctx, testOrg, "no-such-type", dues.CreateDueTypeInput{
		Name:          "X",
		DefaultAmount: money("1"),
	})
	assert.True(t, dues.IsNotFound(err))
}

func TestCatalog_OrgScoping(t *testing.T) {
	// Types belong to one organization; another org cannot see them.
	store := newTestStore(t)
	ctx := context.Background()
	catalog := dues.NewCatalog(store)

	dt := createDueType(t, store, "Maintenance", "500", nil)

	_, err := catalog.Get(ctx, "org-2", dt.ID)
	assert.True(t, dues.IsNotFound(err))

	other, err := catalog.List(ctx, "org-2", false)
	require.NoError(t, err)
	assert.Empty(t, other)
}
