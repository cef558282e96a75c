/*
catalog.go - Due Type Catalog

PURPOSE:
  Create, update, deactivate and (rarely) delete organization-scoped billing
  categories. Leaf component: nothing here touches periods or dues except
  the reference check on delete.

INVARIANTS:
  - DefaultAmount and every CategoryAmounts value are never negative
  - CategoryAmounts keys come from the closed category vocabulary
  - Deactivation is soft and always permitted; historical UnitDue rows
    referencing an inactive type stay valid
  - Hard delete is rejected with a conflict while any UnitDue references
    the type

SEE ALSO:
  - types.go: DueType, UnitCategory
  - accrual.go: snapshots amounts from the catalog at accrual time
*/
package dues

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Catalog manages due types for an organization.
type Catalog struct {
	store CatalogStore
	now   func() time.Time
}

// NewCatalog creates a catalog backed by the given store.
func NewCatalog(store CatalogStore) *Catalog {
	return &Catalog{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CreateDueTypeInput carries the writable fields of a due type.
type CreateDueTypeInput struct {
	Name            string
	Description     string
	DefaultAmount   decimal.Decimal
	CategoryAmounts map[UnitCategory]decimal.Decimal
}

func (in *CreateDueTypeInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return validationf("name", "name is required")
	}
	if in.DefaultAmount.IsNegative() {
		return validationf("defaultAmount", "amount must not be negative")
	}
	for cat, amount := range in.CategoryAmounts {
		if !ValidCategory(cat) {
			return validationf("categoryAmounts", "unknown category %q", cat)
		}
		if amount.IsNegative() {
			return validationf("categoryAmounts", "amount for %q must not be negative", cat)
		}
	}
	return nil
}

// Create validates and persists a new due type.
func (c *Catalog) Create(ctx context.Context, org OrgID, in CreateDueTypeInput) (*DueType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := c.now()
	dt := DueType{
		ID:              DueTypeID(uuid.NewString()),
		OrganizationID:  org,
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		DefaultAmount:   in.DefaultAmount,
		CategoryAmounts: in.CategoryAmounts,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.SaveDueType(ctx, dt); err != nil {
		return nil, err
	}
	return &dt, nil
}

// Update validates and saves edits to an existing due type. Amount edits never
// touch UnitDue rows already materialized from the old amounts.
func (c *Catalog) Update(ctx context.Context, org OrgID, id DueTypeID, in CreateDueTypeInput) (*DueType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	dt, err := c.store.GetDueType(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if dt == nil {
		return nil, ErrNotFound
	}

	dt.Name = strings.TrimSpace(in.Name)
	dt.Description = strings.TrimSpace(in.Description)
	dt.DefaultAmount = in.DefaultAmount
	dt.CategoryAmounts = in.CategoryAmounts
	dt.UpdatedAt = c.now()

	if err := c.store.SaveDueType(ctx, *dt); err != nil {
		return nil, err
	}
	return dt, nil
}

// Deactivate soft-disables a due type. Always permitted, non-destructive.
func (c *Catalog) Deactivate(ctx context.Context, org OrgID, id DueTypeID) error {
	dt, err := c.store.GetDueType(ctx, org, id)
	if err != nil {
		return err
	}
	if dt == nil {
		return ErrNotFound
	}
	if !dt.IsActive {
		return nil // already inactive, idempotent
	}

	dt.IsActive = false
	dt.UpdatedAt = c.now()
	return c.store.SaveDueType(ctx, *dt)
}

// Delete hard-deletes a due type. Rejected with a conflict while any UnitDue
// references it; deactivate instead.
func (c *Catalog) Delete(ctx context.Context, org OrgID, id DueTypeID) error {
	dt, err := c.store.GetDueType(ctx, org, id)
	if err != nil {
		return err
	}
	if dt == nil {
		return ErrNotFound
	}

	refs, err := c.store.CountDuesForType(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return conflictf("", "due type is referenced by %d unit dues; deactivate it instead", refs)
	}

	return c.store.DeleteDueType(ctx, org, id)
}

// List returns the organization's due types, optionally active only.
func (c *Catalog) List(ctx context.Context, org OrgID, activeOnly bool) ([]DueType, error) {
	return c.store.ListDueTypes(ctx, org, activeOnly)
}

// Get returns one due type or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, org OrgID, id DueTypeID) (*DueType, error) {
	dt, err := c.store.GetDueType(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if dt == nil {
		return nil, ErrNotFound
	}
	return dt, nil
}
