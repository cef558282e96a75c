/*
period.go - Period Lifecycle Manager

PURPOSE:
  Owns the DuesPeriod state machine:

      draft ──────────────┐
        │ (confirm)       │ (edit/delete while empty)
        ▼                 │
      processing ──► active ──► closed
        │                 ▲
        ▼                 │
      failed ─────────────┘ (retry re-enters processing)

  The draft/failed → processing transition is performed by the accrual
  engine through the store's compare-and-swap; this file covers creation,
  edits, deletion and closing.

RULES:
  - dueDate never precedes startDate
  - name/date edits only while draft
  - deletion only while draft with zero UnitDue rows
  - closing only from active; sets closedAt; closed is terminal

SEE ALSO:
  - accrual.go: the only writer of the processing/active/failed statuses
*/
package dues

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Periods manages billing period lifecycle for an organization.
type Periods struct {
	store Store
	now   func() time.Time
}

// NewPeriods creates a period manager backed by the given store.
func NewPeriods(store Store) *Periods {
	return &Periods{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CreatePeriodInput carries the writable fields of a period.
type CreatePeriodInput struct {
	Name      string
	StartDate time.Time
	DueDate   time.Time
	CreatedBy string
}

func (in *CreatePeriodInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return validationf("name", "name is required")
	}
	if in.StartDate.IsZero() || in.DueDate.IsZero() {
		return validationf("dates", "startDate and dueDate are required")
	}
	if in.DueDate.Before(in.StartDate) {
		return validationf("dueDate", "dueDate must not precede startDate")
	}
	return nil
}

// Create validates and persists a new draft period.
func (pm *Periods) Create(ctx context.Context, org OrgID, in CreatePeriodInput) (*DuesPeriod, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := DuesPeriod{
		ID:             PeriodID(uuid.NewString()),
		OrganizationID: org,
		Name:           strings.TrimSpace(in.Name),
		StartDate:      in.StartDate,
		DueDate:        in.DueDate,
		Status:         PeriodDraft,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      pm.now(),
	}
	if err := pm.store.SavePeriod(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update edits name/dates. Permitted only while draft.
func (pm *Periods) Update(ctx context.Context, org OrgID, id PeriodID, in CreatePeriodInput) (*DuesPeriod, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := pm.mustGet(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if p.Status != PeriodDraft {
		return nil, conflictf(string(p.Status), "only draft periods can be edited")
	}

	p.Name = strings.TrimSpace(in.Name)
	p.StartDate = in.StartDate
	p.DueDate = in.DueDate
	if err := pm.store.SavePeriod(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a period. Permitted only while draft with zero UnitDue rows.
func (pm *Periods) Delete(ctx context.Context, org OrgID, id PeriodID) error {
	p, err := pm.mustGet(ctx, org, id)
	if err != nil {
		return err
	}
	if p.Status != PeriodDraft {
		return conflictf(string(p.Status), "only draft periods can be deleted")
	}

	count, err := pm.store.CountUnitDues(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflictf(string(p.Status), "period has %d unit dues", count)
	}

	return pm.store.DeletePeriod(ctx, org, id)
}

// Close transitions active → closed, freezing further UnitDue creation and
// cancellation. Payments already recorded remain queryable.
func (pm *Periods) Close(ctx context.Context, org OrgID, id PeriodID) (*DuesPeriod, error) {
	p, err := pm.mustGet(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if p.Status != PeriodActive {
		return nil, conflictf(string(p.Status), "only active periods can be closed")
	}

	ok, err := pm.store.ClosePeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// another caller changed the status between the read and the close
		return nil, conflictf(string(p.Status), "period is no longer active")
	}

	return pm.mustGet(ctx, org, id)
}

// Get returns one period or ErrNotFound.
func (pm *Periods) Get(ctx context.Context, org OrgID, id PeriodID) (*DuesPeriod, error) {
	return pm.mustGet(ctx, org, id)
}

// List returns the organization's periods, newest first.
func (pm *Periods) List(ctx context.Context, org OrgID) ([]DuesPeriod, error) {
	return pm.store.ListPeriods(ctx, org)
}

func (pm *Periods) mustGet(ctx context.Context, org OrgID, id PeriodID) (*DuesPeriod, error) {
	p, err := pm.store.GetPeriod(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}
