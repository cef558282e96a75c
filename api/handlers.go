/*
handlers.go - HTTP API handlers for the dues engine

PURPOSE:
  Exposes the dues engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Due types:
    GET    /api/organizations/{orgID}/due-types                 List due types
    POST   /api/organizations/{orgID}/due-types                 Create due type
    PUT    /api/organizations/{orgID}/due-types/{id}            Update due type
    PATCH  /api/organizations/{orgID}/due-types/{id}/deactivate Deactivate
    DELETE /api/organizations/{orgID}/due-types/{id}            Delete (unreferenced only)

  Periods:
    GET    /api/organizations/{orgID}/dues-periods              List periods
    POST   /api/organizations/{orgID}/dues-periods              Create draft period
    GET    /api/organizations/{orgID}/dues-periods/{periodID}   Get one period
    PUT    /api/organizations/{orgID}/dues-periods/{periodID}   Update draft period
    DELETE /api/organizations/{orgID}/dues-periods/{periodID}   Delete empty draft
    POST   /api/organizations/{orgID}/dues-periods/{periodID}/accrue  Preview/confirm accrual
    POST   /api/organizations/{orgID}/dues-periods/{periodID}/close   Close active period
    GET    /api/organizations/{orgID}/dues-periods/{periodID}/unit-dues  Paginated dues listing

  Unit dues & payments:
    DELETE /api/organizations/{orgID}/dues-periods/{periodID}/unit-dues/{dueID}  Cancel
    POST   /api/organizations/{orgID}/unit-dues/{dueID}/payments  Record payment
    GET    /api/organizations/{orgID}/unit-dues/{dueID}/payments  Payment history

  Resident views:
    GET    /api/organizations/{orgID}/my-dues?unitId=
    GET    /api/organizations/{orgID}/my-payments?unitId=&page=&pageSize=

  Settings & roster:
    GET/PUT  /api/organizations/{orgID}/settings
    GET/POST /api/organizations/{orgID}/units

AUTHORIZATION:
  The caller's role arrives resolved in the X-User-Role header (admin,
  board_member, resident); resolving identity is out of scope here. Admin
  only: catalog writes, period lifecycle, accrual, cancellation. Admin or
  board member: recording payments. Missing header means resident.

ERROR HANDLING:
  Domain errors map onto HTTP statuses in writeDomainError:
  - 400: Validation errors, invalid input
  - 403: Role not permitted
  - 404: Resource not found
  - 409: Conflict (state machine, concurrency, duplicates)
  - 500: Internal errors
  Needs-confirmation outcomes are NOT errors: they return 409 with
  needsConfirmation=true so the client re-issues with the confirm flag.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - dues/: The domain logic behind every endpoint
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aidat/dues-engine/dues"
	"github.com/aidat/dues-engine/store/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

const (
	roleHeader      = "X-User-Role"
	defaultPageSize = 20
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Catalog *dues.Catalog
	Periods *dues.Periods
	Accrual *dues.Accrual
	Ledger  *dues.Ledger
	Metrics *Metrics
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:   store,
		Catalog: dues.NewCatalog(store),
		Periods: dues.NewPeriods(store),
		Accrual: dues.NewAccrual(store),
		Ledger:  dues.NewLedger(store),
		Metrics: NewMetrics(),
	}
}

func callerRole(r *http.Request) dues.Role {
	switch role := dues.Role(r.Header.Get(roleHeader)); role {
	case dues.RoleAdmin, dues.RoleBoardMember:
		return role
	default:
		return dues.RoleResident
	}
}

func orgID(r *http.Request) dues.OrgID {
	return dues.OrgID(chi.URLParam(r, "orgID"))
}

// =============================================================================
// DUE TYPE HANDLERS
// =============================================================================

// ListDueTypes returns the organization's due types.
// GET /api/organizations/{orgID}/due-types?active=true
func (h *Handler) ListDueTypes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	types, err := h.Catalog.List(r.Context(), orgID(r), activeOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DueTypeDTO, len(types))
	for i, dt := range types {
		dtos[i] = toDueTypeDTO(dt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDueType creates a due type.
// POST /api/organizations/{orgID}/due-types
func (h *Handler) CreateDueType(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	in, err := decodeDueTypeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dt, err := h.Catalog.Create(r.Context(), orgID(r), *in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDueTypeDTO(*dt))
}

// UpdateDueType updates a due type. Existing unit dues keep their
// snapshotted amounts.
// PUT /api/organizations/{orgID}/due-types/{id}
func (h *Handler) UpdateDueType(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	in, err := decodeDueTypeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dt, err := h.Catalog.Update(r.Context(), orgID(r), dues.DueTypeID(chi.URLParam(r, "id")), *in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDueTypeDTO(*dt))
}

// DeactivateDueType soft-deactivates a due type; idempotent.
// PATCH /api/organizations/{orgID}/due-types/{id}/deactivate
func (h *Handler) DeactivateDueType(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	if err := h.Catalog.Deactivate(r.Context(), orgID(r), dues.DueTypeID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDueType hard-deletes an unreferenced due type.
// DELETE /api/organizations/{orgID}/due-types/{id}
func (h *Handler) DeleteDueType(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	if err := h.Catalog.Delete(r.Context(), orgID(r), dues.DueTypeID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeDueTypeInput(r *http.Request) (*dues.CreateDueTypeInput, error) {
	var req SaveDueTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}

	defaultAmount, err := parseAmount(req.DefaultAmount)
	if err != nil {
		return nil, err
	}

	in := dues.CreateDueTypeInput{
		Name:          req.Name,
		Description:   req.Description,
		DefaultAmount: defaultAmount,
	}
	if len(req.CategoryAmounts) > 0 {
		in.CategoryAmounts = make(map[dues.UnitCategory]decimal.Decimal, len(req.CategoryAmounts))
		for cat, raw := range req.CategoryAmounts {
			amount, err := parseAmount(raw)
			if err != nil {
				return nil, err
			}
			in.CategoryAmounts[dues.UnitCategory(cat)] = amount
		}
	}
	return &in, nil
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListPeriods returns the organization's periods, newest first.
// GET /api/organizations/{orgID}/dues-periods
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Periods.List(r.Context(), orgID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod creates a draft period.
// POST /api/organizations/{orgID}/dues-periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	in, err := decodePeriodInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Periods.Create(r.Context(), orgID(r), *in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(*p))
}

// GetPeriod returns one period. Clients poll this while status=processing.
// GET /api/organizations/{orgID}/dues-periods/{periodID}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Periods.Get(r.Context(), orgID(r), dues.PeriodID(chi.URLParam(r, "periodID")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// UpdatePeriod updates a draft period.
// PUT /api/organizations/{orgID}/dues-periods/{periodID}
func (h *Handler) UpdatePeriod(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	in, err := decodePeriodInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Periods.Update(r.Context(), orgID(r), dues.PeriodID(chi.URLParam(r, "periodID")), *in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// DeletePeriod deletes an empty draft period.
// DELETE /api/organizations/{orgID}/dues-periods/{periodID}
func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	if err := h.Periods.Delete(r.Context(), orgID(r), dues.PeriodID(chi.URLParam(r, "periodID"))); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccruePeriod runs the two-phase accrual. Without confirmed=true it prices
// and returns a preview; with it, it generates the unit dues.
// POST /api/organizations/{orgID}/dues-periods/{periodID}/accrue
func (h *Handler) AccruePeriod(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	var req AccrueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	typeIDs := make([]dues.DueTypeID, len(req.DueTypeIDs))
	for i, id := range req.DueTypeIDs {
		typeIDs[i] = dues.DueTypeID(id)
	}

	result, err := h.Accrual.Accrue(r.Context(), orgID(r), dues.PeriodID(chi.URLParam(r, "periodID")), dues.AccrualRequest{
		DueTypeIDs:        typeIDs,
		IncludeEmptyUnits: req.IncludeEmptyUnits,
		Confirmed:         req.Confirmed,
	})
	if err != nil {
		// Only runs that won the status CAS count as failed; validation
		// and conflict rejections never started one.
		if errors.Is(err, dues.ErrTransient) {
			h.Metrics.AccrualRuns.WithLabelValues("failed").Inc()
		}
		writeDomainError(w, err)
		return
	}

	if !req.Confirmed {
		writeJSON(w, http.StatusOK, toPreviewDTO(result.Preview))
		return
	}

	h.Metrics.AccrualRuns.WithLabelValues("succeeded").Inc()
	h.Metrics.DuesCreated.Add(float64(result.CreatedDues))
	writeJSON(w, http.StatusOK, AccrualResultDTO{
		Preview:      toPreviewDTO(result.Preview),
		CreatedDues:  result.CreatedDues,
		PeriodStatus: string(result.PeriodStatus),
	})
}

// ClosePeriod closes an active period.
// POST /api/organizations/{orgID}/dues-periods/{periodID}/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	p, err := h.Periods.Close(r.Context(), orgID(r), dues.PeriodID(chi.URLParam(r, "periodID")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

func decodePeriodInput(r *http.Request) (*dues.CreatePeriodInput, error) {
	var req SavePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, err
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, err
	}

	return &dues.CreatePeriodInput{
		Name:      req.Name,
		StartDate: startDate,
		DueDate:   dueDate,
	}, nil
}

// =============================================================================
// UNIT DUE HANDLERS
// =============================================================================

// ListUnitDues returns one page of a period's dues, enriched with overdue
// state and a late-fee estimate.
// GET /api/organizations/{orgID}/dues-periods/{periodID}/unit-dues?status=&page=&pageSize=
func (h *Handler) ListUnitDues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := orgID(r)
	periodID := dues.PeriodID(chi.URLParam(r, "periodID"))

	period, err := h.Periods.Get(ctx, org, periodID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, pageSize := pagination(r)
	filter := dues.DueFilter{
		Status:   dues.DueStatus(r.URL.Query().Get("status")),
		UnitID:   dues.UnitID(r.URL.Query().Get("unitId")),
		Page:     page,
		PageSize: pageSize,
	}

	rows, total, err := h.Store.ListUnitDues(ctx, periodID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list unit dues", err)
		return
	}

	settings, err := h.Store.GetSettings(ctx, org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	now := time.Now().UTC()
	items := make([]UnitDueDTO, len(rows))
	for i, row := range rows {
		items[i] = h.toUnitDueDTO(row, period, settings, now)
	}

	writeJSON(w, http.StatusOK, PagedUnitDuesDTO{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// CancelUnitDue cancels one obligation. Dues with recorded money need
// ?confirm=true; the first attempt returns 409 with needsConfirmation=true.
// DELETE /api/organizations/{orgID}/dues-periods/{periodID}/unit-dues/{dueID}?confirm=true
func (h *Handler) CancelUnitDue(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	confirm := r.URL.Query().Get("confirm") == "true"
	outcome, err := h.Ledger.CancelUnitDue(r.Context(), orgID(r), dues.UnitDueID(chi.URLParam(r, "dueID")), confirm)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if outcome.Confirmation != nil {
		writeJSON(w, http.StatusConflict, ConfirmationResponse{
			NeedsConfirmation: true,
			Message:           "This due has recorded payments; confirm to cancel and void them",
			Details: map[string]string{
				"paidAmount":   outcome.Confirmation.PaidAmount.String(),
				"paymentCount": strconv.Itoa(outcome.Confirmation.PaymentCount),
			},
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment against a unit due. Overpayments need
// confirmed=true; the first attempt returns 409 with needsConfirmation=true.
// POST /api/organizations/{orgID}/unit-dues/{dueID}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanCollect() {
		writeError(w, http.StatusForbidden, "Admin or board member role required", nil)
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	in := dues.RecordPaymentInput{
		Amount:      amount,
		Method:      dues.PaymentMethod(req.Method),
		CollectedBy: req.CollectedBy,
		Note:        req.Note,
		Confirmed:   req.Confirmed,
	}
	if req.PaidAt != "" {
		paidAt, err := time.Parse("2006-01-02", req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paidAt date", err)
			return
		}
		in.PaidAt = paidAt
	}

	outcome, err := h.Ledger.RecordPayment(r.Context(), orgID(r), dues.UnitDueID(chi.URLParam(r, "dueID")), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if outcome.Confirmation != nil {
		writeJSON(w, http.StatusConflict, ConfirmationResponse{
			NeedsConfirmation: true,
			Message:           "Amount exceeds the remaining balance; confirm to record the overpayment",
			Details: map[string]string{
				"remainingAmount":   outcome.Confirmation.RemainingAmount.String(),
				"overpaymentAmount": outcome.Confirmation.OverpaymentAmount.String(),
			},
		})
		return
	}

	h.Metrics.PaymentsRecorded.Inc()
	writeJSON(w, http.StatusCreated, toPaymentDTO(*outcome.Payment))
}

// ListPayments returns a due's payment history, voided entries included.
// GET /api/organizations/{orgID}/unit-dues/{dueID}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Ledger.Payments(r.Context(), dues.UnitDueID(chi.URLParam(r, "dueID")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESIDENT VIEW HANDLERS
// =============================================================================

// MyDues returns all dues for one unit across periods, newest first.
// GET /api/organizations/{orgID}/my-dues?unitId=
func (h *Handler) MyDues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := orgID(r)
	unitID := dues.UnitID(r.URL.Query().Get("unitId"))
	if unitID == "" {
		writeError(w, http.StatusBadRequest, "unitId query parameter is required", nil)
		return
	}

	rows, err := h.Store.ListUnitDuesByUnit(ctx, org, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dues", err)
		return
	}

	settings, err := h.Store.GetSettings(ctx, org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	// Rows span periods; resolve each period once.
	periods := map[dues.PeriodID]*dues.DuesPeriod{}
	now := time.Now().UTC()
	items := make([]UnitDueDTO, len(rows))
	for i, row := range rows {
		period, ok := periods[row.PeriodID]
		if !ok {
			period, err = h.Store.GetPeriod(ctx, org, row.PeriodID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to load period", err)
				return
			}
			periods[row.PeriodID] = period
		}
		items[i] = h.toUnitDueDTO(row, period, settings, now)
	}

	writeJSON(w, http.StatusOK, items)
}

// MyPayments returns one page of a unit's payment history, newest first.
// GET /api/organizations/{orgID}/my-payments?unitId=&page=&pageSize=
func (h *Handler) MyPayments(w http.ResponseWriter, r *http.Request) {
	unitID := dues.UnitID(r.URL.Query().Get("unitId"))
	if unitID == "" {
		writeError(w, http.StatusBadRequest, "unitId query parameter is required", nil)
		return
	}

	page, pageSize := pagination(r)
	payments, total, err := h.Store.ListPaymentsByUnit(r.Context(), orgID(r), unitID, page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	items := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		items[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, PagedPaymentsDTO{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the organization's late-fee settings.
// GET /api/organizations/{orgID}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context(), orgID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	if settings == nil {
		writeJSON(w, http.StatusOK, SettingsDTO{LateFeeRate: "0", GraceDays: 0})
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		LateFeeRate: settings.LateFeeRate.String(),
		GraceDays:   settings.GraceDays,
	})
}

// PutSettings saves the organization's late-fee settings.
// PUT /api/organizations/{orgID}/settings
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := parseAmount(req.LateFeeRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lateFeeRate", err)
		return
	}
	if rate.IsNegative() || req.GraceDays < 0 {
		writeError(w, http.StatusBadRequest, "lateFeeRate and graceDays must be non-negative", nil)
		return
	}

	settings := dues.OrgSettings{
		OrganizationID: orgID(r),
		LateFeeRate:    rate,
		GraceDays:      req.GraceDays,
	}
	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// UNIT ROSTER HANDLERS
// =============================================================================

// ListUnits returns the organization's roster.
// GET /api/organizations/{orgID}/units
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Store.ListUnits(r.Context(), orgID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list units", err)
		return
	}

	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ImportUnits upserts roster units. Accepts a JSON array so the whole roster
// can be loaded in one call.
// POST /api/organizations/{orgID}/units
func (h *Handler) ImportUnits(w http.ResponseWriter, r *http.Request) {
	if !callerRole(r).CanManage() {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	var reqs []SaveUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	org := orgID(r)
	for _, req := range reqs {
		if req.UnitNumber == "" {
			writeError(w, http.StatusBadRequest, "unitNumber is required", nil)
			return
		}
		category := dues.UnitCategory(req.Category)
		if category != "" && !dues.ValidCategory(category) {
			writeError(w, http.StatusBadRequest, "Unknown unit category: "+req.Category, nil)
			return
		}
	}

	imported := make([]UnitDTO, len(reqs))
	for i, req := range reqs {
		unit := dues.Unit{
			ID:             dues.UnitID(req.ID),
			OrganizationID: org,
			BlockName:      req.BlockName,
			UnitNumber:     req.UnitNumber,
			Category:       dues.UnitCategory(req.Category),
			ResidentName:   req.ResidentName,
		}
		if unit.ID == "" {
			unit.ID = dues.UnitID(uuid.NewString())
		}
		if err := h.Store.SaveUnit(r.Context(), unit); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save unit", err)
			return
		}
		imported[i] = toUnitDTO(unit)
	}
	writeJSON(w, http.StatusCreated, imported)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toUnitDueDTO(row dues.UnitDueRow, period *dues.DuesPeriod, settings *dues.OrgSettings, now time.Time) UnitDueDTO {
	dto := UnitDueDTO{
		ID:           string(row.ID),
		PeriodID:     string(row.PeriodID),
		UnitID:       string(row.UnitID),
		DueTypeID:    string(row.DueTypeID),
		DueTypeName:  row.DueTypeName,
		BlockName:    row.BlockName,
		UnitNumber:   row.UnitNumber,
		ResidentName: row.ResidentName,
		Amount:       row.Amount.String(),
		PaidAmount:   row.PaidAmount.String(),
		Remaining:    row.Remaining().String(),
		Status:       string(row.Status),
		CreatedAt:    row.CreatedAt.Format(time.RFC3339),
	}
	if period != nil {
		due := row.UnitDue
		dto.IsOverdue = dues.IsOverdue(&due, period, now)
		if dto.IsOverdue && settings != nil {
			fee := dues.EstimateLateFee(&due, period, settings, now, nil)
			if fee.IsPositive() {
				dto.LateFee = fee.String()
			}
		}
	}
	return dto
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses. Keep this the
// single place that knows the mapping.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case dues.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case dues.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case dues.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
