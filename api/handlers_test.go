package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidat/dues-engine/api"
	"github.com/aidat/dues-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const basePath = "/api/organizations/org-1"

func newTestServer(t *testing.T) http.Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(store)
	return api.NewRouter(handler, []string{"*"})
}

func do(t *testing.T, router http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func seedRoster(t *testing.T, router http.Handler) {
	t.Helper()
	rec := do(t, router, http.MethodPost, basePath+"/units", "admin", []map[string]any{
		{"id": "u-1", "blockName": "A", "unitNumber": "1", "category": "small", "residentName": "Ali"},
		{"id": "u-2", "blockName": "A", "unitNumber": "2", "category": "large", "residentName": "Ayşe"},
		{"id": "u-3", "blockName": "B", "unitNumber": "1", "residentName": "Mehmet"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func seedDueType(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, basePath+"/due-types", "admin", map[string]any{
		"name":            "Maintenance",
		"defaultAmount":   "500",
		"categoryAmounts": map[string]string{"large": "750"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dto struct {
		ID string `json:"id"`
	}
	decode(t, rec, &dto)
	return dto.ID
}

func seedPeriod(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, basePath+"/dues-periods", "admin", map[string]any{
		"name":      "March 2026",
		"startDate": "2026-03-01",
		"dueDate":   "2026-03-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dto struct {
		ID string `json:"id"`
	}
	decode(t, rec, &dto)
	return dto.ID
}

// accrueOneDue drives the full flow and returns the single created due's ID.
func accrueOneDue(t *testing.T, router http.Handler) (periodID, dueID string) {
	t.Helper()
	seedRoster(t, router)
	typeID := seedDueType(t, router)
	periodID = seedPeriod(t, router)

	rec := do(t, router, http.MethodPost, basePath+"/dues-periods/"+periodID+"/accrue", "admin", map[string]any{
		"dueTypeIds": []string{typeID},
		"confirmed":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, basePath+"/dues-periods/"+periodID+"/unit-dues?unitId=u-1", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	return periodID, page.Items[0].ID
}

// =============================================================================
// ROLE ENFORCEMENT
// =============================================================================

func TestAPI_RoleEnforcement(t *testing.T) {
	router := newTestServer(t)

	// Residents cannot write the catalog, with or without the header.
	rec := do(t, router, http.MethodPost, basePath+"/due-types", "resident", map[string]any{
		"name": "X", "defaultAmount": "1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, basePath+"/due-types", "", map[string]any{
		"name": "X", "defaultAmount": "1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing role header defaults to resident")

	// Board members collect payments but do not manage periods.
	rec = do(t, router, http.MethodPost, basePath+"/dues-periods", "board_member", map[string]any{
		"name": "X", "startDate": "2026-03-01", "dueDate": "2026-03-15",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads are open to any role.
	rec = do(t, router, http.MethodGet, basePath+"/due-types", "resident", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

func TestAPI_DueTypes_Lifecycle(t *testing.T) {
	router := newTestServer(t)
	typeID := seedDueType(t, router)

	rec := do(t, router, http.MethodGet, basePath+"/due-types", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "Maintenance", listed[0]["name"])
	assert.Equal(t, "500", listed[0]["defaultAmount"])

	rec = do(t, router, http.MethodPatch, basePath+"/due-types/"+typeID+"/deactivate", "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, basePath+"/due-types?active=true", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &listed)
	assert.Empty(t, listed)

	// Unknown category keys are rejected.
	rec = do(t, router, http.MethodPost, basePath+"/due-types", "admin", map[string]any{
		"name":            "Broken",
		"defaultAmount":   "100",
		"categoryAmounts": map[string]string{"penthouse": "900"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ACCRUAL FLOW
// =============================================================================

func TestAPI_Accrual_PreviewThenConfirm(t *testing.T) {
	router := newTestServer(t)
	seedRoster(t, router)
	typeID := seedDueType(t, router)
	periodID := seedPeriod(t, router)
	accruePath := basePath + "/dues-periods/" + periodID + "/accrue"

	// Preview: 500 (small) + 750 (large) + 500 (no category) = 1750
	rec := do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{typeID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview struct {
		TotalUnits           int    `json:"totalUnits"`
		IncludedUnits        int    `json:"includedUnits"`
		UnitsWithoutCategory int    `json:"unitsWithoutCategory"`
		TotalAmount          string `json:"totalAmount"`
	}
	decode(t, rec, &preview)
	assert.Equal(t, 3, preview.TotalUnits)
	assert.Equal(t, 3, preview.IncludedUnits)
	assert.Equal(t, 1, preview.UnitsWithoutCategory)
	assert.Equal(t, "1750", preview.TotalAmount)

	// Preview writes nothing; the period still reads draft.
	rec = do(t, router, http.MethodGet, basePath+"/dues-periods/"+periodID, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var period struct {
		Status string `json:"status"`
	}
	decode(t, rec, &period)
	assert.Equal(t, "draft", period.Status)

	// Confirm.
	rec = do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{typeID},
		"confirmed":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		CreatedDues  int    `json:"createdDues"`
		PeriodStatus string `json:"periodStatus"`
	}
	decode(t, rec, &result)
	assert.Equal(t, 3, result.CreatedDues)
	assert.Equal(t, "active", result.PeriodStatus)

	// Second confirm conflicts.
	rec = do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{typeID},
		"confirmed":  true,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Listing pages the created dues.
	rec = do(t, router, http.MethodGet,
		basePath+"/dues-periods/"+periodID+"/unit-dues?page=1&pageSize=2", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []map[string]any `json:"items"`
		TotalCount int              `json:"totalCount"`
	}
	decode(t, rec, &page)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Items, 2)
}

func TestAPI_Accrual_RejectionsDoNotCountAsFailedRuns(t *testing.T) {
	// Only runs that actually entered processing may move the failure
	// counter; validation and conflict rejections never started one.
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	handler := api.NewHandler(store)
	router := api.NewRouter(handler, []string{"*"})

	seedRoster(t, router)
	typeID := seedDueType(t, router)
	periodID := seedPeriod(t, router)
	accruePath := basePath + "/dues-periods/" + periodID + "/accrue"
	failed := handler.Metrics.AccrualRuns.WithLabelValues("failed")

	rec := do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{},
		"confirmed":  true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, testutil.ToFloat64(failed), "an empty selection never started a run")

	rec = do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{typeID},
		"confirmed":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, accruePath, "admin", map[string]any{
		"dueTypeIds": []string{typeID},
		"confirmed":  true,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	assert.Zero(t, testutil.ToFloat64(failed), "a conflict rejection is not a failed run")
	assert.Equal(t, 1.0, testutil.ToFloat64(handler.Metrics.AccrualRuns.WithLabelValues("succeeded")))
}

// =============================================================================
// PAYMENT FLOW
// =============================================================================

func TestAPI_Payment_OverpaymentConfirmFlow(t *testing.T) {
	router := newTestServer(t)
	_, dueID := accrueOneDue(t, router)
	payPath := basePath + "/unit-dues/" + dueID + "/payments"

	// u-1 is a small unit: amount 500. 600 overpays by 100.
	body := map[string]any{"amount": "600", "paymentMethod": "cash", "collectedBy": "admin-1"}
	rec := do(t, router, http.MethodPost, payPath, "board_member", body)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	var confirm struct {
		NeedsConfirmation bool              `json:"needsConfirmation"`
		Details           map[string]string `json:"details"`
	}
	decode(t, rec, &confirm)
	assert.True(t, confirm.NeedsConfirmation)
	assert.Equal(t, "500", confirm.Details["remainingAmount"])
	assert.Equal(t, "100", confirm.Details["overpaymentAmount"])

	// Re-issue with the flag.
	body["confirmed"] = true
	rec = do(t, router, http.MethodPost, payPath, "board_member", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var paid struct {
		ReceiptNumber     string `json:"receiptNumber"`
		IsOverpayment     bool   `json:"isOverpayment"`
		OverpaymentAmount string `json:"overpaymentAmount"`
	}
	decode(t, rec, &paid)
	assert.Equal(t, "RCP-000001", paid.ReceiptNumber)
	assert.True(t, paid.IsOverpayment)
	assert.Equal(t, "100", paid.OverpaymentAmount)

	// Residents cannot record payments.
	rec = do(t, router, http.MethodPost, payPath, "resident", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// History is readable.
	rec = do(t, router, http.MethodGet, payPath, "resident", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	decode(t, rec, &history)
	assert.Len(t, history, 1)
}

func TestAPI_Cancel_ConfirmFlow(t *testing.T) {
	router := newTestServer(t)
	periodID, dueID := accrueOneDue(t, router)
	cancelPath := basePath + "/dues-periods/" + periodID + "/unit-dues/" + dueID

	rec := do(t, router, http.MethodPost, basePath+"/unit-dues/"+dueID+"/payments", "admin",
		map[string]any{"amount": "200", "paymentMethod": "cash"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Money recorded: the first attempt asks for confirmation.
	rec = do(t, router, http.MethodDelete, cancelPath, "admin", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var confirm struct {
		NeedsConfirmation bool `json:"needsConfirmation"`
	}
	decode(t, rec, &confirm)
	assert.True(t, confirm.NeedsConfirmation)

	rec = do(t, router, http.MethodDelete, cancelPath+"?confirm=true", "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// RESIDENT VIEWS
// =============================================================================

func TestAPI_MyDuesAndMyPayments(t *testing.T) {
	router := newTestServer(t)
	_, dueID := accrueOneDue(t, router)

	rec := do(t, router, http.MethodPost, basePath+"/unit-dues/"+dueID+"/payments", "admin",
		map[string]any{"amount": "500", "paymentMethod": "bank_transfer"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, basePath+"/my-dues", "resident", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unitId is required")

	rec = do(t, router, http.MethodGet, basePath+"/my-dues?unitId=u-1", "resident", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var myDues []struct {
		Status    string `json:"status"`
		Remaining string `json:"remaining"`
	}
	decode(t, rec, &myDues)
	require.Len(t, myDues, 1)
	assert.Equal(t, "paid", myDues[0].Status)
	assert.Equal(t, "0", myDues[0].Remaining)

	rec = do(t, router, http.MethodGet, basePath+"/my-payments?unitId=u-1", "resident", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var myPayments struct {
		Items      []map[string]any `json:"items"`
		TotalCount int              `json:"totalCount"`
	}
	decode(t, rec, &myPayments)
	assert.Equal(t, 1, myPayments.TotalCount)
	require.Len(t, myPayments.Items, 1)
	assert.Equal(t, "bank_transfer", myPayments.Items[0]["paymentMethod"])
}

// =============================================================================
// SETTINGS + METRICS
// =============================================================================

func TestAPI_Settings_RoundTrip(t *testing.T) {
	router := newTestServer(t)

	rec := do(t, router, http.MethodGet, basePath+"/settings", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings struct {
		LateFeeRate string `json:"lateFeeRate"`
		GraceDays   int    `json:"graceDays"`
	}
	decode(t, rec, &settings)
	assert.Equal(t, "0", settings.LateFeeRate, "unset settings read as zero")

	rec = do(t, router, http.MethodPut, basePath+"/settings", "admin",
		map[string]any{"lateFeeRate": "0.001", "graceDays": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, basePath+"/settings", "resident", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &settings)
	assert.Equal(t, "0.001", settings.LateFeeRate)
	assert.Equal(t, 5, settings.GraceDays)

	rec = do(t, router, http.MethodPut, basePath+"/settings", "resident",
		map[string]any{"lateFeeRate": "1", "graceDays": 0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPut, basePath+"/settings", "admin",
		map[string]any{"lateFeeRate": "-1", "graceDays": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
