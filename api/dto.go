/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts cross the wire as JSON strings ("750.00"), never floats. They are
  parsed with shopspring/decimal on the way in and String()-ed on the way
  out so no precision is lost in transit.

VALIDATION:
  Validation is done in handlers and domain logic, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - dues/types.go: The domain model behind them
*/
package api

import (
	"time"

	"github.com/aidat/dues-engine/dues"
)

// =============================================================================
// DUE TYPE TYPES
// =============================================================================

// DueTypeDTO represents a due type in API responses.
type DueTypeDTO struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	DefaultAmount   string            `json:"defaultAmount"`
	CategoryAmounts map[string]string `json:"categoryAmounts,omitempty"`
	IsActive        bool              `json:"isActive"`
	CreatedAt       string            `json:"createdAt"`
	UpdatedAt       string            `json:"updatedAt"`
}

// SaveDueTypeRequest creates or updates a due type.
type SaveDueTypeRequest struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	DefaultAmount   string            `json:"defaultAmount"`
	CategoryAmounts map[string]string `json:"categoryAmounts"`
}

// =============================================================================
// PERIOD TYPES
// =============================================================================

// PeriodDTO represents a dues period in API responses.
type PeriodDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
	Status    string `json:"status"`
	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt string `json:"createdAt"`
	ClosedAt  string `json:"closedAt,omitempty"`
}

// SavePeriodRequest creates or updates a period.
type SavePeriodRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"` // YYYY-MM-DD
	DueDate   string `json:"dueDate"`   // YYYY-MM-DD
}

// =============================================================================
// ACCRUAL TYPES
// =============================================================================

// AccrueRequest drives both phases of the accrual endpoint. The first call
// goes out with Confirmed=false and returns a preview; the client re-issues
// the identical payload with Confirmed=true to commit.
type AccrueRequest struct {
	DueTypeIDs        []string `json:"dueTypeIds"`
	IncludeEmptyUnits bool     `json:"includeEmptyUnits"`
	Confirmed         bool     `json:"confirmed"`
}

// CategoryLineDTO prices one unit category within a breakdown.
type CategoryLineDTO struct {
	Category  string `json:"category"`
	UnitCount int    `json:"unitCount"`
	Amount    string `json:"amount"`
	Subtotal  string `json:"subtotal"`
}

// DueTypeBreakdownDTO totals one selected due type in the preview.
type DueTypeBreakdownDTO struct {
	DueTypeID     string            `json:"dueTypeId"`
	DueTypeName   string            `json:"dueTypeName"`
	CategoryLines []CategoryLineDTO `json:"categoryLines"`
	Subtotal      string            `json:"subtotal"`
}

// AccrualPreviewDTO is the non-committing pricing breakdown.
type AccrualPreviewDTO struct {
	TotalUnits           int                   `json:"totalUnits"`
	IncludedUnits        int                   `json:"includedUnits"`
	ExcludedEmptyUnits   int                   `json:"excludedEmptyUnits"`
	UnitsWithoutCategory int                   `json:"unitsWithoutCategory"`
	DueTypeBreakdowns    []DueTypeBreakdownDTO `json:"dueTypeBreakdowns"`
	TotalAmount          string                `json:"totalAmount"`
}

// AccrualResultDTO is returned from a confirmed run.
type AccrualResultDTO struct {
	Preview      AccrualPreviewDTO `json:"preview"`
	CreatedDues  int               `json:"createdDues"`
	PeriodStatus string            `json:"periodStatus"`
}

// =============================================================================
// UNIT DUE TYPES
// =============================================================================

// UnitDueDTO represents one obligation in API responses, joined with the
// display fields listings need.
type UnitDueDTO struct {
	ID           string `json:"id"`
	PeriodID     string `json:"periodId"`
	UnitID       string `json:"unitId"`
	DueTypeID    string `json:"dueTypeId"`
	DueTypeName  string `json:"dueTypeName,omitempty"`
	BlockName    string `json:"blockName,omitempty"`
	UnitNumber   string `json:"unitNumber,omitempty"`
	ResidentName string `json:"residentName,omitempty"`
	Amount       string `json:"amount"`
	PaidAmount   string `json:"paidAmount"`
	Remaining    string `json:"remaining"`
	Status       string `json:"status"`
	IsOverdue    bool   `json:"isOverdue"`
	LateFee      string `json:"lateFee,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// PagedUnitDuesDTO is one page of a dues listing.
type PagedUnitDuesDTO struct {
	Items      []UnitDueDTO `json:"items"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO represents a payment event in API responses.
type PaymentDTO struct {
	ID                string `json:"id"`
	UnitDueID         string `json:"unitDueId"`
	ReceiptNumber     string `json:"receiptNumber"`
	Amount            string `json:"amount"`
	PaidAt            string `json:"paidAt"`
	Method            string `json:"paymentMethod"`
	CollectedBy       string `json:"collectedBy,omitempty"`
	Note              string `json:"note,omitempty"`
	IsOverpayment     bool   `json:"isOverpayment"`
	OverpaymentAmount string `json:"overpaymentAmount,omitempty"`
	Voided            bool   `json:"voided"`
	CreatedAt         string `json:"createdAt"`
}

// RecordPaymentRequest submits one payment against a unit due.
type RecordPaymentRequest struct {
	Amount      string `json:"amount"`
	PaidAt      string `json:"paidAt"` // YYYY-MM-DD, optional
	Method      string `json:"paymentMethod"`
	CollectedBy string `json:"collectedBy"`
	Note        string `json:"note"`
	Confirmed   bool   `json:"confirmed"`
}

// PagedPaymentsDTO is one page of a payment history listing.
type PagedPaymentsDTO struct {
	Items      []PaymentDTO `json:"items"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
}

// =============================================================================
// UNIT TYPES
// =============================================================================

// UnitDTO represents a roster unit in API responses.
type UnitDTO struct {
	ID           string `json:"id"`
	BlockName    string `json:"blockName,omitempty"`
	UnitNumber   string `json:"unitNumber"`
	Category     string `json:"category,omitempty"`
	ResidentName string `json:"residentName,omitempty"`
}

// SaveUnitRequest imports or updates one roster unit.
type SaveUnitRequest struct {
	ID           string `json:"id"`
	BlockName    string `json:"blockName"`
	UnitNumber   string `json:"unitNumber"`
	Category     string `json:"category"`
	ResidentName string `json:"residentName"`
}

// =============================================================================
// SETTINGS TYPES
// =============================================================================

// SettingsDTO carries the organization's late-fee configuration.
type SettingsDTO struct {
	LateFeeRate string `json:"lateFeeRate"`
	GraceDays   int    `json:"graceDays"`
}

// =============================================================================
// ERROR / CONFIRMATION TYPES
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConfirmationResponse is the 409 payload for operations that need the
// client to re-issue with confirmed=true. NeedsConfirmation distinguishes
// it from a plain conflict.
type ConfirmationResponse struct {
	NeedsConfirmation bool              `json:"needsConfirmation"`
	Message           string            `json:"message"`
	Details           map[string]string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING HELPERS
// =============================================================================

func toDueTypeDTO(dt dues.DueType) DueTypeDTO {
	dto := DueTypeDTO{
		ID:            string(dt.ID),
		Name:          dt.Name,
		Description:   dt.Description,
		DefaultAmount: dt.DefaultAmount.String(),
		IsActive:      dt.IsActive,
		CreatedAt:     dt.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     dt.UpdatedAt.Format(time.RFC3339),
	}
	if len(dt.CategoryAmounts) > 0 {
		dto.CategoryAmounts = make(map[string]string, len(dt.CategoryAmounts))
		for cat, amount := range dt.CategoryAmounts {
			dto.CategoryAmounts[string(cat)] = amount.String()
		}
	}
	return dto
}

func toPeriodDTO(p dues.DuesPeriod) PeriodDTO {
	dto := PeriodDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		StartDate: p.StartDate.Format("2006-01-02"),
		DueDate:   p.DueDate.Format("2006-01-02"),
		Status:    string(p.Status),
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.ClosedAt != nil {
		dto.ClosedAt = p.ClosedAt.Format(time.RFC3339)
	}
	return dto
}

func toPreviewDTO(p dues.AccrualPreview) AccrualPreviewDTO {
	breakdowns := make([]DueTypeBreakdownDTO, len(p.DueTypeBreakdowns))
	for i, b := range p.DueTypeBreakdowns {
		lines := make([]CategoryLineDTO, len(b.CategoryLines))
		for j, l := range b.CategoryLines {
			lines[j] = CategoryLineDTO{
				Category:  string(l.Category),
				UnitCount: l.UnitCount,
				Amount:    l.Amount.String(),
				Subtotal:  l.Subtotal.String(),
			}
		}
		breakdowns[i] = DueTypeBreakdownDTO{
			DueTypeID:     string(b.DueTypeID),
			DueTypeName:   b.DueTypeName,
			CategoryLines: lines,
			Subtotal:      b.Subtotal.String(),
		}
	}
	return AccrualPreviewDTO{
		TotalUnits:           p.TotalUnits,
		IncludedUnits:        p.IncludedUnits,
		ExcludedEmptyUnits:   p.ExcludedEmptyUnits,
		UnitsWithoutCategory: p.UnitsWithoutCategory,
		DueTypeBreakdowns:    breakdowns,
		TotalAmount:          p.TotalAmount.String(),
	}
}

func toPaymentDTO(p dues.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:            string(p.ID),
		UnitDueID:     string(p.UnitDueID),
		ReceiptNumber: p.ReceiptNumber,
		Amount:        p.Amount.String(),
		PaidAt:        p.PaidAt.Format(time.RFC3339),
		Method:        string(p.Method),
		CollectedBy:   p.CollectedBy,
		Note:          p.Note,
		IsOverpayment: p.IsOverpayment,
		Voided:        p.Voided,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.IsOverpayment {
		dto.OverpaymentAmount = p.OverpaymentAmount.String()
	}
	return dto
}

func toUnitDTO(u dues.Unit) UnitDTO {
	return UnitDTO{
		ID:           string(u.ID),
		BlockName:    u.BlockName,
		UnitNumber:   u.UnitNumber,
		Category:     string(u.Category),
		ResidentName: u.ResidentName,
	}
}
