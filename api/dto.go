/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Responses mostly reuse
  the service result types (tuition.Fee, payroll.TeacherSalary, ...); this
  file holds request bodies and the few response wrappers of the API itself.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  Handler.decode before any service is called. Dates are parsed afterwards
  with billing.ParseDate (YYYY-MM-DD or RFC3339).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PaidDTO is one entry of an enrollment's paids.
type PaidDTO struct {
	Payment        *decimal.Decimal `json:"payment"`
	PaymentDate    string           `json:"payment_date"`
	Confirmed      bool             `json:"confirmed"`
	Discount       *decimal.Decimal `json:"discount"`
	DiscountReason string           `json:"discount_reason" validate:"max=200"`
}

// UpdatePaidsRequest replaces the paids of one enrollment.
type UpdatePaidsRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	GroupID   string    `json:"group_id" validate:"required"`
	Paids     []PaidDTO `json:"paids" validate:"max=500,dive"`
}

// AddSalaryRequest records a salary payment for the month of Date.
type AddSalaryRequest struct {
	TeacherID string          `json:"teacher_id" validate:"required"`
	Paid      decimal.Decimal `json:"paid"`
	Date      string          `json:"date" validate:"required"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AmountDTO is a single money total, fixed to 2 decimals.
type AmountDTO struct {
	Total string `json:"total"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func amountDTO(d decimal.Decimal) AmountDTO {
	return AmountDTO{Total: d.StringFixed(2)}
}

func (p PaidDTO) toRecord() (billing.PaymentRecord, error) {
	rec := billing.PaymentRecord{
		Confirmed:      p.Confirmed,
		DiscountReason: p.DiscountReason,
	}
	if p.Payment != nil {
		if p.Payment.IsNegative() {
			return rec, &billing.InputError{Param: "payment", Reason: "must not be negative"}
		}
		rec.Payment = decimal.NewNullDecimal(*p.Payment)
	}
	if p.Discount != nil {
		rec.Discount = decimal.NewNullDecimal(*p.Discount)
	}
	if p.PaymentDate != "" {
		t, err := billing.ParseDate(p.PaymentDate)
		if err != nil {
			return rec, &billing.InputError{Param: "payment_date", Reason: err.Error()}
		}
		rec.PaymentDate = &t
	}
	return rec, nil
}
