/*
balance.go - Outstanding balance and current payment

PURPOSE:
  Compares what a student was billed (proration.go) with what they have
  actually paid. Only confirmed payment records count.

BALANCE COMPONENTS:
  TotalConfirmedPaid: Σ payment over confirmed paids
  Balance:            billed − TotalConfirmedPaid (positive = owes money)
  CurrentPayment:     max(0, TotalConfirmedPaid − billed), the credit signal
                      staff see as "current payment"

EXAMPLE:
  Billed 900, confirmed 400, unconfirmed 300:
    TotalConfirmedPaid = 400, Balance = 500, CurrentPayment = 0

SEE ALSO:
  - proration.go: Produces the billed amount
  - schedule.go:  Report-level sums over many enrollments
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the payment position of one enrollment.
type Balance struct {
	TotalConfirmedPaid decimal.Decimal `json:"total_confirmed_paid"`
	Balance            decimal.Decimal `json:"balance"`
	CurrentPayment     decimal.Decimal `json:"current_payment"`
}

// Late reports whether the student owes money.
func (b Balance) Late() bool { return b.Balance.IsPositive() }

// ConfirmedTotal sums confirmed payments.
func ConfirmedTotal(paids []PaymentRecord) decimal.Decimal {
	total := decimal.Zero
	for _, p := range paids {
		if p.Confirmed {
			total = total.Add(p.Amount())
		}
	}
	return total
}

// CalculateBalance compares confirmed payments with the billed amount.
func CalculateBalance(paids []PaymentRecord, billed decimal.Decimal) Balance {
	paid := ConfirmedTotal(paids)
	return Balance{
		TotalConfirmedPaid: paid,
		Balance:            billed.Sub(paid),
		CurrentPayment:     maxDecimal(decimal.Zero, paid.Sub(billed)),
	}
}

// =============================================================================
// TUITION LINE - Proration and balance for one enrollment
// =============================================================================

// TuitionLine is what the tuition fee list shows per enrollment.
type TuitionLine struct {
	Enrollment      Enrollment `json:"enrollment"`
	Contracts       []Contract `json:"contracts"`
	CurrentContract *Contract  `json:"current_contract,omitempty"`
	Proration       Proration  `json:"proration"`
	Balance
}

// TuitionFor bills one enrollment as of asOf.
func TuitionFor(e Enrollment, asOf time.Time) (TuitionLine, error) {
	sorted := SortContracts(e.Contracts)
	p, err := Prorate(sorted, asOf)
	if err != nil {
		return TuitionLine{}, err
	}

	line := TuitionLine{
		Enrollment: e,
		Contracts:  sorted,
		Proration:  p,
		Balance:    CalculateBalance(e.Paids, p.TotalBilled),
	}
	if len(sorted) > 0 {
		current := sorted[len(sorted)-1]
		line.CurrentContract = &current
	}
	return line, nil
}
