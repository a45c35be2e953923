/*
proration.go - Billed amount from an enrollment's contracts

PURPOSE:
  Answers "how much has this student been billed so far?" by counting the
  billable months of every contract and multiplying by its monthly rate.

OPEN vs CLOSED CONTRACTS:
  Open-ended (no end date):
    months = MonthsBetween(start of payment day, end of as-of day) + 1
    The running month is billed in full, even when it has only started.

  Closed (end date present):
    monthDifference = MonthSpan(contract start, contract end)
    paymentEnd      = AddMonths(end of payment day, monthDifference)
    months          = MonthsBetween(start of payment day, paymentEnd)
    No +1: a closed contract bills exactly its declared duration.

EXAMPLE:
  Payment start 2026-01-15, as-of 2026-04-10, 300/month, open:
    MonthsBetween = 2 (Apr 15 has not come yet), +1 => 3 months => 900

NEGATIVE MONTHS:
  A payment start after the as-of date yields a negative month count, and
  the negative billed amount flows through unchanged. Only a contract that
  ends before it starts is rejected.

SEE ALSO:
  - time.go:    MonthsBetween, MonthSpan, AddMonths
  - balance.go: Consumes TotalBilled
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProratedLine is the billing result for one contract.
type ProratedLine struct {
	Number         int             `json:"contract_id"`
	ContractStart  time.Time       `json:"contract_start_date"`
	ContractEnd    *time.Time      `json:"contract_end_date,omitempty"`
	PaymentStart   time.Time       `json:"payment_start_date"`
	PaymentEnd     time.Time       `json:"payment_end_date"`
	MonthsBillable int             `json:"months_billable"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Billed         decimal.Decimal `json:"billed"`
}

// Proration is the billing result for a set of contracts.
type Proration struct {
	Lines       []ProratedLine  `json:"lines"`
	TotalBilled decimal.Decimal `json:"total_billed"`
}

// Prorate computes the amount billable up to asOf. Pass AsOf(reference, now)
// so the reference never runs ahead of today.
func Prorate(contracts []Contract, asOf time.Time) (Proration, error) {
	result := Proration{Lines: []ProratedLine{}, TotalBilled: decimal.Zero}

	for _, c := range SortContracts(contracts) {
		if c.ContractStartDate == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			return Proration{}, err
		}

		line := prorateContract(c, asOf)
		result.Lines = append(result.Lines, line)
		result.TotalBilled = result.TotalBilled.Add(line.Billed)
	}
	return result, nil
}

func prorateContract(c Contract, asOf time.Time) ProratedLine {
	paymentStart := StartOfDay(c.PaymentAnchor())

	var (
		paymentEnd time.Time
		months     int
	)
	if c.IsOpen() {
		paymentEnd = EndOfDay(asOf)
		months = MonthsBetween(paymentStart, paymentEnd) + 1
	} else {
		monthDifference := MonthSpan(StartOfDay(*c.ContractStartDate), EndOfDay(*c.ContractEndDate))
		paymentEnd = AddMonths(EndOfDay(paymentStart), monthDifference)
		months = MonthsBetween(paymentStart, paymentEnd)
	}

	monthly := c.Monthly()
	return ProratedLine{
		Number:         c.Number,
		ContractStart:  *c.ContractStartDate,
		ContractEnd:    c.ContractEndDate,
		PaymentStart:   paymentStart,
		PaymentEnd:     paymentEnd,
		MonthsBillable: months,
		MonthlyPayment: monthly,
		Billed:         monthly.Mul(decimal.NewFromInt(int64(months))),
	}
}
