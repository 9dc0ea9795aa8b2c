package core

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxComponentMismatchCents is the rounding slack allowed between a payment's
// amount and the sum of its principal and interest components.
const MaxComponentMismatchCents = 1

type (
	// PaymentInput is a payment as submitted, in major units.
	PaymentInput struct {
		Amount          decimal.Decimal
		PrincipalAmount decimal.Decimal
		InterestAmount  decimal.Decimal
		PaymentDate     Date
		TransactionRef  string
	}

	// PaymentDraft is a PaymentInput normalized to cents.
	PaymentDraft struct {
		AmountCents    int64
		PrincipalCents int64
		InterestCents  int64
		PaymentDate    Date
		TransactionRef string
	}
)

// NormalizePayment rounds the amounts to cents and checks their internal
// consistency. Rules that depend on the debt are left to the caller.
func NormalizePayment(in PaymentInput) (PaymentDraft, error) {
	if in.PaymentDate.IsZero() {
		return PaymentDraft{}, &ValidationError{Field: FieldPaymentDate, Rule: "required", Message: "payment date is required"}
	}
	for _, a := range []struct {
		field string
		v     decimal.Decimal
	}{
		{FieldAmount, in.Amount},
		{FieldPrincipal, in.PrincipalAmount},
		{FieldInterest, in.InterestAmount},
	} {
		if a.v.Abs().GreaterThanOrEqual(principalHardLimit) {
			return PaymentDraft{}, &ValidationError{Field: a.field, Rule: "max_digits", Message: a.field + " is too large"}
		}
	}

	d := PaymentDraft{
		AmountCents:    CentsFromDecimal(in.Amount),
		PrincipalCents: CentsFromDecimal(in.PrincipalAmount),
		InterestCents:  CentsFromDecimal(in.InterestAmount),
		PaymentDate:    in.PaymentDate,
		TransactionRef: strings.TrimSpace(in.TransactionRef),
	}
	switch {
	case d.AmountCents <= 0:
		return PaymentDraft{}, &ValidationError{Field: FieldAmount, Rule: "positive", Message: "amount must be greater than zero"}
	case d.PrincipalCents < 0:
		return PaymentDraft{}, &ValidationError{Field: FieldPrincipal, Rule: "non_negative", Message: "principal component cannot be negative"}
	case d.InterestCents < 0:
		return PaymentDraft{}, &ValidationError{Field: FieldInterest, Rule: "non_negative", Message: "interest component cannot be negative"}
	}
	if diff := d.AmountCents - (d.PrincipalCents + d.InterestCents); diff > MaxComponentMismatchCents || diff < -MaxComponentMismatchCents {
		return PaymentDraft{}, &ValidationError{
			Field:   FieldAmount,
			Rule:    "components_sum",
			Message: "amount must equal principal plus interest within one cent",
		}
	}
	if len(d.TransactionRef) > maxTextLength {
		return PaymentDraft{}, &ValidationError{Field: "transactionRef", Rule: "length", Message: "transaction reference is too long"}
	}
	return d, nil
}

type (
	// DebtFilter narrows a household listing. Zero values match everything.
	DebtFilter struct {
		Type     *DebtType
		IsActive *bool
		Creditor string // case-insensitive substring
		Search   string // case-insensitive substring of name or creditor
	}

	// TypeTotal is the active balance and debt count of one product type.
	TypeTotal struct {
		Type         DebtType `json:"type"`
		TotalBalance Money    `json:"totalBalance"`
		Count        int      `json:"count"`
	}

	UpcomingPayment struct {
		DebtID    uuid.UUID `json:"debtId"`
		Name      string    `json:"name"`
		DueDate   Date      `json:"dueDate"`
		AmountDue Money     `json:"amountDue"`
	}

	UpcomingPayments struct {
		Overdue      []UpcomingPayment `json:"overdue"`
		DueToday     []UpcomingPayment `json:"dueToday"`
		DueThisWeek  []UpcomingPayment `json:"dueThisWeek"`
		DueThisMonth []UpcomingPayment `json:"dueThisMonth"`
	}

	DebtSummary struct {
		HouseholdID      string           `json:"householdId"`
		TotalDebt        Money            `json:"totalDebt"`
		ByType           []TypeTotal      `json:"byType"`
		UpcomingPayments UpcomingPayments `json:"upcomingPayments"`
	}
)

// Matches reports whether d passes the filter. Stores that cannot push the
// filter down use it directly.
func (f DebtFilter) Matches(d Debt) bool {
	if f.Type != nil && d.Type() != *f.Type {
		return false
	}
	if f.IsActive != nil && d.IsActive != *f.IsActive {
		return false
	}
	if f.Creditor != "" && !containsFold(d.Creditor, f.Creditor) {
		return false
	}
	if f.Search != "" && !containsFold(d.Name, f.Search) && !containsFold(d.Creditor, f.Search) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
