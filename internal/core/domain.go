package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DebtPersonal     DebtType = "PERSONAL"
	DebtConventional DebtType = "CONVENTIONAL"
	DebtIslamic      DebtType = "ISLAMIC"
)

const dateLayout = "2006-01-02"

type (
	DebtType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Debt struct {
		ID             uuid.UUID
		HouseholdID    string
		Name           string
		Creditor       string
		PrincipalCents int64 // immutable after creation
		BalanceCents   int64 // changed only by the payment processor
		Currency       string
		Terms          Terms
		StartDate      Date
		MaturityDate   *Date
		IsActive       bool
		Metadata       Metadata
		CreatedBy      string
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Payment struct {
		ID             uuid.UUID
		DebtID         uuid.UUID
		AmountCents    int64
		PrincipalCents int64
		InterestCents  int64 // interest, or margin for Islamic financing
		PaymentDate    Date
		Currency       string
		TransactionRef string
		CreatedAt      time.Time
	}

	// DebtWithPayments is a debt together with its full payment history,
	// oldest payment first.
	DebtWithPayments struct {
		Debt     Debt      `json:"debt"`
		Payments []Payment `json:"payments"`
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// AllDebtTypes lists the supported product types in display order.
func AllDebtTypes() []DebtType {
	return []DebtType{DebtPersonal, DebtConventional, DebtIslamic}
}

// IsValid reports whether t is one of the supported product types.
func (t DebtType) IsValid() bool {
	switch t {
	case DebtPersonal, DebtConventional, DebtIslamic:
		return true
	default:
		return false
	}
}

// ParseDebtType accepts any casing of a supported type name.
func ParseDebtType(s string) (DebtType, error) {
	t := DebtType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDebtType, s)
	}
	return t, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	// Check basic ranges
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of t, keeping its calendar date in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (for backward compatibility with optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) IsBefore(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) IsAfter(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Same(o Date) bool     { return d.Time.Equal(o.Time) }

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths moves the date by n calendar months. The day is clamped to the
// last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Time.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// DaysUntil returns the number of calendar days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Type returns the product type carried by the debt's terms.
func (d Debt) Type() DebtType {
	if d.Terms == nil {
		return ""
	}
	return d.Terms.Type()
}

// InterestRate is set only for conventional debts.
func (d Debt) InterestRate() *decimal.Decimal {
	if t, ok := d.Terms.(ConventionalTerms); ok {
		r := t.InterestRate
		return &r
	}
	return nil
}

// MarginRate is set only for Islamic financing.
func (d Debt) MarginRate() *decimal.Decimal {
	if t, ok := d.Terms.(IslamicTerms); ok {
		r := t.MarginRate
		return &r
	}
	return nil
}

// IsPaidOff reports whether the debt's balance has been fully repaid.
func (d Debt) IsPaidOff() bool {
	return d.BalanceCents == 0
}

// debtJSON is the wire shape of a Debt; amounts are decimals in major units.
type debtJSON struct {
	ID              uuid.UUID        `json:"id"`
	HouseholdID     string           `json:"householdId"`
	Type            DebtType         `json:"type"`
	Name            string           `json:"name"`
	Creditor        string           `json:"creditor"`
	PrincipalAmount Money            `json:"principalAmount"`
	CurrentBalance  Money            `json:"currentBalance"`
	Currency        string           `json:"currency"`
	InterestRate    *decimal.Decimal `json:"interestRate"`
	MarginRate      *decimal.Decimal `json:"marginRate"`
	StartDate       Date             `json:"startDate"`
	MaturityDate    *Date            `json:"maturityDate"`
	IsActive        bool             `json:"isActive"`
	Metadata        Metadata         `json:"metadata"`
	CreatedBy       string           `json:"createdBy,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (d Debt) MarshalJSON() ([]byte, error) {
	md := d.Metadata
	if md == nil {
		md = Metadata{}
	}
	return json.Marshal(debtJSON{
		ID:              d.ID,
		HouseholdID:     d.HouseholdID,
		Type:            d.Type(),
		Name:            d.Name,
		Creditor:        d.Creditor,
		PrincipalAmount: Money{Cents: d.PrincipalCents},
		CurrentBalance:  Money{Cents: d.BalanceCents},
		Currency:        d.Currency,
		InterestRate:    d.InterestRate(),
		MarginRate:      d.MarginRate(),
		StartDate:       d.StartDate,
		MaturityDate:    d.MaturityDate,
		IsActive:        d.IsActive,
		Metadata:        md,
		CreatedBy:       d.CreatedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	})
}

type paymentJSON struct {
	ID              uuid.UUID `json:"id"`
	DebtID          uuid.UUID `json:"debtId"`
	Amount          Money     `json:"amount"`
	PrincipalAmount Money     `json:"principalAmount"`
	InterestAmount  Money     `json:"interestAmount"`
	PaymentDate     Date      `json:"paymentDate"`
	Currency        string    `json:"currency"`
	TransactionRef  string    `json:"transactionRef,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (p Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentJSON{
		ID:              p.ID,
		DebtID:          p.DebtID,
		Amount:          Money{Cents: p.AmountCents},
		PrincipalAmount: Money{Cents: p.PrincipalCents},
		InterestAmount:  Money{Cents: p.InterestCents},
		PaymentDate:     p.PaymentDate,
		Currency:        p.Currency,
		TransactionRef:  p.TransactionRef,
		CreatedAt:       p.CreatedAt,
	})
}
