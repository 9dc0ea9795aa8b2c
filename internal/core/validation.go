package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field names used in ValidationError.Field.
const (
	FieldType         = "type"
	FieldName         = "name"
	FieldCreditor     = "creditor"
	FieldPrincipal    = "principalAmount"
	FieldCurrency     = "currency"
	FieldInterestRate = "interestRate"
	FieldMarginRate   = "marginRate"
	FieldStartDate    = "startDate"
	FieldMaturityDate = "maturityDate"
	FieldIsActive     = "isActive"
	FieldMetadata     = "metadata"
	FieldAmount       = "amount"
	FieldInterest     = "interestAmount"
	FieldPaymentDate  = "paymentDate"
)

const (
	maxTextLength = 255
	maxTermYears  = 50
)

var (
	minStartDate = NewDate(1900, 1, 1)
	minRate      = decimal.RequireFromString("0.001")
	maxRate      = decimal.RequireFromString("0.5")
	// Amounts at or above this many major units cannot be represented in int64 cents.
	principalHardLimit = decimal.New(1, 16)
)

// currencyDigits maps each supported ISO 4217 code to the maximum number of
// integer digits a principal may have in major units.
var currencyDigits = map[string]int{
	"IDR": 15,
	"VND": 15,
	"KRW": 14,
	"JPY": 13,
	"USD": 12,
	"EUR": 12,
	"GBP": 12,
	"CHF": 12,
	"AUD": 12,
	"SGD": 12,
	"MYR": 12,
	"SAR": 12,
	"AED": 12,
}

// IsSupportedCurrency reports whether code is accepted for new debts.
func IsSupportedCurrency(code string) bool {
	_, ok := currencyDigits[code]
	return ok
}

type (
	CreateDebtInput struct {
		Type            DebtType
		Name            string
		Creditor        string
		PrincipalAmount decimal.Decimal
		Currency        string
		InterestRate    *decimal.Decimal
		MarginRate      *decimal.Decimal
		StartDate       Date
		MaturityDate    *Date
		IsActive        *bool // defaults to true
		Metadata        Metadata
	}

	// DebtPatch holds the fields to change; nil means unchanged. Type,
	// PrincipalAmount and Currency are accepted only when equal to the stored value.
	DebtPatch struct {
		Type              *DebtType
		PrincipalAmount   *decimal.Decimal
		Currency          *string
		Name              *string
		Creditor          *string
		InterestRate      *decimal.Decimal
		MarginRate        *decimal.Decimal
		StartDate         *Date
		MaturityDate      *Date
		ClearMaturityDate bool
		IsActive          *bool
		Metadata          Metadata // merged into existing metadata
	}

	// DebtDraft is the normalized result of validation.
	DebtDraft struct {
		Type           DebtType
		Name           string
		Creditor       string
		PrincipalCents int64
		Currency       string
		InterestRate   *decimal.Decimal
		MarginRate     *decimal.Decimal
		StartDate      Date
		MaturityDate   *Date
		IsActive       bool
		Metadata       Metadata
		Terms          Terms
	}
)

// debtRule is one step of the validation pipeline. It runs when any field in
// deps changed and fails when ok returns false.
type debtRule struct {
	field   string
	rule    string
	deps    []string
	ok      func(d *DebtDraft) bool
	message func(d *DebtDraft) string
}

func fixed(msg string) func(*DebtDraft) string {
	return func(*DebtDraft) string { return msg }
}

var debtRules = []debtRule{
	{
		field: FieldCurrency, rule: "supported", deps: []string{FieldCurrency},
		ok:      func(d *DebtDraft) bool { return IsSupportedCurrency(d.Currency) },
		message: func(d *DebtDraft) string { return fmt.Sprintf("currency %q is not supported", d.Currency) },
	},
	{
		field: FieldPrincipal, rule: "positive", deps: []string{FieldPrincipal},
		ok:      func(d *DebtDraft) bool { return d.PrincipalCents > 0 },
		message: fixed("principal must be greater than zero"),
	},
	{
		field: FieldPrincipal, rule: "max_digits", deps: []string{FieldPrincipal, FieldCurrency},
		ok: func(d *DebtDraft) bool {
			digits := currencyDigits[d.Currency]
			return d.PrincipalCents/100 < pow10(digits)
		},
		message: func(d *DebtDraft) string {
			return fmt.Sprintf("principal exceeds %d integer digits for %s", currencyDigits[d.Currency], d.Currency)
		},
	},
	{
		field: FieldName, rule: "length", deps: []string{FieldName},
		ok:      func(d *DebtDraft) bool { return lengthWithin(d.Name) },
		message: fixed("name must be between 1 and 255 characters"),
	},
	{
		field: FieldCreditor, rule: "length", deps: []string{FieldCreditor},
		ok:      func(d *DebtDraft) bool { return lengthWithin(d.Creditor) },
		message: fixed("creditor must be between 1 and 255 characters"),
	},
	{
		field: FieldStartDate, rule: "required", deps: []string{FieldStartDate},
		ok:      func(d *DebtDraft) bool { return !d.StartDate.IsZero() },
		message: fixed("start date is required"),
	},
	{
		field: FieldStartDate, rule: "min_date", deps: []string{FieldStartDate},
		ok:      func(d *DebtDraft) bool { return !d.StartDate.IsBefore(minStartDate) },
		message: fixed("start date must be on or after 1900-01-01"),
	},
	{
		field: FieldMaturityDate, rule: "after_start", deps: []string{FieldStartDate, FieldMaturityDate},
		ok:      func(d *DebtDraft) bool { return d.MaturityDate == nil || d.MaturityDate.IsAfter(d.StartDate) },
		message: fixed("maturity date must be after start date"),
	},
	{
		field: FieldMaturityDate, rule: "max_term", deps: []string{FieldStartDate, FieldMaturityDate},
		ok: func(d *DebtDraft) bool {
			if d.MaturityDate == nil {
				return true
			}
			limit := Date{Time: d.StartDate.AddDate(maxTermYears, 0, 0)}
			return !d.MaturityDate.IsAfter(limit)
		},
		message: fixed("term cannot exceed 50 years"),
	},
	{
		field: FieldType, rule: "supported", deps: []string{FieldType},
		ok:      func(d *DebtDraft) bool { return d.Type.IsValid() },
		message: func(d *DebtDraft) string { return fmt.Sprintf("debt type %q is not supported", d.Type) },
	},
	{
		field: FieldInterestRate, rule: "forbidden", deps: []string{FieldType, FieldInterestRate},
		ok:      func(d *DebtDraft) bool { return d.Type == DebtConventional || d.InterestRate == nil },
		message: func(d *DebtDraft) string { return fmt.Sprintf("interest rate is not allowed for %s debts", d.Type) },
	},
	{
		field: FieldInterestRate, rule: "required", deps: []string{FieldType, FieldInterestRate},
		ok:      func(d *DebtDraft) bool { return d.Type != DebtConventional || d.InterestRate != nil },
		message: fixed("interest rate is required for CONVENTIONAL debts"),
	},
	{
		field: FieldInterestRate, rule: "range", deps: []string{FieldType, FieldInterestRate},
		ok:      func(d *DebtDraft) bool { return d.InterestRate == nil || rateInRange(*d.InterestRate) },
		message: fixed("interest rate must be between 0.001 and 0.5"),
	},
	{
		field: FieldMarginRate, rule: "forbidden", deps: []string{FieldType, FieldMarginRate},
		ok:      func(d *DebtDraft) bool { return d.Type == DebtIslamic || d.MarginRate == nil },
		message: func(d *DebtDraft) string { return fmt.Sprintf("margin rate is not allowed for %s debts", d.Type) },
	},
	{
		field: FieldMarginRate, rule: "required", deps: []string{FieldType, FieldMarginRate},
		ok:      func(d *DebtDraft) bool { return d.Type != DebtIslamic || d.MarginRate != nil },
		message: fixed("margin rate is required for ISLAMIC debts"),
	},
	{
		field: FieldMarginRate, rule: "range", deps: []string{FieldType, FieldMarginRate},
		ok:      func(d *DebtDraft) bool { return d.MarginRate == nil || rateInRange(*d.MarginRate) },
		message: fixed("margin rate must be between 0.001 and 0.5"),
	},
}

// ValidateForCreate normalizes a new debt and runs every rule.
func ValidateForCreate(in CreateDebtInput) (DebtDraft, error) {
	if in.Metadata.HasReservedKey() {
		return DebtDraft{}, reservedMetadataError()
	}
	cents, verr := principalCents(in.PrincipalAmount)
	if verr != nil {
		return DebtDraft{}, verr
	}

	d := DebtDraft{
		Type:           in.Type,
		Name:           strings.TrimSpace(in.Name),
		Creditor:       strings.TrimSpace(in.Creditor),
		PrincipalCents: cents,
		Currency:       normalizeCurrency(in.Currency),
		InterestRate:   in.InterestRate,
		MarginRate:     in.MarginRate,
		StartDate:      in.StartDate,
		MaturityDate:   in.MaturityDate,
		IsActive:       in.IsActive == nil || *in.IsActive,
		Metadata:       in.Metadata.Clone(),
	}

	if err := runRules(&d, nil); err != nil {
		return DebtDraft{}, err
	}
	return finishDraft(d)
}

// ValidateForUpdate merges p into existing and runs the rules whose fields changed.
func ValidateForUpdate(existing Debt, p DebtPatch) (DebtDraft, error) {
	if p.Type != nil && *p.Type != existing.Type() {
		return DebtDraft{}, immutableError(FieldType)
	}
	if p.PrincipalAmount != nil && CentsFromDecimal(*p.PrincipalAmount) != existing.PrincipalCents {
		return DebtDraft{}, immutableError(FieldPrincipal)
	}
	if p.Currency != nil && normalizeCurrency(*p.Currency) != existing.Currency {
		return DebtDraft{}, immutableError(FieldCurrency)
	}
	if p.Metadata.HasReservedKey() {
		return DebtDraft{}, reservedMetadataError()
	}

	d := DebtDraft{
		Type:           existing.Type(),
		Name:           existing.Name,
		Creditor:       existing.Creditor,
		PrincipalCents: existing.PrincipalCents,
		Currency:       existing.Currency,
		InterestRate:   existing.InterestRate(),
		MarginRate:     existing.MarginRate(),
		StartDate:      existing.StartDate,
		MaturityDate:   existing.MaturityDate,
		IsActive:       existing.IsActive,
		Metadata:       existing.Metadata.Clone(),
	}
	changed := map[string]bool{}

	if p.Name != nil {
		d.Name = strings.TrimSpace(*p.Name)
		changed[FieldName] = true
	}
	if p.Creditor != nil {
		d.Creditor = strings.TrimSpace(*p.Creditor)
		changed[FieldCreditor] = true
	}
	if p.InterestRate != nil {
		d.InterestRate = p.InterestRate
		changed[FieldInterestRate] = true
	}
	if p.MarginRate != nil {
		d.MarginRate = p.MarginRate
		changed[FieldMarginRate] = true
	}
	if p.StartDate != nil {
		d.StartDate = *p.StartDate
		changed[FieldStartDate] = true
	}
	if p.ClearMaturityDate {
		d.MaturityDate = nil
		changed[FieldMaturityDate] = true
	} else if p.MaturityDate != nil {
		m := *p.MaturityDate
		d.MaturityDate = &m
		changed[FieldMaturityDate] = true
	}
	if p.IsActive != nil {
		d.IsActive = *p.IsActive
		changed[FieldIsActive] = true
	}
	if len(p.Metadata) > 0 {
		d.Metadata = d.Metadata.Merge(p.Metadata)
		changed[FieldMetadata] = true
	}

	if err := runRules(&d, changed); err != nil {
		return DebtDraft{}, err
	}
	return finishDraft(d)
}

// runRules evaluates the pipeline in order. A nil changed set runs every rule.
func runRules(d *DebtDraft, changed map[string]bool) error {
	for _, r := range debtRules {
		if changed != nil && !anyChanged(r.deps, changed) {
			continue
		}
		if !r.ok(d) {
			return &ValidationError{Field: r.field, Rule: r.rule, Message: r.message(d)}
		}
	}
	return nil
}

func finishDraft(d DebtDraft) (DebtDraft, error) {
	terms, err := NewTerms(d.Type, d.InterestRate, d.MarginRate)
	if err != nil {
		return DebtDraft{}, &ValidationError{Field: FieldType, Rule: "terms", Message: err.Error()}
	}
	d.Terms = terms
	if d.Metadata == nil {
		d.Metadata = Metadata{}
	}
	return d, nil
}

// principalCents rounds the principal to cents, rejecting magnitudes that
// would overflow before any currency bound is checked.
func principalCents(amount decimal.Decimal) (int64, error) {
	if amount.Abs().GreaterThanOrEqual(principalHardLimit) {
		return 0, &ValidationError{Field: FieldPrincipal, Rule: "max_digits", Message: "principal is too large"}
	}
	return CentsFromDecimal(amount), nil
}

func anyChanged(deps []string, changed map[string]bool) bool {
	for _, f := range deps {
		if changed[f] {
			return true
		}
	}
	return false
}

func lengthWithin(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 1 && n <= maxTextLength
}

func rateInRange(r decimal.Decimal) bool {
	return r.GreaterThanOrEqual(minRate) && r.LessThanOrEqual(maxRate)
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

func immutableError(field string) error {
	return &ValidationError{Field: field, Rule: "immutable", Message: field + " cannot be changed after creation"}
}

func reservedMetadataError() error {
	return &ValidationError{
		Field:   FieldMetadata,
		Rule:    "reserved_key",
		Message: fmt.Sprintf("metadata key %q is reserved", MetadataPaidOffDate),
	}
}
