package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUnknownDebtType = errors.New("unknown debt type")

// Terms is the type-specific part of a debt. It is sealed: the only
// implementations are PersonalTerms, ConventionalTerms and IslamicTerms.
type Terms interface {
	Type() DebtType
	sealedTerms()
}

// PersonalTerms describes an interest-free debt with no fixed cadence.
type PersonalTerms struct{}

// ConventionalTerms describes a declining-balance loan with an annual interest rate.
type ConventionalTerms struct {
	InterestRate decimal.Decimal
}

// IslamicTerms describes a Murabahah financing with a fixed contractual margin rate.
type IslamicTerms struct {
	MarginRate decimal.Decimal
}

func (PersonalTerms) Type() DebtType     { return DebtPersonal }
func (ConventionalTerms) Type() DebtType { return DebtConventional }
func (IslamicTerms) Type() DebtType      { return DebtIslamic }

func (PersonalTerms) sealedTerms()     {}
func (ConventionalTerms) sealedTerms() {}
func (IslamicTerms) sealedTerms()      {}

// NewTerms builds the terms variant for t. The rate that does not belong to
// t must be nil; the one that does must be set.
func NewTerms(t DebtType, interestRate, marginRate *decimal.Decimal) (Terms, error) {
	switch t {
	case DebtPersonal:
		if interestRate != nil || marginRate != nil {
			return nil, fmt.Errorf("personal debt cannot carry a rate")
		}
		return PersonalTerms{}, nil
	case DebtConventional:
		if interestRate == nil || marginRate != nil {
			return nil, fmt.Errorf("conventional debt needs an interest rate and no margin rate")
		}
		return ConventionalTerms{InterestRate: *interestRate}, nil
	case DebtIslamic:
		if marginRate == nil || interestRate != nil {
			return nil, fmt.Errorf("islamic financing needs a margin rate and no interest rate")
		}
		return IslamicTerms{MarginRate: *marginRate}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDebtType, t)
	}
}

// MatchTerms calls the handler matching the variant of t. Every call site
// handles every product type; a nil t yields ErrUnknownDebtType.
func MatchTerms[R any](
	t Terms,
	personal func(PersonalTerms) (R, error),
	conventional func(ConventionalTerms) (R, error),
	islamic func(IslamicTerms) (R, error),
) (R, error) {
	switch v := t.(type) {
	case PersonalTerms:
		return personal(v)
	case ConventionalTerms:
		return conventional(v)
	case IslamicTerms:
		return islamic(v)
	default:
		var zero R
		return zero, fmt.Errorf("%w: %T", ErrUnknownDebtType, t)
	}
}
