package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a failure.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindBusinessRule ErrorKind = "business_rule"
	KindCalculation  ErrorKind = "calculation"
	KindStorage      ErrorKind = "storage"
	KindInternal     ErrorKind = "internal"
)

// Business rule violations, wrapped by BusinessRuleError.
var (
	ErrInactiveDebt             = errors.New("cannot pay an inactive debt")
	ErrDuplicatePayment         = errors.New("identical payment already recorded")
	ErrOverdraft                = errors.New("principal exceeds current balance")
	ErrInterestOnPersonal       = errors.New("personal debts cannot carry interest")
	ErrDisproportionateInterest = errors.New("interest component is disproportionate to principal")
)

type (
	// ValidationError names the input field and the rule it failed.
	ValidationError struct {
		Field   string
		Rule    string
		Message string
	}

	NotFoundError struct {
		Resource string
		ID       string
	}

	// ForbiddenError says nothing about the record beyond the denial.
	ForbiddenError struct{}

	BusinessRuleError struct {
		Err     error
		Message string
	}

	CalculationError struct {
		DebtType DebtType
		Err      error
	}

	// StorageError covers contention, timeouts and connectivity. It is
	// always safe to retry the operation that produced it.
	StorageError struct {
		Op  string
		Err error
	}
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%s): %s", e.Field, e.Rule, e.Message)
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *ForbiddenError) Error() string { return "access denied" }

func (e *BusinessRuleError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	return e.Err.Error()
}

func (e *BusinessRuleError) Unwrap() error { return e.Err }

func (e *CalculationError) Error() string {
	return fmt.Sprintf("cannot calculate schedule for debt type %q: %v", e.DebtType, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (*ValidationError) Kind() ErrorKind   { return KindValidation }
func (*NotFoundError) Kind() ErrorKind     { return KindNotFound }
func (*ForbiddenError) Kind() ErrorKind    { return KindForbidden }
func (*BusinessRuleError) Kind() ErrorKind { return KindBusinessRule }
func (*CalculationError) Kind() ErrorKind  { return KindCalculation }
func (*StorageError) Kind() ErrorKind      { return KindStorage }

// NewBusinessRuleError wraps one of the Err* rule sentinels.
func NewBusinessRuleError(rule error, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Err: rule, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsRetryable reports whether err came from the record store and may succeed on retry.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
