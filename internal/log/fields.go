package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldError          = "error"
	FieldErrorKind      = "error_kind"
	FieldOperation      = "operation"
	FieldDuration       = "duration_ms"
	FieldDebtID         = "debt_id"
	FieldHouseholdID    = "household_id"
	FieldDebtType       = "debt_type"
	FieldPaymentID      = "payment_id"
	FieldPaymentDate    = "payment_date"
	FieldAmountCents    = "amount_cents"
	FieldPrincipalCents = "principal_cents"
	FieldInterestCents  = "interest_cents"
	FieldBalanceCents   = "balance_cents"
	FieldCount          = "count"
	FieldSheet          = "sheet"
	FieldQueue          = "queue"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentDebts    = "debts"
	ComponentPayments = "payments"
	ComponentSummary  = "summary"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpPay      = "pay"
	OpSchedule = "schedule"
	OpSummary  = "summary"
	OpExport   = "export"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error and its kind when err is non-nil.
func (f LogFields) WithError(err error, kind string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		if kind != "" {
			f[FieldErrorKind] = kind
		}
	}
	return f
}

func (f LogFields) WithDebt(debtID, householdID, debtType string) LogFields {
	f[FieldDebtID] = debtID
	f[FieldHouseholdID] = householdID
	if debtType != "" {
		f[FieldDebtType] = debtType
	}
	return f
}

// WithPayment adds the payment id and its cent components.
func (f LogFields) WithPayment(paymentID string, amountCents, principalCents, interestCents int64) LogFields {
	f[FieldPaymentID] = paymentID
	f[FieldAmountCents] = amountCents
	f[FieldPrincipalCents] = principalCents
	f[FieldInterestCents] = interestCents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
