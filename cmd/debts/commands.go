package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"debts/internal/core"
)

// amountFlag accepts amounts like 1000.50 or 1000,50.
type amountFlag struct {
	v   decimal.Decimal
	set bool
}

func (f *amountFlag) String() string { return f.v.String() }

func (f *amountFlag) Set(s string) error {
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	f.v, f.set = d, true
	return nil
}

func (f *amountFlag) ptr() *decimal.Decimal {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

type rateFlag struct {
	amountFlag
}

func (f *rateFlag) Set(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	f.v, f.set = d, true
	return nil
}

type dateFlag struct {
	v   core.Date
	set bool
}

func (f *dateFlag) String() string {
	if !f.set {
		return ""
	}
	return f.v.String()
}

func (f *dateFlag) Set(s string) error {
	d, err := core.ParseDate(s)
	if err != nil {
		return err
	}
	f.v, f.set = d, true
	return nil
}

func (f *dateFlag) ptr() *core.Date {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

// boolFlag tells an explicit false apart from an absent flag.
type boolFlag struct {
	v   bool
	set bool
}

func (f *boolFlag) String() string  { return strconv.FormatBool(f.v) }
func (f *boolFlag) IsBoolFlag() bool { return true }

func (f *boolFlag) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	f.v, f.set = b, true
	return nil
}

func (f *boolFlag) ptr() *bool {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

type metadataFlag struct {
	v core.Metadata
}

func (f *metadataFlag) String() string { return "" }

func (f *metadataFlag) Set(s string) error {
	var m core.Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return errors.New("metadata must be a JSON object")
	}
	f.v = m
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return &core.ValidationError{Field: "flags", Rule: "syntax", Message: err.Error()}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: "id", Rule: "format", Message: "id must be a UUID"}
	}
	return id, nil
}

func runCreate(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("create")
	typ := fs.String("type", "", "PERSONAL, CONVENTIONAL or ISLAMIC")
	name := fs.String("name", "", "debt name")
	creditor := fs.String("creditor", "", "creditor name")
	currency := fs.String("currency", "", "ISO 4217 currency code")
	var principal amountFlag
	var rate, margin rateFlag
	var start, maturity dateFlag
	var active boolFlag
	var metadata metadataFlag
	fs.Var(&principal, "principal", "principal amount")
	fs.Var(&rate, "rate", "annual interest rate, e.g. 0.05")
	fs.Var(&margin, "margin", "margin rate for Islamic financing")
	fs.Var(&start, "start", "start date, YYYY-MM-DD")
	fs.Var(&maturity, "maturity", "maturity date, YYYY-MM-DD")
	fs.Var(&active, "active", "whether the debt is active (default true)")
	fs.Var(&metadata, "metadata", "JSON object of extra attributes")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	return s.svc.CreateDebt(ctx, s.householdID, core.CreateDebtInput{
		Type:            core.DebtType(strings.ToUpper(strings.TrimSpace(*typ))),
		Name:            *name,
		Creditor:        *creditor,
		PrincipalAmount: principal.v,
		Currency:        strings.ToUpper(strings.TrimSpace(*currency)),
		InterestRate:    rate.ptr(),
		MarginRate:      margin.ptr(),
		StartDate:       start.v,
		MaturityDate:    maturity.ptr(),
		IsActive:        active.ptr(),
		Metadata:        metadata.v,
	}, s.userID)
}

func runShow(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("show")
	rawID := fs.String("id", "", "debt id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return nil, err
	}
	return s.svc.GetDebtByID(ctx, id, s.householdID)
}

func runList(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("list")
	typ := fs.String("type", "", "only debts of this type")
	creditor := fs.String("creditor", "", "creditor contains")
	search := fs.String("search", "", "name or creditor contains")
	var active boolFlag
	fs.Var(&active, "active", "only active (true) or inactive (false) debts")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	f := core.DebtFilter{IsActive: active.ptr(), Creditor: *creditor, Search: *search}
	if *typ != "" {
		t := core.DebtType(strings.ToUpper(strings.TrimSpace(*typ)))
		f.Type = &t
	}
	debts, err := s.svc.GetDebtsByHousehold(ctx, s.householdID, f)
	if debts == nil {
		debts = []core.Debt{}
	}
	return debts, err
}

func runUpdate(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("update")
	rawID := fs.String("id", "", "debt id")
	clearMaturity := fs.Bool("clear-maturity", false, "remove the maturity date")
	var name, creditor, currency, typ optionalString
	var principal amountFlag
	var rate, margin rateFlag
	var start, maturity dateFlag
	var active boolFlag
	var metadata metadataFlag
	fs.Var(&name, "name", "new name")
	fs.Var(&creditor, "creditor", "new creditor")
	fs.Var(&currency, "currency", "must equal the stored currency")
	fs.Var(&typ, "type", "must equal the stored type")
	fs.Var(&principal, "principal", "must equal the stored principal")
	fs.Var(&rate, "rate", "new interest rate")
	fs.Var(&margin, "margin", "new margin rate")
	fs.Var(&start, "start", "new start date")
	fs.Var(&maturity, "maturity", "new maturity date")
	fs.Var(&active, "active", "activate or deactivate")
	fs.Var(&metadata, "metadata", "JSON object merged into the metadata")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return nil, err
	}

	patch := core.DebtPatch{
		Name:              name.ptr(),
		Creditor:          creditor.ptr(),
		Currency:          currency.upper(),
		PrincipalAmount:   principal.ptr(),
		InterestRate:      rate.ptr(),
		MarginRate:        margin.ptr(),
		StartDate:         start.ptr(),
		MaturityDate:      maturity.ptr(),
		ClearMaturityDate: *clearMaturity,
		IsActive:          active.ptr(),
		Metadata:          metadata.v,
	}
	if t := typ.upper(); t != nil {
		dt := core.DebtType(*t)
		patch.Type = &dt
	}
	return s.svc.UpdateDebt(ctx, id, s.householdID, patch)
}

func runDelete(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("delete")
	rawID := fs.String("id", "", "debt id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteDebt(ctx, id, s.householdID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": id}, nil
}

func runPay(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("pay")
	rawID := fs.String("id", "", "debt id")
	ref := fs.String("ref", "", "transaction reference")
	var amount, principal, interest amountFlag
	var on dateFlag
	fs.Var(&amount, "amount", "total amount paid")
	fs.Var(&principal, "principal", "principal part")
	fs.Var(&interest, "interest", "interest or margin part")
	fs.Var(&on, "date", "payment date, YYYY-MM-DD")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return nil, err
	}
	return s.svc.RecordPayment(ctx, id, s.householdID, core.PaymentInput{
		Amount:          amount.v,
		PrincipalAmount: principal.v,
		InterestAmount:  interest.v,
		PaymentDate:     on.v,
		TransactionRef:  *ref,
	})
}

func runSchedule(ctx context.Context, s session, args []string) (any, error) {
	fs := newFlagSet("schedule")
	rawID := fs.String("id", "", "debt id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseID(*rawID)
	if err != nil {
		return nil, err
	}
	return s.svc.CalculatePaymentSchedule(ctx, id, s.householdID)
}

func runSummary(ctx context.Context, s session, args []string) (any, error) {
	if err := parseFlags(newFlagSet("summary"), args); err != nil {
		return nil, err
	}
	return s.svc.GetDebtSummary(ctx, s.householdID)
}

// optionalString records whether the flag was given at all.
type optionalString struct {
	v   string
	set bool
}

func (f *optionalString) String() string { return f.v }

func (f *optionalString) Set(s string) error {
	f.v, f.set = s, true
	return nil
}

func (f *optionalString) ptr() *string {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

func (f *optionalString) upper() *string {
	if !f.set {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(f.v))
	return &v
}
