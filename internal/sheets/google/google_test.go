package google

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"debts/internal/core"
	"debts/internal/schedule"
	ports "debts/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Payments", nil)
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "sheet-id", "", nil)
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := New(context.Background(), "sheet-id", "", nil)
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestClient_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test", ledgerBase: "Payments"}
	ctx := context.Background()

	if _, err := c.AppendPayment(ctx, sampleRow()); err == nil {
		t.Error("AppendPayment should fail without a service")
	}
	if _, err := c.ListLedger(ctx, 2024); err == nil {
		t.Error("ListLedger should fail without a service")
	}
	if _, err := c.WriteSchedule(ctx, core.Debt{ID: uuid.New()}, schedule.Schedule{}); err == nil {
		t.Error("WriteSchedule should fail without a service")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Payments", 2025, "2025 Payments"},
		{"Ledger", 2024, "2024 Ledger"},
		{"", 2023, ""},
		{"Debt Ledger", 2022, "2022 Debt Ledger"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func sampleRow() ports.LedgerRow {
	return ports.LedgerRow{
		PaymentID:      uuid.New(),
		DebtID:         uuid.New(),
		DebtName:       "Car loan",
		Creditor:       "Bank",
		PaymentDate:    core.NewDate(2024, 2, 1),
		Amount:         core.Money{Cents: 100001},
		Principal:      core.Money{Cents: 90000},
		Interest:       core.Money{Cents: 10001},
		BalanceAfter:   core.Money{Cents: 125000000},
		Currency:       "USD",
		TransactionRef: "TX-1",
	}
}

func TestLedgerValuesRoundTrip(t *testing.T) {
	row := sampleRow()
	values := [][]any{ledgerHeader, ledgerValues(row), {"", "note without id"}}

	got := parseLedger(values)
	if len(got) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(got))
	}
	if !got[0].PaymentDate.Same(row.PaymentDate) {
		t.Fatalf("payment date = %s, want %s", got[0].PaymentDate, row.PaymentDate)
	}
	got[0].PaymentDate = row.PaymentDate
	if got[0] != row {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got[0], row)
	}
}

func TestToStringsFormatsNumbersPlainly(t *testing.T) {
	got := toStrings([]any{1250000.0, 0.1, " text ", true})
	want := []string{"1250000", "0.1", "text", "true"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseAmountCell(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1000.01", 100001},
		{"12,5", 1250},
		{"0", 0},
		{"", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		if got := parseAmountCell(tt.in); got.Cents != tt.want {
			t.Errorf("parseAmountCell(%q) = %d, want %d", tt.in, got.Cents, tt.want)
		}
	}
}

func TestScheduleValuesLayout(t *testing.T) {
	debt := core.Debt{ID: uuid.New(), Name: "Car loan", Creditor: "Bank"}
	payoff := core.NewDate(2026, 1, 1)
	s := schedule.Schedule{
		Type:     core.DebtConventional,
		Currency: "USD",
		Rows: []schedule.Row{
			{PaymentNumber: 1, DueDate: core.NewDate(2025, 12, 1), Payment: core.Money{Cents: 5100}, Principal: core.Money{Cents: 5000}, Interest: core.Money{Cents: 100}, RemainingBalance: core.Money{Cents: 5000}, IsPaid: true},
			{PaymentNumber: 2, DueDate: payoff, Payment: core.Money{Cents: 5050}, Principal: core.Money{Cents: 5000}, Interest: core.Money{Cents: 50}},
		},
		Summary: schedule.Summary{PayoffDate: &payoff, RemainingPayments: 1},
	}

	values := scheduleValues(debt, s)
	if len(values) != 2+len(s.Rows)+3 {
		t.Fatalf("unexpected row count %d", len(values))
	}
	if values[1][0] != "#" {
		t.Errorf("header row missing: %v", values[1])
	}
	if values[2][1] != "2025-12-01" || values[2][6] != true {
		t.Errorf("unexpected first schedule row %v", values[2])
	}
	last := values[len(values)-1]
	if last[3] != "2026-01-01" {
		t.Errorf("payoff date cell = %v", last[3])
	}
}

func TestScheduleSheetNameIsStable(t *testing.T) {
	id := uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000000")
	got := scheduleSheetName(core.Debt{ID: id, Name: "anything"})
	if got != "Schedule 6f1c2d3e" {
		t.Errorf("scheduleSheetName = %q", got)
	}
	if quoteSheet("O'Brien loan") != "'O''Brien loan'" {
		t.Errorf("quoteSheet did not escape quotes")
	}
}
