package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"debts/internal/core"
	"debts/internal/log"
	"debts/internal/schedule"
	ports "debts/internal/sheets"
)

const defaultLedgerBase = "Payments"

// ledgerHeader is the first row of every ledger tab. Columns are fixed.
var ledgerHeader = []any{
	"Date", "Debt", "Creditor", "Amount", "Principal", "Interest",
	"Balance after", "Currency", "Transaction ref", "Payment ID", "Debt ID",
}

var scheduleHeader = []any{
	"#", "Due date", "Payment", "Principal", "Interest", "Remaining balance", "Paid", "Overdue",
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// ledgerBase is the tab name without year; payments land in "<year> <base>".
	ledgerBase string
	logger     *log.Logger

	mu    sync.Mutex
	known map[string]bool // tab titles known to exist
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with service account credentials
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, ledgerBase string, logger *log.Logger) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(ledgerBase) == "" {
		ledgerBase = defaultLedgerBase
	}
	if logger == nil {
		logger = log.Discard()
	}

	creds, err := serviceAccountCredentials(ctx, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerBase:    strings.TrimSpace(ledgerBase),
		logger:        logger.WithComponent(log.ComponentSheets),
		known:         map[string]bool{},
	}, nil
}

func serviceAccountCredentials(ctx context.Context, logger *log.Logger) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendPayment adds the payment to the ledger tab of its payment year.
func (c *Client) AppendPayment(ctx context.Context, row ports.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.PaymentID == uuid.Nil {
		return "", errors.New("ledger row without payment id")
	}

	tab := yearPrefixedName(c.ledgerBase, row.PaymentDate.Year())
	if err := c.ensureSheet(ctx, tab, ledgerHeader); err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: [][]any{ledgerValues(row)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:K", quoteSheet(tab)), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append payment to %s: %w", tab, err)
	}

	ref := tab
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Appended payment to ledger",
		log.FieldPaymentID, row.PaymentID.String(),
		log.FieldSheet, ref)
	return ref, nil
}

// ListLedger reads back the ledger tab of year. A missing tab is an empty ledger.
func (c *Client) ListLedger(ctx context.Context, year int) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	tab := yearPrefixedName(c.ledgerBase, year)
	exists, err := c.sheetExists(ctx, tab)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rng := fmt.Sprintf("%s!A:K", quoteSheet(tab))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedger(resp.Values), nil
}

// WriteSchedule clears the debt's schedule tab and writes the current schedule.
func (c *Client) WriteSchedule(ctx context.Context, debt core.Debt, s schedule.Schedule) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab := scheduleSheetName(debt)
	if err := c.ensureSheet(ctx, tab, nil); err != nil {
		return "", err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, fmt.Sprintf("%s!A:H", quoteSheet(tab)), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: scheduleValues(debt, s)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", quoteSheet(tab)), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write schedule to %s: %w", tab, err)
	}

	c.logger.InfoContext(ctx, "Wrote payment schedule",
		log.FieldDebtID, debt.ID.String(),
		log.FieldSheet, tab,
		log.FieldCount, len(s.Rows))
	return tab, nil
}

// ensureSheet creates the tab when missing and writes header into it.
func (c *Client) ensureSheet(ctx context.Context, title string, header []any) error {
	exists, err := c.sheetExists(ctx, title)
	if err != nil || exists {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	if header != nil {
		vr := &gsheet.ValueRange{Values: [][]any{header}}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", quoteSheet(title)), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header to %s: %w", title, err)
		}
	}

	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Created sheet", log.FieldSheet, title)
	return nil
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	ok := c.known[title]
	c.mu.Unlock()
	if ok {
		return true, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.known[sh.Properties.Title] = true
		}
	}
	return c.known[title], nil
}

func ledgerValues(r ports.LedgerRow) []any {
	return []any{
		r.PaymentDate.String(),
		r.DebtName,
		r.Creditor,
		r.Amount.Decimal().InexactFloat64(),
		r.Principal.Decimal().InexactFloat64(),
		r.Interest.Decimal().InexactFloat64(),
		r.BalanceAfter.Decimal().InexactFloat64(),
		r.Currency,
		r.TransactionRef,
		r.PaymentID.String(),
		r.DebtID.String(),
	}
}

// parseLedger skips the header and any row that does not carry a payment id.
func parseLedger(values [][]any) []ports.LedgerRow {
	var out []ports.LedgerRow
	for _, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 10 {
			continue
		}
		pid, err := uuid.Parse(cols[9])
		if err != nil {
			continue
		}
		on, err := core.ParseDate(cols[0])
		if err != nil {
			continue
		}
		row := ports.LedgerRow{
			PaymentID:      pid,
			DebtName:       cols[1],
			Creditor:       cols[2],
			PaymentDate:    on,
			Amount:         parseAmountCell(cols[3]),
			Principal:      parseAmountCell(cols[4]),
			Interest:       parseAmountCell(cols[5]),
			BalanceAfter:   parseAmountCell(cols[6]),
			Currency:       cols[7],
			TransactionRef: cols[8],
		}
		if len(cols) > 10 {
			row.DebtID, _ = uuid.Parse(cols[10])
		}
		out = append(out, row)
	}
	return out
}

func scheduleValues(debt core.Debt, s schedule.Schedule) [][]any {
	out := make([][]any, 0, len(s.Rows)+5)
	out = append(out,
		[]any{debt.Name, debt.Creditor, string(s.Type), s.Currency},
		scheduleHeader,
	)
	for _, r := range s.Rows {
		out = append(out, []any{
			r.PaymentNumber,
			r.DueDate.String(),
			r.Payment.Decimal().InexactFloat64(),
			r.Principal.Decimal().InexactFloat64(),
			r.Interest.Decimal().InexactFloat64(),
			r.RemainingBalance.Decimal().InexactFloat64(),
			r.IsPaid,
			r.IsOverdue,
		})
	}

	payoff := ""
	if s.Summary.PayoffDate != nil {
		payoff = s.Summary.PayoffDate.String()
	}
	out = append(out,
		[]any{},
		[]any{"Total principal", s.Summary.TotalPrincipal.Decimal().InexactFloat64(), "Total interest", s.Summary.TotalInterest.Decimal().InexactFloat64()},
		[]any{"Remaining payments", s.Summary.RemainingPayments, "Payoff date", payoff},
	)
	return out
}

// scheduleSheetName is stable per debt; names can change but ids cannot.
func scheduleSheetName(debt core.Debt) string {
	return "Schedule " + debt.ID.String()[:8]
}

// quoteSheet quotes a tab title for use in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// parseAmountCell reads an amount cell in major units; unreadable cells count as zero.
func parseAmountCell(s string) core.Money {
	d, err := core.ParseAmount(s)
	if err != nil {
		return core.Money{}
	}
	return core.Money{Cents: core.CentsFromDecimal(d)}
}
