// Package google mirrors month views to a Google Sheets spreadsheet
// using a Service Account.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name; the month is appended, e.g. "Dashboard 2026-03".
	sheetBase string
}

// Ensure interface conformance
var _ export.Writer = (*Client)(nil)

// NewFromEnv creates a Sheets writer from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Dashboard").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetBase := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetBase == "" {
		sheetBase = "Dashboard"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteMonthView replaces the month's sheet contents with the view.
func (c *Client) WriteMonthView(ctx context.Context, view export.MonthView) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.sheetName(view)
	rng := fmt.Sprintf("%s!A:F", sheet)

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet range: %w", err)
	}

	values := &gsheet.ValueRange{Values: monthViewRows(view)}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1", sheet), values).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write month view: %w", err)
	}

	slog.InfoContext(ctx, "Month view mirrored to sheet",
		"user", view.User,
		"sheet", sheet,
		"rows", len(view.Transactions))
	return nil
}

func (c *Client) sheetName(view export.MonthView) string {
	return fmt.Sprintf("%s %s", c.sheetBase, view.Month.Format("2006-01"))
}

// monthViewRows lays the view out as sheet rows: balance summary, a
// blank spacer, the header and one row per transaction.
func monthViewRows(view export.MonthView) [][]any {
	rows := [][]any{
		{"Balance", core.FormatAmount(view.Balance.Current)},
		{"Expected", core.FormatAmount(view.Balance.Expected)},
		{"Income", core.FormatAmount(view.Balance.MonthIncome)},
		{"Outcome", core.FormatAmount(view.Balance.MonthOutcome)},
		{},
		{"Due", "Name", "Category", "Type", "Value", "Status"},
	}
	for _, t := range view.Transactions {
		status := "pending"
		if t.Paid() {
			status = "paid"
		} else if t.Virtual {
			status = "upcoming"
		}
		rows = append(rows, []any{
			t.DueAt.Format("2006-01-02"),
			t.Name,
			t.Category.Name,
			string(t.Type),
			core.FormatAmount(t.Value),
			status,
		})
	}
	return rows
}
