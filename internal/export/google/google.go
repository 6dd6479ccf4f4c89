// Package google appends exported ledger rows to a Google Sheet, one sheet
// per year ("2024 Ledger", "2025 Ledger", ...).
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finapp/internal/cache"
	"finapp/internal/export"
	"finapp/internal/log"
)

const (
	defaultSheetName = "Ledger"
	// Recently exported event ids, used to drop AMQP redeliveries.
	seenSize = 10000
	seenTTL  = 24 * time.Hour
)

var ErrMissingSpreadsheet = errors.New("missing spreadsheet id")

// Config selects the spreadsheet and how to authenticate against it.
// Endpoint points the client at a Sheets-compatible server and disables
// authentication; it is meant for local emulators.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Endpoint        string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
	seen          *cache.LRU[string, string]
}

var _ export.Exporter = (*Client)(nil)

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrMissingSpreadsheet
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentExport)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		logger:        logger,
		seen:          cache.NewLRU[string, string](seenSize, seenTTL),
	}, nil
}

// Seen exposes the redelivery cache so it can be registered for cleanup.
func (c *Client) Seen() cache.Cleaner { return c.seen }

func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	if cfg.Endpoint != "" {
		logger.InfoContext(ctx, "Using unauthenticated Sheets endpoint", "endpoint", cfg.Endpoint)
		return gsheet.NewService(ctx,
			goption.WithEndpoint(cfg.Endpoint),
			goption.WithoutAuthentication(),
			goption.WithHTTPClient(newHTTPClientWithPooling()))
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Creating Google Sheets service with service account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Export appends r below the last row of the sheet for r's year and returns
// the updated range. A row whose event id was exported recently returns the
// earlier range without writing.
func (c *Client) Export(ctx context.Context, r export.Row) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if ref, ok := c.seen.Get(r.EventID); ok {
		c.logger.DebugContext(ctx, "Skipping already exported event", log.FieldEventID, r.EventID, "range", ref)
		return ref, nil
	}

	sheet := yearPrefixedName(c.sheetName, r.Date.Year())
	rng := fmt.Sprintf("%s!A:M", quoteSheet(sheet))
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(r)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.seen.Set(r.EventID, ref)
	return ref, nil
}

// formatRow renders r as sheet cells. Amounts are written as plain decimal
// strings so USER_ENTERED parses them as numbers without float rounding.
// Text that Sheets would evaluate as a formula is forced to a literal.
func formatRow(r export.Row) []any {
	cells := r.Cells()
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = literal(c)
	}
	return out
}

// literal prefixes cells starting with a formula trigger with an apostrophe,
// which Sheets strips and stores the rest as text. Signed numbers pass.
func literal(cell string) string {
	if cell == "" || !strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return cell
	}
	if _, err := decimal.NewFromString(cell); err == nil {
		return cell
	}
	return "'" + cell
}

// yearPrefixedName returns "<year> <base>" unless base already starts with
// a year.
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

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
