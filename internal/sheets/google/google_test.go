package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"fintrack/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	got, err := loadCredentials(ctx, ` {"type":"service_account"} `, "/does/not/matter")
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials: got %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadCredentials(ctx, "", path)
	if err != nil || string(got) != `{"from":"file"}` {
		t.Fatalf("file credentials: got %q, %v", got, err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	if _, err := loadCredentials(ctx, "", ""); err != nil {
		t.Fatalf("GOOGLE_APPLICATION_CREDENTIALS fallback: %v", err)
	}

	if _, err := loadCredentials(ctx, "", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"  Ledger  ", 2024, "2024 Ledger"},
		{"", 2023, ""},
		{"Test Sheet", 2022, "2022 Test Sheet"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
		{"1234567", 2024, "2024 1234567"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestClient_Append(t *testing.T) {
	var (
		gotPath  string
		gotQuery map[string]string
		gotBody  struct {
			Values [][]string `json:"values"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"valueInputOption": r.URL.Query().Get("valueInputOption"),
			"insertDataOption": r.URL.Query().Get("insertDataOption"),
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid","updates":{"updatedRange":"'2024 Ledger'!A7:G7"}}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sid",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithoutAuthentication(),
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ruleID := uuid.New()
	tx := core.Transaction{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Amount:          decimal.RequireFromString("1200"),
		Description:     "rent",
		Kind:            core.KindExpense,
		Date:            core.NewDate(2024, 2, 29),
		RecurringRuleID: uuid.NullUUID{UUID: ruleID, Valid: true},
	}

	ref, err := c.Append(context.Background(), tx)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if ref != "'2024 Ledger'!A7:G7" {
		t.Errorf("ref = %q", ref)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sid/values/2024 Ledger!A:G:append") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery["valueInputOption"] != "USER_ENTERED" || gotQuery["insertDataOption"] != "INSERT_ROWS" {
		t.Errorf("unexpected query %v", gotQuery)
	}
	want := []string{"2024-02-29", "rent", "1200.00", "expense", "", ruleID.String(), tx.ID.String()}
	if len(gotBody.Values) != 1 || strings.Join(gotBody.Values[0], "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", gotBody.Values, want)
	}
}

func TestClient_AppendWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test", ledgerBase: "Ledger"}
	if _, err := c.Append(context.Background(), core.Transaction{Date: core.NewDate(2024, 1, 1)}); err == nil {
		t.Fatal("expected error when service is nil")
	}
}
