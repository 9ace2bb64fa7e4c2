package plcsim

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/plcsnmp/plcsnmp/internal/auth"
	"github.com/plcsnmp/plcsnmp/internal/controller"
)

const testKey = "0123456789abcdef0123456789abcdef"

const symbolYAML = `
device:
  name: press-line-3
  vendor: acme
  version: "2.4"
state: stop
symbols:
  - name: MAIN.uptime
    type: STRING
    attributes:
      snmp_oid: 1.3.6.1.2.1.1.3.0
      snmp_address: 10.0.0.1
  - name: MAIN.counter
    type: DINT
    value: "0"
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSymbolFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	store, err := LoadFile(writeSymbolFile(t, symbolYAML))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := store.Device().Name; got != "press-line-3" {
		t.Errorf("device name = %q, want press-line-3", got)
	}
	if got := store.State(); got != controller.RunStateStop {
		t.Errorf("state = %v, want stop", got)
	}

	attrs := map[string]string{
		"snmp_oid":     "1.3.6.1.2.1.1.3.0",
		"snmp_address": "10.0.0.1",
	}
	want := []controller.Symbol{{Name: "MAIN.uptime", Type: "STRING", Attributes: attrs}}
	if diff := cmp.Diff(want, store.Symbols(true)); diff != "" {
		t.Errorf("annotated symbols mismatch (-want +got):\n%s", diff)
	}
	if got := len(store.Symbols(false)); got != 2 {
		t.Errorf("all symbols = %d, want 2", got)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "symbols: [unclosed"},
		{"bad state", "state: sleeping\n"},
		{"unnamed symbol", "symbols:\n  - type: INT\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeSymbolFile(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStore_CopiesAreIndependent(t *testing.T) {
	store := NewStore(Device{})
	store.Add(controller.Symbol{Name: "A", Attributes: map[string]string{"k": "v"}})

	sym, err := store.Symbol("A")
	if err != nil {
		t.Fatal(err)
	}
	sym.Attributes["k"] = "changed"

	again, _ := store.Symbol("A")
	if again.Attributes["k"] != "v" {
		t.Error("caller mutation leaked into the store")
	}

	if err := store.Write("missing", "1"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Write(missing) error = %v, want ErrSymbolNotFound", err)
	}
}

func newTestAPI(t *testing.T, tokens *auth.Service) (*Store, http.Handler) {
	t.Helper()
	store, err := LoadFile(writeSymbolFile(t, symbolYAML))
	if err != nil {
		t.Fatal(err)
	}
	return store, NewRouter(store, tokens, quietLogger())
}

func serve(h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Endpoints(t *testing.T) {
	store, h := newTestAPI(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantBody string
	}{
		{"device", http.MethodGet, "/api/v1/device", "", http.StatusOK, `"name":"press-line-3"`},
		{"get state", http.MethodGet, "/api/v1/state", "", http.StatusOK, `"state":"stop"`},
		{"set state", http.MethodPut, "/api/v1/state", `{"state":"run"}`, http.StatusOK, `"state":"run"`},
		{"bad state", http.MethodPut, "/api/v1/state", `{"state":"nap"}`, http.StatusBadRequest, "INVALID_STATE"},
		{"annotated symbols", http.MethodGet, "/api/v1/symbols?annotated=true", "", http.StatusOK, `"snmp_oid":"1.3.6.1.2.1.1.3.0"`},
		{"one symbol", http.MethodGet, "/api/v1/symbols/MAIN.counter", "", http.StatusOK, `"value":"0"`},
		{"missing symbol", http.MethodGet, "/api/v1/symbols/MAIN.nope", "", http.StatusNotFound, "NOT_FOUND"},
		{"write", http.MethodPut, "/api/v1/symbols/MAIN.counter", `{"value":"42"}`, http.StatusNoContent, ""},
		{"write without value", http.MethodPut, "/api/v1/symbols/MAIN.counter", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"write bad json", http.MethodPut, "/api/v1/symbols/MAIN.counter", `{`, http.StatusBadRequest, "INVALID_BODY"},
		{"write missing", http.MethodPut, "/api/v1/symbols/MAIN.nope", `{"value":"1"}`, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}

	sym, _ := store.Symbol("MAIN.counter")
	if sym.Value != "42" {
		t.Errorf("MAIN.counter = %q after write, want 42", sym.Value)
	}
	if store.Writes() != 1 {
		t.Errorf("writes = %d, want 1", store.Writes())
	}
}

func TestAPI_ListIsJSONArray(t *testing.T) {
	_, h := newTestAPI(t, nil)

	rec := serve(h, http.MethodGet, "/api/v1/symbols", "", nil)
	var symbols []controller.Symbol
	if err := json.NewDecoder(rec.Body).Decode(&symbols); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(symbols) != 2 {
		t.Errorf("symbols = %d, want 2", len(symbols))
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	tokens, err := auth.NewService(testKey, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	_, h := newTestAPI(t, tokens)

	if rec := serve(h, http.MethodGet, "/api/v1/device", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", rec.Code)
	}

	other, _ := auth.NewService(strings.Repeat("x", auth.MinKeyLength), time.Minute)
	forged, _, _ := other.IssueToken("intruder")
	header := http.Header{"Authorization": {"Bearer " + forged}}
	if rec := serve(h, http.MethodGet, "/api/v1/device", "", header); rec.Code != http.StatusUnauthorized {
		t.Errorf("foreign key: status = %d, want 401", rec.Code)
	}

	token, _, _ := tokens.IssueToken("plcsnmp")
	header = http.Header{"Authorization": {"Bearer " + token}}
	if rec := serve(h, http.MethodGet, "/api/v1/device", "", header); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
}
