// Package testutil provides shared test fixtures: band packets and HTTP
// request helpers.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

// Packet returns a well-formed record whose heart rate is hr and whose other
// fields count up from base in steps of 0.5.
func Packet(base float64, hr int) string {
	parts := make([]string, telemetry.FieldCount)
	for i := range parts {
		parts[i] = strconv.FormatFloat(base+float64(i)*0.5, 'f', -1, 64)
	}
	parts[18] = strconv.Itoa(hr)
	return strings.Join(parts, ",")
}

// LocalhostRequest creates a request that appears to come from localhost,
// which tsweb.Debugger routes require.
func LocalhostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// FormRequest creates a url-encoded form POST.
func FormRequest(path, form string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d (body %s)", rec.Code, want, strings.TrimSpace(rec.Body.String()))
	}
}

// DecodeJSON unmarshals the recorded body into v, failing the test on error.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}
