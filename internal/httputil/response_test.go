package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "connecting"})

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"connecting"}` {
		t.Errorf("body = %s", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
		msg   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "missing command") }, http.StatusBadRequest, "missing command"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such device") }, http.StatusNotFound, "no such device"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "busy") }, http.StatusConflict, "busy"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w) }, http.StatusMethodNotAllowed, "method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.msg {
				t.Errorf("error = %q, want %q", body.Error, tt.msg)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	if !RequireMethod(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.MethodPost) {
		t.Error("POST should be allowed")
	}

	rec = httptest.NewRecorder()
	if RequireMethod(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodPost, http.MethodPut) {
		t.Error("GET should be rejected")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST, PUT" {
		t.Errorf("Allow = %q", allow)
	}
}

func TestDecodeResponse(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"mode":"demo"}`).
		AddResponse(http.StatusConflict, `{"error":"connect already in progress"}`).
		AddResponse(http.StatusBadGateway, "upstream down\n").
		AddErrorResponse(errors.New("connection refused"))

	do := func() (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodGet, "http://band.local/api/status", nil)
		return mock.Do(req)
	}

	resp, _ := do()
	var v struct{ Mode string }
	if err := DecodeResponse(resp, &v); err != nil || v.Mode != "demo" {
		t.Errorf("DecodeResponse() = %v, mode %q", err, v.Mode)
	}

	resp, _ = do()
	var se *StatusError
	if err := DecodeResponse(resp, nil); !errors.As(err, &se) || se.StatusCode != http.StatusConflict || se.Message != "connect already in progress" {
		t.Errorf("DecodeResponse() error = %v", err)
	}

	resp, _ = do()
	if err := DecodeResponse(resp, nil); !errors.As(err, &se) || se.Message != "upstream down" {
		t.Errorf("plain text error = %v", err)
	}

	if _, err := do(); err == nil {
		t.Error("expected transport error")
	}

	// drained queue falls back to an empty 200
	resp, _ = do()
	if err := DecodeResponse(resp, &v); err != nil {
		t.Errorf("empty body error = %v", err)
	}
	if mock.RequestCount() != 5 || mock.LastRequest().URL.Path != "/api/status" {
		t.Errorf("recorded %d requests", mock.RequestCount())
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(b)))}, nil
	}
	req, _ := http.NewRequest(http.MethodPost, "http://band.local/echo", strings.NewReader(`"x"`))
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var s string
	if err := DecodeResponse(resp, &s); err != nil || s != "x" {
		t.Errorf("echo = %q, %v", s, err)
	}
}

func TestStandardClient(t *testing.T) {
	if c := NewStandardClient(nil); c.Timeout != DefaultTimeout {
		t.Errorf("default timeout = %v", c.Timeout)
	}
	custom := &http.Client{}
	if NewStandardClient(custom).Client != custom {
		t.Error("expected custom client to be wrapped")
	}
}
