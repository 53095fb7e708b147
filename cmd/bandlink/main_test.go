package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/bandlink/internal/config"
	"github.com/banshee-data/bandlink/internal/db"
	"github.com/banshee-data/bandlink/internal/demo"
	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/httputil"
	"github.com/banshee-data/bandlink/internal/telemetry"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q", *listen)
	}
	if *dbPath != db.DefaultPath {
		t.Errorf("db default = %q", *dbPath)
	}
	if *startDemo || *autoConnect || *disableSerial || *mockSerial {
		t.Error("mode flags should default to false")
	}
}

func TestMockPackets(t *testing.T) {
	seq := demo.DefaultRecording()
	packets := mockPackets(seq)
	if len(packets) != len(seq) {
		t.Fatalf("got %d packets for %d readings", len(packets), len(seq))
	}
	for i, p := range packets[:5] {
		got, err := telemetry.Decode(p)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if diff := cmp.Diff(seq[i], got); diff != "" {
			t.Errorf("packet %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestLoadRecording(t *testing.T) {
	seq, err := loadRecording("")
	if err != nil || len(seq) == 0 {
		t.Fatalf("loadRecording(\"\") = %d readings, %v", len(seq), err)
	}
	if _, err := loadRecording(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing recording")
	}
}

func TestMockTransport(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "bandlink.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	defer database.Close()

	tr := newMockTransport(database, config.Empty(), demo.DefaultRecording())
	defer tr.Close()

	handles, err := tr.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("Discover() = %d handles, want 1", len(handles))
	}
	h := handles[0]
	if h.Name() != device.DefaultDeviceName || h.Address() != mockPortPath {
		t.Errorf("handle = %s at %s", h.Name(), h.Address())
	}

	// each connect opens a fresh replay
	for i := 0; i < 2; i++ {
		if err := h.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() #%d error = %v", i, err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i, err)
		}
	}
}

func TestUnescapeCommand(t *testing.T) {
	if got := unescapeCommand(`AT+NAME\r\n`); got != "AT+NAME\r\n" {
		t.Errorf("unescapeCommand() = %q", got)
	}
	if got := unescapeCommand("plain"); got != "plain" {
		t.Errorf("unescapeCommand() = %q", got)
	}
}

func TestRunCtl(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		response   string
		wantMethod string
		wantPath   string
		wantBody   string
		wantOut    string
	}{
		{
			name:       "status",
			args:       []string{"status"},
			response:   `{"status":"connected","last_error":null,"mode":"live","demo":{}}`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/status",
			wantOut:    `"mode": "live"`,
		},
		{
			name:       "demo start",
			args:       []string{"-server", "http://band:9000", "demo", "start"},
			response:   `{"active":true,"index":0,"len":3,"interval_ns":200000000}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/demo/start",
			wantOut:    `"active": true`,
		},
		{
			name:       "cadence",
			args:       []string{"cadence", "75"},
			response:   `{"active":true,"index":0,"len":3,"interval_ns":75000000}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/demo/cadence",
			wantBody:   "interval_ms=75",
		},
		{
			name:       "send",
			args:       []string{"send", `AT\r\n`},
			response:   `{"sent":"AT\r\n"}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/command",
			wantBody:   "command=AT%0D%0A",
			wantOut:    `"sent": "AT\r\n"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, tt.response)
			var out bytes.Buffer
			if err := runCtl(tt.args, &out, mock); err != nil {
				t.Fatalf("runCtl() error = %v", err)
			}

			req := mock.LastRequest()
			if req.Method != tt.wantMethod || req.URL.Path != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", req.Method, req.URL.Path, tt.wantMethod, tt.wantPath)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(req.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestRunCtl_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no command", nil, "missing ctl command"},
		{"unknown", []string{"reboot"}, "unknown ctl command"},
		{"demo without action", []string{"demo"}, "start or stop"},
		{"demo bad action", []string{"demo", "pause"}, "unknown demo action"},
		{"cadence missing", []string{"cadence"}, "milliseconds"},
		{"cadence invalid", []string{"cadence", "0"}, "invalid cadence"},
		{"send missing", []string{"send"}, "requires text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			err := runCtl(tt.args, io.Discard, mock)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("runCtl() error = %v, want containing %q", err, tt.wantErr)
			}
			if mock.RequestCount() != 0 {
				t.Errorf("made %d requests", mock.RequestCount())
			}
		})
	}

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusConflict, `{"error":"device is not connected"}`)
	err := runCtl([]string{"send", "AT"}, io.Discard, mock)
	var se *httputil.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusConflict {
		t.Errorf("runCtl() error = %v, want 409 StatusError", err)
	}
}
