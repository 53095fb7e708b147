package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

func TestPacket(t *testing.T) {
	r, err := telemetry.Decode(Packet(1, 72))
	if err != nil {
		t.Fatalf("Decode(Packet) error = %v", err)
	}
	if r.HeartRate != 72 || r.GyroAccel.MeanX != 1 || r.UV != 13.5 {
		t.Errorf("decoded %+v", r)
	}
}

func TestRequests(t *testing.T) {
	req := LocalhostRequest(http.MethodGet, "/debug/", nil)
	if !strings.HasPrefix(req.RemoteAddr, "127.0.0.1:") {
		t.Errorf("RemoteAddr = %s", req.RemoteAddr)
	}

	req = FormRequest("/api/command", "command=AT")
	if err := req.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if req.PostFormValue("command") != "AT" {
		t.Errorf("command = %q", req.PostFormValue("command"))
	}
}

func TestDecodeJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteString(`{"mode":"idle"}`)
	var v struct{ Mode string }
	DecodeJSON(t, rec, &v)
	if v.Mode != "idle" {
		t.Errorf("Mode = %q", v.Mode)
	}
	AssertStatusCode(t, rec, http.StatusOK)
}
