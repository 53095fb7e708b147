package monitoring

import (
	"fmt"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetDebug(false)
	})

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("connected to %s", "HC-05")
	if len(*lines) != 1 || (*lines)[0] != "connected to HC-05" {
		t.Fatalf("lines = %q", *lines)
	}

	SetLogger(nil)
	Logf("dropped")
	if len(*lines) != 1 {
		t.Errorf("nil logger should discard, got %q", *lines)
	}
}

func TestDebugf_OnlyWhenEnabled(t *testing.T) {
	lines := capture(t)

	Debugf("packet %q", "1,2")
	if len(*lines) != 0 {
		t.Fatalf("Debugf logged while disabled: %q", *lines)
	}

	SetDebug(true)
	Debugf("packet %q", "1,2")
	if len(*lines) != 1 || (*lines)[0] != `[debug] packet "1,2"` {
		t.Errorf("lines = %q", *lines)
	}
}
