package lidar

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_RoutesStreams(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("ops %d", 1)
	Diagf("diag %d", 2)
	Tracef("trace %d", 3)

	tests := []struct {
		name string
		buf  *bytes.Buffer
		want string
	}{
		{"ops", &ops, "ops 1"},
		{"diag", &diag, "diag 2"},
		{"trace", &trace, "trace 3"},
	}
	for _, tt := range tests {
		got := tt.buf.String()
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s stream = %q, want it to contain %q", tt.name, got, tt.want)
		}
		if !strings.Contains(got, "[velodyne] ") {
			t.Errorf("%s stream = %q, missing prefix", tt.name, got)
		}
	}
	if strings.Contains(ops.String(), "diag") {
		t.Error("diag message leaked into ops stream")
	}
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false with a trace writer")
	}
}

func TestSetLogWriters_NilDisables(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})
	Diagf("dropped")
	Tracef("dropped")
	Opsf("kept")

	if TraceEnabled() {
		t.Error("TraceEnabled() = true without a trace writer")
	}
	if got := ops.String(); !strings.Contains(got, "kept") || strings.Contains(got, "dropped") {
		t.Errorf("ops stream = %q", got)
	}
}

func TestDefaultLogWriters(t *testing.T) {
	w := DefaultLogWriters()
	if w.Ops == nil || w.Diag == nil {
		t.Error("ops and diag should default to stderr")
	}
	if w.Trace != nil {
		t.Error("trace should default to disabled")
	}
}
