package audit

import (
	"strings"
	"testing"
	"time"
)

func TestFormatMessage_BasicGuardDeny(t *testing.T) {
	ts, err := time.Parse(time.RFC3339Nano, "2026-09-01T15:30:00.000Z")
	if err != nil {
		t.Fatalf("failed to parse timestamp: %v", err)
	}

	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityWarning,
		Timestamp: ts,
		Hostname:  "agent.local",
		AppName:   "aura",
		MessageID: "guard.deny",
		SD: []SDElement{{
			ID: "aura",
			Params: []SDParam{
				{Name: "operation", Value: "message.send"},
				{Name: "reason", Value: "flow budget exhausted"},
			},
		}},
		Text: "guard denied operation",
	}

	got := string(FormatMessage(msg))
	want := `<132>1 2026-09-01T15:30:00.000Z agent.local aura - guard.deny [aura operation="message.send" reason="flow budget exhausted"] guard denied operation`

	if got != want {
		t.Errorf("format mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestFormatMessage_NILVALUEFields(t *testing.T) {
	ts, _ := time.Parse(time.RFC3339Nano, "2026-09-01T15:30:00.000Z")

	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityInfo,
		Timestamp: ts,
		// All string fields empty -> NILVALUE
		SD: []SDElement{{
			ID:     "aura",
			Params: []SDParam{{Name: "k", Value: "v"}},
		}},
		Text: "test",
	}

	got := string(FormatMessage(msg))
	want := `<134>1 2026-09-01T15:30:00.000Z - - - - [aura k="v"] test`

	if got != want {
		t.Errorf("NILVALUE mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestFormatMessage_ZeroTimestamp(t *testing.T) {
	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityInfo,
		Hostname:  "h",
		AppName:   "a",
		MessageID: "m",
	}

	got := string(FormatMessage(msg))
	want := `<134>1 - h a - m -`

	if got != want {
		t.Errorf("zero timestamp mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestFormatMessage_SDParamEscaping(t *testing.T) {
	ts, _ := time.Parse(time.RFC3339Nano, "2026-09-01T15:30:00.000Z")

	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityWarning,
		Timestamp: ts,
		Hostname:  "h",
		AppName:   "aura",
		MessageID: "guard.deny",
		SD: []SDElement{{
			ID: "aura",
			Params: []SDParam{
				{Name: "reason", Value: `quote " backslash \ bracket ]`},
			},
		}},
	}

	got := string(FormatMessage(msg))
	if !strings.Contains(got, `reason="quote \" backslash \\ bracket \]"`) {
		t.Errorf("SD param escaping wrong: %s", got)
	}
}

func TestFormatMessage_PRICalculation(t *testing.T) {
	tests := []struct {
		severity Severity
		wantPRI  string
	}{
		{SeverityWarning, "<132>1"},
		{SeverityNotice, "<133>1"},
		{SeverityInfo, "<134>1"},
	}
	for _, tt := range tests {
		msg := Message{Facility: FacLocal0, Severity: tt.severity}
		got := string(FormatMessage(msg))
		if !strings.HasPrefix(got, tt.wantPRI) {
			t.Errorf("severity %d: got prefix %q, want %q", tt.severity, got[:6], tt.wantPRI)
		}
	}
}

func TestFormatMessage_FieldTruncation(t *testing.T) {
	long := strings.Repeat("x", 300)
	msg := Message{
		Facility: FacLocal0,
		Severity: SeverityInfo,
		Hostname: long,
		AppName:  long,
	}
	got := string(FormatMessage(msg))
	fields := strings.Split(got, " ")
	if len(fields[2]) != 255 {
		t.Errorf("hostname not truncated to 255: got %d", len(fields[2]))
	}
	if len(fields[3]) != 48 {
		t.Errorf("appname not truncated to 48: got %d", len(fields[3]))
	}
}
