package audit

import (
	"testing"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

func TestEventConstants(t *testing.T) {
	t.Parallel()

	expected := map[EventType]string{
		EventGuardDeny:         "guard.deny",
		EventGuardDefer:        "guard.defer",
		EventSnapshotProposed:  "snapshot.proposed",
		EventSnapshotCompleted: "snapshot.completed",
		EventSnapshotFailed:    "snapshot.failed",
		EventAdminReplaced:     "admin.replaced",
		EventEpochRotated:      "epoch.rotated",
		EventDivergence:        "journal.divergence",
		EventRecoveryInitiated: "recovery.initiated",
		EventRecoveryApproved:  "recovery.approved",
		EventRecoveryCompleted: "recovery.completed",
	}

	for constant, want := range expected {
		if string(constant) != want {
			t.Errorf("EventType constant %q != expected %q", string(constant), want)
		}
	}
	if len(AllEventTypes()) != len(expected) {
		t.Errorf("AllEventTypes() has %d entries, want %d", len(AllEventTypes()), len(expected))
	}
}

func TestSeverityFor_AllEventTypesMapped(t *testing.T) {
	t.Parallel()
	for _, et := range AllEventTypes() {
		if _, ok := severityMap[et]; !ok {
			t.Errorf("event type %s has no severity mapping", et)
		}
	}
}

func TestSeverityFor_UnknownFailsSecure(t *testing.T) {
	t.Parallel()
	if got := SeverityFor("made.up"); got != SeverityWarning {
		t.Errorf("unknown event type: got %v, want SeverityWarning", got)
	}
}

func TestSeverityString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    Severity
		want string
	}{
		{SeverityWarning, "WARNING"},
		{SeverityNotice, "NOTICE"},
		{SeverityInfo, "INFO"},
		{Severity(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestGuardDenyEvent(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_756_700_000, 0)
	principal := ids.NewAuthorityId()
	ev := NewGuardDeny(at, principal, "message.send", "ctx:general", "flow budget exhausted")

	if ev.Type != EventGuardDeny {
		t.Errorf("Type = %q, want %q", ev.Type, EventGuardDeny)
	}
	if ev.Severity != SeverityWarning {
		t.Errorf("Severity = %d, want %d (WARNING)", ev.Severity, SeverityWarning)
	}
	if ev.ActorID != principal.String() {
		t.Errorf("ActorID = %q, want %q", ev.ActorID, principal.String())
	}
	if ev.Details["reason"] != "flow budget exhausted" {
		t.Errorf("reason detail = %q", ev.Details["reason"])
	}
	if !ev.Timestamp.Equal(at) {
		t.Errorf("timestamp not taken from caller: %v", ev.Timestamp)
	}
}

func TestSnapshotEventsCarryEpochAndRoot(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_756_700_000, 0)
	author := ids.NewAuthorityId()
	root := ids.HashBytes([]byte("root"))

	proposed := NewSnapshotProposed(at, author, 12, root)
	if proposed.Details["epoch"] != "12" {
		t.Errorf("epoch detail = %q", proposed.Details["epoch"])
	}
	if proposed.Details["root"] != root.String() {
		t.Errorf("root detail = %q", proposed.Details["root"])
	}

	completed := NewSnapshotCompleted(at, author, 12, root, 7)
	if completed.Details["dropped"] != "7" {
		t.Errorf("dropped detail = %q", completed.Details["dropped"])
	}
	if completed.Severity != SeverityNotice {
		t.Errorf("Severity = %d, want %d (NOTICE)", completed.Severity, SeverityNotice)
	}

	failed := NewSnapshotFailed(at, author, 12, "quorum unreachable")
	if failed.Severity != SeverityWarning {
		t.Errorf("Severity = %d, want %d (WARNING)", failed.Severity, SeverityWarning)
	}
}

func TestAdminReplacedEvent(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_756_700_000, 0)
	oldAdmin := ids.NewAuthorityId()
	newAdmin := ids.NewAuthorityId()

	ev := NewAdminReplaced(at, oldAdmin, newAdmin, 30)
	if ev.ActorID != newAdmin.String() {
		t.Errorf("ActorID should be the new admin, got %q", ev.ActorID)
	}
	if ev.Details["old_admin"] != oldAdmin.String() {
		t.Errorf("old_admin detail = %q", ev.Details["old_admin"])
	}
	if ev.Details["activation_epoch"] != "30" {
		t.Errorf("activation_epoch detail = %q", ev.Details["activation_epoch"])
	}
}

func TestRecoveryEvents(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_756_700_000, 0)

	init := NewRecoveryInitiated(at, ids.NewAuthorityId(), 3)
	if init.Severity != SeverityWarning {
		t.Errorf("initiated Severity = %d, want %d (WARNING)", init.Severity, SeverityWarning)
	}

	approved := NewRecoveryApproved(at, 5, 3)
	if approved.ActorID != "5" || approved.Details["lost_leaf"] != "3" {
		t.Errorf("approval fields wrong: %+v", approved)
	}

	done := NewRecoveryCompleted(at, 3, 9, 2)
	if done.Details["new_leaf"] != "9" || done.Details["approvals"] != "2" {
		t.Errorf("completed fields wrong: %+v", done)
	}
}
