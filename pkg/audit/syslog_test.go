package audit

import (
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

// testSocketPath returns a short, unique Unix socket path for testing.
// Unix socket paths have a 108-character limit.
func testSocketPath(suffix string) string {
	return fmt.Sprintf("/tmp/syslog_%d_%s.sock", os.Getpid(), suffix)
}

func listenUnixgram(t *testing.T, path string) *net.UnixConn {
	t.Helper()
	t.Cleanup(func() { os.Remove(path) })
	addr := net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", &addr)
	if err != nil {
		t.Fatalf("failed to create mock syslog listener: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSyslogEmitter_MessageDelivery(t *testing.T) {
	socketPath := testSocketPath("delivery")
	conn := listenUnixgram(t, socketPath)

	emitter, err := NewSyslogEmitter(SyslogConfig{
		SocketPath: socketPath,
		Hostname:   "test.local",
		AppName:    "aura",
	})
	if err != nil {
		t.Fatalf("NewSyslogEmitter failed: %v", err)
	}
	defer emitter.Close()

	ts, _ := time.Parse(time.RFC3339Nano, "2026-09-01T15:30:00.000Z")
	principal := ids.NewAuthorityId()
	if err := emitter.Emit(NewGuardDeny(ts, principal, "message.send", "ctx:general", "flow budget exhausted")); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("failed to read from mock socket: %v", err)
	}
	got := string(buf[:n])

	if !strings.HasPrefix(got, "<132>1") {
		t.Errorf("expected priority <132>1 (Local0+WARNING), got prefix: %s", got[:10])
	}
	if !strings.Contains(got, "test.local") {
		t.Error("hostname 'test.local' not found in message")
	}
	if !strings.Contains(got, "guard.deny") {
		t.Error("event type 'guard.deny' not found in MSGID")
	}
	if !strings.Contains(got, `[aura`) {
		t.Error("structured data element 'aura' not found")
	}
	if !strings.Contains(got, fmt.Sprintf(`actor_id="%s"`, principal)) {
		t.Error("actor_id SD param not found")
	}
	if !strings.Contains(got, `reason="flow budget exhausted"`) {
		t.Error("reason SD param not found")
	}
}

func TestSyslogEmitter_SeverityPerEvent(t *testing.T) {
	socketPath := testSocketPath("severity")
	conn := listenUnixgram(t, socketPath)

	emitter, err := NewSyslogEmitter(SyslogConfig{SocketPath: socketPath, Hostname: "h", AppName: "aura"})
	if err != nil {
		t.Fatalf("NewSyslogEmitter failed: %v", err)
	}
	defer emitter.Close()

	now := time.Now()
	cases := []struct {
		ev      Event
		wantPRI string
	}{
		{NewEpochRotated(now, 1, 2), "<134>1"},
		{NewSnapshotCompleted(now, ids.NewAuthorityId(), 2, ids.ZeroHash, 0), "<133>1"},
		{NewDivergence(now, 2, ids.ZeroHash, "commitment mismatch"), "<132>1"},
	}
	buf := make([]byte, 4096)
	for _, c := range cases {
		if err := emitter.Emit(c.ev); err != nil {
			t.Fatalf("Emit(%s) failed: %v", c.ev.Type, err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if got := string(buf[:n]); !strings.HasPrefix(got, c.wantPRI) {
			t.Errorf("%s: got prefix %q, want %q", c.ev.Type, got[:6], c.wantPRI)
		}
	}
}

func TestSyslogEmitter_NilReceiverSafe(t *testing.T) {
	var emitter *SyslogEmitter
	if err := emitter.Emit(Event{}); err != nil {
		t.Errorf("nil receiver Emit returned %v", err)
	}
	if err := emitter.Close(); err != nil {
		t.Errorf("nil receiver Close returned %v", err)
	}
}

func TestSyslogEmitter_UnavailableSocket(t *testing.T) {
	_, err := NewSyslogEmitter(SyslogConfig{SocketPath: "/tmp/definitely-not-a-syslog.sock"})
	if err == nil {
		t.Fatal("expected error for unavailable socket")
	}
}

func TestSyslogEmitter_ReconnectAfterRestart(t *testing.T) {
	socketPath := testSocketPath("reconnect")
	conn := listenUnixgram(t, socketPath)

	emitter, err := NewSyslogEmitter(SyslogConfig{SocketPath: socketPath, Hostname: "h", AppName: "aura"})
	if err != nil {
		t.Fatalf("NewSyslogEmitter failed: %v", err)
	}
	defer emitter.Close()

	if err := emitter.Emit(NewEpochRotated(time.Now(), 1, 2)); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	// Simulate a syslog restart: tear the socket down and bring it back.
	conn.Close()
	os.Remove(socketPath)
	conn2 := listenUnixgram(t, socketPath)

	// The first write after restart may fail while the emitter notices;
	// the reconnect path must recover within a few attempts.
	var delivered bool
	for i := 0; i < 5 && !delivered; i++ {
		if err := emitter.Emit(NewEpochRotated(time.Now(), 2, 3)); err != nil {
			time.Sleep(150 * time.Millisecond)
			continue
		}
		delivered = true
	}
	if !delivered {
		t.Fatal("emitter did not recover after socket restart")
	}

	buf := make([]byte, 4096)
	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn2.Read(buf); err != nil {
		t.Fatalf("no message after reconnect: %v", err)
	}
}
