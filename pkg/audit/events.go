package audit

import (
	"strconv"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

// Severity represents syslog severity levels per RFC 5424.
type Severity int

const (
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 5
	SeverityInfo    Severity = 6
)

// String returns the human-readable name for a severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a security-relevant audit event.
type EventType string

const (
	EventGuardDeny         EventType = "guard.deny"
	EventGuardDefer        EventType = "guard.defer"
	EventSnapshotProposed  EventType = "snapshot.proposed"
	EventSnapshotCompleted EventType = "snapshot.completed"
	EventSnapshotFailed    EventType = "snapshot.failed"
	EventAdminReplaced     EventType = "admin.replaced"
	EventEpochRotated      EventType = "epoch.rotated"
	EventDivergence        EventType = "journal.divergence"
	EventRecoveryInitiated EventType = "recovery.initiated"
	EventRecoveryApproved  EventType = "recovery.approved"
	EventRecoveryCompleted EventType = "recovery.completed"
)

// AllEventTypes returns every defined event type for iteration and validation.
func AllEventTypes() []EventType {
	return []EventType{
		EventGuardDeny,
		EventGuardDefer,
		EventSnapshotProposed,
		EventSnapshotCompleted,
		EventSnapshotFailed,
		EventAdminReplaced,
		EventEpochRotated,
		EventDivergence,
		EventRecoveryInitiated,
		EventRecoveryApproved,
		EventRecoveryCompleted,
	}
}

var severityMap = map[EventType]Severity{
	EventGuardDeny:         SeverityWarning,
	EventGuardDefer:        SeverityNotice,
	EventSnapshotProposed:  SeverityNotice,
	EventSnapshotCompleted: SeverityNotice,
	EventSnapshotFailed:    SeverityWarning,
	EventAdminReplaced:     SeverityWarning,
	EventEpochRotated:      SeverityInfo,
	EventDivergence:        SeverityWarning,
	EventRecoveryInitiated: SeverityWarning,
	EventRecoveryApproved:  SeverityNotice,
	EventRecoveryCompleted: SeverityNotice,
}

// SeverityFor returns the syslog severity for a given event type.
// Unknown event types return SeverityWarning (fail-secure: treat unknowns
// as concerning).
func SeverityFor(et EventType) Severity {
	if s, ok := severityMap[et]; ok {
		return s
	}
	return SeverityWarning
}

// Event represents a security-relevant audit event with structured fields.
type Event struct {
	Type      EventType
	Severity  Severity
	Timestamp time.Time
	ActorID   string            // authority, device, or leaf depending on event
	Details   map[string]string // Event-specific fields
}

// NewGuardDeny records a guard-chain denial.
func NewGuardDeny(at time.Time, principal ids.AuthorityId, operation, resource, reason string) Event {
	return Event{
		Type:      EventGuardDeny,
		Severity:  SeverityWarning,
		Timestamp: at,
		ActorID:   principal.String(),
		Details: map[string]string{
			"operation": operation,
			"resource":  resource,
			"reason":    reason,
		},
	}
}

// NewGuardDefer records an operation deferred to a proposal or ceremony.
func NewGuardDefer(at time.Time, principal ids.AuthorityId, operation, deferredAs string) Event {
	return Event{
		Type:      EventGuardDefer,
		Severity:  SeverityNotice,
		Timestamp: at,
		ActorID:   principal.String(),
		Details: map[string]string{
			"operation":   operation,
			"deferred_as": deferredAs,
		},
	}
}

// NewSnapshotProposed records the start of a snapshot ceremony.
func NewSnapshotProposed(at time.Time, author ids.AuthorityId, epoch ids.Epoch, root ids.Hash32) Event {
	return Event{
		Type:      EventSnapshotProposed,
		Severity:  SeverityNotice,
		Timestamp: at,
		ActorID:   author.String(),
		Details: map[string]string{
			"epoch": formatEpoch(epoch),
			"root":  root.String(),
		},
	}
}

// NewSnapshotCompleted records a snapshot that was attested and stored.
func NewSnapshotCompleted(at time.Time, author ids.AuthorityId, epoch ids.Epoch, root ids.Hash32, droppedRecords int) Event {
	return Event{
		Type:      EventSnapshotCompleted,
		Severity:  SeverityNotice,
		Timestamp: at,
		ActorID:   author.String(),
		Details: map[string]string{
			"epoch":   formatEpoch(epoch),
			"root":    root.String(),
			"dropped": strconv.Itoa(droppedRecords),
		},
	}
}

// NewSnapshotFailed records a snapshot ceremony that aborted.
func NewSnapshotFailed(at time.Time, author ids.AuthorityId, epoch ids.Epoch, reason string) Event {
	return Event{
		Type:      EventSnapshotFailed,
		Severity:  SeverityWarning,
		Timestamp: at,
		ActorID:   author.String(),
		Details: map[string]string{
			"epoch":  formatEpoch(epoch),
			"reason": reason,
		},
	}
}

// NewAdminReplaced records an administrative authority replacement and the
// epoch at which the old authority's operations stop being accepted.
func NewAdminReplaced(at time.Time, oldAdmin, newAdmin ids.AuthorityId, activation ids.Epoch) Event {
	return Event{
		Type:      EventAdminReplaced,
		Severity:  SeverityWarning,
		Timestamp: at,
		ActorID:   newAdmin.String(),
		Details: map[string]string{
			"old_admin":        oldAdmin.String(),
			"activation_epoch": formatEpoch(activation),
		},
	}
}

// NewEpochRotated records an account epoch transition.
func NewEpochRotated(at time.Time, from, to ids.Epoch) Event {
	return Event{
		Type:      EventEpochRotated,
		Severity:  SeverityInfo,
		Timestamp: at,
		Details: map[string]string{
			"from": formatEpoch(from),
			"to":   formatEpoch(to),
		},
	}
}

// NewDivergence records a replay divergence.
func NewDivergence(at time.Time, epoch ids.Epoch, record ids.Hash32, reason string) Event {
	return Event{
		Type:      EventDivergence,
		Severity:  SeverityWarning,
		Timestamp: at,
		Details: map[string]string{
			"epoch":  formatEpoch(epoch),
			"record": record.String(),
			"reason": reason,
		},
	}
}

// NewRecoveryInitiated records the start of a guardian recovery.
func NewRecoveryInitiated(at time.Time, initiator ids.AuthorityId, lostLeaf ids.LeafId) Event {
	return Event{
		Type:      EventRecoveryInitiated,
		Severity:  SeverityWarning,
		Timestamp: at,
		ActorID:   initiator.String(),
		Details: map[string]string{
			"lost_leaf": strconv.FormatUint(uint64(lostLeaf), 10),
		},
	}
}

// NewRecoveryApproved records a guardian approval.
func NewRecoveryApproved(at time.Time, guardian ids.LeafId, lostLeaf ids.LeafId) Event {
	return Event{
		Type:      EventRecoveryApproved,
		Severity:  SeverityNotice,
		Timestamp: at,
		ActorID:   strconv.FormatUint(uint64(guardian), 10),
		Details: map[string]string{
			"lost_leaf": strconv.FormatUint(uint64(lostLeaf), 10),
		},
	}
}

// NewRecoveryCompleted records a finished recovery ceremony.
func NewRecoveryCompleted(at time.Time, lostLeaf, newLeaf ids.LeafId, approvals int) Event {
	return Event{
		Type:      EventRecoveryCompleted,
		Severity:  SeverityNotice,
		Timestamp: at,
		Details: map[string]string{
			"lost_leaf": strconv.FormatUint(uint64(lostLeaf), 10),
			"new_leaf":  strconv.FormatUint(uint64(newLeaf), 10),
			"approvals": strconv.Itoa(approvals),
		},
	}
}

func formatEpoch(e ids.Epoch) string {
	return strconv.FormatUint(uint64(e), 10)
}
