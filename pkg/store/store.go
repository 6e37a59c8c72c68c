package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aura-comms/aura/pkg/ids"
)

// Stats summarizes a backend's contents.
type Stats struct {
	KeyCount  int
	TotalSize int64
	// AvailableSpace is bytes remaining, when the backend can report it.
	// Nil for in-memory backends.
	AvailableSpace *int64
}

// Store is the storage effect contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Store writes value under key, replacing any existing value.
	Store(key string, value []byte) error
	// Retrieve returns the value under key, or (nil, false, nil) if absent.
	Retrieve(key string) ([]byte, bool, error)
	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string) error
	// ListKeys returns all keys with the given prefix in lexicographic
	// order.
	ListKeys(prefix string) ([]string, error)
	// Exists reports whether key is present.
	Exists(key string) (bool, error)
	// Stats returns backend statistics.
	Stats() (Stats, error)
	// Close releases backend resources.
	Close() error
}

// Reserved namespaces for persisted state.
const (
	NamespaceJournal     = "journal"
	NamespaceTree        = "tree"
	NamespaceMaintenance = "maintenance"
	NamespaceReceipt     = "receipt"
	NamespaceCache       = "cache"
)

// Key builds a <namespace>:<kind>:<id> key.
func Key(namespace, kind, id string) string {
	return namespace + ":" + kind + ":" + id
}

// EpochKey builds a key whose final segment is an epoch, making the entry
// eligible for floor-based garbage collection.
func EpochKey(namespace, kind string, epoch ids.Epoch) string {
	return fmt.Sprintf("%s:%s:%d", namespace, kind, uint64(epoch))
}

// EpochSuffix extracts the epoch suffix of a key, if its final segment is a
// decimal number.
func EpochSuffix(key string) (ids.Epoch, bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 || i == len(key)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(key[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ids.Epoch(n), true
}

// SweepBelowFloor deletes every entry under prefix whose epoch suffix is
// strictly less than floor. Returns the deleted keys.
func SweepBelowFloor(s Store, prefix string, floor ids.Epoch) ([]string, error) {
	keys, err := s.ListKeys(prefix)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, k := range keys {
		epoch, ok := EpochSuffix(k)
		if !ok || epoch >= floor {
			continue
		}
		if err := s.Remove(k); err != nil {
			return deleted, err
		}
		deleted = append(deleted, k)
	}
	return deleted, nil
}
