package statforge

import "statforge/stats"

// ProtocolVersion tags every replication message so observers can reject
// incompatible producers.
const ProtocolVersion = 1

const (
	MessageTypeSync     = "sync"
	MessageTypeBulkSync = "bulkSync"
)

// SyncMessage carries one settled stat snapshot to observers.
type SyncMessage struct {
	Ver   int            `json:"ver"`
	Type  string         `json:"type"`
	Owner string         `json:"owner"`
	Path  string         `json:"path"`
	Stat  stats.Snapshot `json:"stat"`
}

// BulkSyncMessage seeds a newly attached observer with an owner's full
// current state.
type BulkSyncMessage struct {
	Ver   int                       `json:"ver"`
	Type  string                    `json:"type"`
	Owner string                    `json:"owner"`
	Stats map[string]stats.Snapshot `json:"stats"`
}

// NewSyncMessage builds a versioned incremental sync envelope.
func NewSyncMessage(owner, path string, snapshot stats.Snapshot) SyncMessage {
	return SyncMessage{
		Ver:   ProtocolVersion,
		Type:  MessageTypeSync,
		Owner: owner,
		Path:  path,
		Stat:  snapshot,
	}
}

// NewBulkSyncMessage builds a versioned full-state envelope.
func NewBulkSyncMessage(owner string, snapshots map[string]stats.Snapshot) BulkSyncMessage {
	return BulkSyncMessage{
		Ver:   ProtocolVersion,
		Type:  MessageTypeBulkSync,
		Owner: owner,
		Stats: snapshots,
	}
}
