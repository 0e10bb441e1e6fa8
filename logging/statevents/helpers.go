package statevents

import (
	"context"

	"statforge/logging"
)

const (
	// EventBaseSet is emitted when a stat's base value is overwritten.
	EventBaseSet logging.EventType = "stats.base_set"
	// EventModifierAdded is emitted when a modifier lands on a stat.
	EventModifierAdded logging.EventType = "stats.modifier_added"
	// EventModifierRemoved is emitted when modifiers are removed manually.
	EventModifierRemoved logging.EventType = "stats.modifier_removed"
	// EventModifierExpired is emitted when the scheduler evicts a modifier.
	EventModifierExpired logging.EventType = "stats.modifier_expired"
	// EventOwnerRemoved is emitted when an owner's stats are cleaned up.
	EventOwnerRemoved logging.EventType = "lifecycle.owner_removed"
	// EventSyncPublished is emitted when a settled snapshot goes out.
	EventSyncPublished logging.EventType = "replication.sync_published"
)

// BaseSetPayload captures a base value overwrite.
type BaseSetPayload struct {
	Value float64 `json:"value"`
}

// ModifierAddedPayload captures a landed modifier.
type ModifierAddedPayload struct {
	ModifierID string  `json:"modifierId"`
	Source     string  `json:"source"`
	Kind       string  `json:"kind"`
	Value      float64 `json:"value"`
	DurationMs int64   `json:"durationMs,omitempty"`
}

// ModifierRemovedPayload captures a manual removal.
type ModifierRemovedPayload struct {
	Count  int    `json:"count"`
	Source string `json:"source,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// ModifierExpiredPayload captures a scheduler eviction.
type ModifierExpiredPayload struct {
	ModifierID string `json:"modifierId"`
	Source     string `json:"source,omitempty"`
}

// OwnerRemovedPayload captures the scope of an owner cleanup.
type OwnerRemovedPayload struct {
	Stats int `json:"stats"`
}

// SyncPublishedPayload captures a replicated snapshot's settled value.
type SyncPublishedPayload struct {
	Value     float64 `json:"value"`
	Modifiers int     `json:"modifiers"`
}

// BaseSet publishes a base overwrite event.
func BaseSet(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, stat string, payload BaseSetPayload) {
	publish(ctx, pub, EventBaseSet, owner, stat, logging.CategoryStats, payload)
}

// ModifierAdded publishes a modifier landing event.
func ModifierAdded(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, stat string, payload ModifierAddedPayload) {
	publish(ctx, pub, EventModifierAdded, owner, stat, logging.CategoryStats, payload)
}

// ModifierRemoved publishes a manual removal event.
func ModifierRemoved(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, stat string, payload ModifierRemovedPayload) {
	publish(ctx, pub, EventModifierRemoved, owner, stat, logging.CategoryStats, payload)
}

// ModifierExpired publishes a scheduler eviction event.
func ModifierExpired(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, stat string, payload ModifierExpiredPayload) {
	publish(ctx, pub, EventModifierExpired, owner, stat, logging.CategoryStats, payload)
}

// OwnerRemoved publishes an owner cleanup event.
func OwnerRemoved(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, payload OwnerRemovedPayload) {
	publish(ctx, pub, EventOwnerRemoved, owner, "", logging.CategoryLifecycle, payload)
}

// SyncPublished publishes a replication event.
func SyncPublished(ctx context.Context, pub logging.Publisher, owner logging.EntityRef, stat string, payload SyncPublishedPayload) {
	publish(ctx, pub, EventSyncPublished, owner, stat, logging.CategoryReplication, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, owner logging.EntityRef, stat, category string, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Owner:    owner,
		Stat:     stat,
		Severity: logging.SeverityInfo,
		Category: category,
		Payload:  payload,
	})
}
