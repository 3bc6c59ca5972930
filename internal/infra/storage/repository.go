// Package storage provides the persistence layer for the survival server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// ThirstRecord is the durable representation of one survivor's thirst state.
// Authoritative across restarts; the in-memory store is authoritative
// between saves.
type ThirstRecord struct {
	XUID      string    `json:"xuid" db:"xuid"`
	Name      string    `json:"name" db:"player_name"`
	Level     float64   `json:"level" db:"thirst"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ThirstRepository defines keyed lookup, insert-or-update, and listing over
// thirst records. The core depends only on these semantics, not on SQL.
type ThirstRepository interface {
	// Get retrieves one record by XUID. Absent records return (nil, nil).
	Get(ctx context.Context, xuid string) (*ThirstRecord, error)

	// Upsert inserts the record or updates the existing one. Idempotent.
	Upsert(ctx context.Context, rec ThirstRecord) error

	// GetAll lists every known record.
	GetAll(ctx context.Context) ([]ThirstRecord, error)
}

// ItemEffect mirrors a timed consequence attached to a consumable item.
type ItemEffect struct {
	Name      string `json:"name"`
	Duration  int    `json:"duration"`
	Amplifier int    `json:"amplifier"`
}

// ItemRecord describes the thirst impact of one consumable item.
type ItemRecord struct {
	ItemID      string       `json:"item_id" db:"item_id"`
	Name        string       `json:"name" db:"item_name"`
	ThirstDelta float64      `json:"thirst_delta" db:"thirst_delta"`
	Effects     []ItemEffect `json:"effects" db:"effects"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// ItemRepository defines the item catalog persistence contract.
type ItemRepository interface {
	// Get retrieves one item by id. Absent items return (nil, nil).
	Get(ctx context.Context, itemID string) (*ItemRecord, error)

	// Upsert inserts or replaces the item definition.
	Upsert(ctx context.Context, rec ItemRecord) error

	// GetAll lists the full catalog ordered by name.
	GetAll(ctx context.Context) ([]ItemRecord, error)
}

// EventRecord mirrors a survival event for the durable journal.
type EventRecord struct {
	ID         string                 `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	EventType  string                 `json:"event_type" db:"event_type"`
	SurvivorID string                 `json:"survivor_id" db:"survivor_id"`
	Payload    map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the append-only journal contract.
type EventRepository interface {
	Append(ctx context.Context, rec EventRecord) error
}
