package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action enumerates the mutation kinds recorded in the ledger.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionImport Action = "import"
	ActionExport Action = "export"
)

// Entry is one immutable record in the compliance ledger. Entries are only
// ever inserted; there is no update or delete surface anywhere in the system.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   string         `json:"actor_id"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Action    Action         `json:"action"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	At        time.Time      `json:"at"`
}

// Recorder persists ledger entries. Domain services depend on this interface
// so tests can capture entries in memory.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Filters narrow the read-only audit listing.
type Filters struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  string
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}
