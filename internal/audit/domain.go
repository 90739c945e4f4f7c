package audit

import "time"

// Action enumerates audited operations.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionPost   Action = "POST"
	ActionVoid   Action = "VOID"
)

// Entry is one immutable audit record. Before and After hold optional
// snapshots of the entity around the mutation; they are serialised to
// JSON at write time. Entries reference entities by type and id only,
// so they survive the entity being voided or deleted.
type Entry struct {
	ActorID    int64
	Action     Action
	Entity     string
	EntityID   string
	Before     any
	After      any
	SourceAddr string
	At         time.Time
}

// Record is a persisted audit row as read back from the trail.
type Record struct {
	ID         int64
	ActorID    int64
	ActorName  string
	Action     Action
	Entity     string
	EntityID   string
	Before     []byte
	After      []byte
	SourceAddr string
	At         time.Time
}

// TrailFilters narrows a trail query.
type TrailFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes pagination of a trail result.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
}

// TrailResult bundles rows with paging metadata.
type TrailResult struct {
	Rows   []Record
	Paging PagingInfo
}
