package types

import "time"

// Entity carries bookkeeping timestamps for persisted records.
// These timestamps are wall-clock metadata only; subscription arithmetic never
// reads them.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with t (UTC).
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch sets UpdatedAt to t (UTC).
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}
