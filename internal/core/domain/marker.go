package domain

import "time"

// MarkerStatus is the lifecycle state of a reported hazard.
type MarkerStatus string

const (
	StatusReported     MarkerStatus = "reported"
	StatusAcknowledged MarkerStatus = "acknowledged"
	StatusRecovered    MarkerStatus = "recovered"
)

// Severity grades. Plain ints so they sort naturally in SQL.
const (
	SeverityLow      = 1
	SeverityMedium   = 2
	SeverityHigh     = 3
	SeverityCritical = 4
)

// Marker is a hazard report projected onto the map. IsPending marks reports
// still waiting for moderation; they render with the pending pin regardless
// of status.
type Marker struct {
	ID        string       `json:"id"`
	Location  GeoPoint     `json:"location"`
	Status    MarkerStatus `json:"status"`
	Severity  int          `json:"severity"`
	IsPending bool         `json:"is_pending"`
	Category  string       `json:"category,omitempty"`
	Title     string       `json:"title,omitempty"`
	Distance  *float64     `json:"distance,omitempty"` // computed field
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Recovered reports whether the underlying hazard is resolved.
func (m *Marker) Recovered() bool { return m.Status == StatusRecovered }
