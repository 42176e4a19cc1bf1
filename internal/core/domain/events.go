package domain

import "time"

// Marker event kinds emitted by the reports service.
const (
	MarkerCreated = "created"
	MarkerUpdated = "updated"
	MarkerDeleted = "deleted"
)

// MarkerEvent is a change notification for the marker read model.
// Deleted events carry only MarkerID.
type MarkerEvent struct {
	Kind     string    `json:"kind"`
	Marker   *Marker   `json:"marker,omitempty"`
	MarkerID string    `json:"marker_id,omitempty"`
	At       time.Time `json:"at"`
}

// ClusterExpansion records a tap that zoomed into a cluster.
type ClusterExpansion struct {
	SessionID  string    `json:"session_id"`
	Center     GeoPoint  `json:"center"`
	PointCount int       `json:"point_count"`
	FromZoom   float64   `json:"from_zoom"`
	ToZoom     float64   `json:"to_zoom"`
	At         time.Time `json:"at"`
}

// MarkerOpen records a tap that opened a single marker.
type MarkerOpen struct {
	SessionID string    `json:"session_id"`
	MarkerID  string    `json:"marker_id"`
	At        time.Time `json:"at"`
}
