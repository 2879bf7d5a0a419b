package domain

// PointKind tags a point in the galaxy view
type PointKind string

const (
	PointKindDocument PointKind = "document"
	PointKindQuery    PointKind = "query"
	PointKindHistory  PointKind = "history" // Past query from the search log
)

// GalaxyRadius is the display radius the galaxy view is scaled to
const GalaxyRadius = 15.0

// GalaxyPoint is one projected point of the galaxy view
type GalaxyPoint struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Kind     PointKind `json:"kind"`
	Ext      string    `json:"ext,omitempty"`
	Page     int       `json:"page,omitempty"`
	Position Point3D   `json:"position"`
}

// GalaxyView is the 3-D visualization of a session's collection
type GalaxyView struct {
	SessionID string        `json:"session_id"`
	Query     string        `json:"query,omitempty"`
	Points    []GalaxyPoint `json:"points"`
	// HistoryIncluded is false when the query log could not be read
	HistoryIncluded bool `json:"history_included"`
}

// Answer is an extractive answer assembled from retrieved passages
type Answer struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer"`
	Sources []SearchHit `json:"sources"`
}
