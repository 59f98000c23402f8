package types

import "time"

// Confidence is the coarse trust label on a produced entrance point.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method tags record which resolution strategy produced the entrance.
const (
	MethodPolygonPath    = "polygon_path_projection"
	MethodBBoxFallback   = "bbox_fallback"
	MethodUserCorrection = "user_correction"
)

// EntranceEstimate is the heuristic output before any correction override.
type EntranceEstimate struct {
	Point      GeoPoint   `json:"point"`
	Method     string     `json:"method"`
	Confidence Confidence `json:"confidence"`
}

// EntrancePoint is the entrance as rendered in the response payload.
type EntrancePoint struct {
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	Confidence Confidence `json:"confidence"`
	Accessible bool       `json:"accessible"`
}

// EntranceResponse is the structured result handed to the collaborator UI.
type EntranceResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Center         GeoPoint        `json:"center"`
	Box            BoundingBox     `json:"bbox"`
	Method         string          `json:"method"`
	Entrance       EntrancePoint   `json:"entrance"`
	Dropoff        *GeoPoint       `json:"dropoff,omitempty"`
	Footprint      *GeoJSONPolygon `json:"footprint,omitempty"`
	Paths          []GeoJSONLine   `json:"paths"`
	VerifiedCount  int             `json:"verifiedCount"`
	LastVerifiedAt *time.Time      `json:"lastVerifiedAt,omitempty"`
}
