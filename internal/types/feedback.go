package types

import "time"

// Correction is one append-only entrance relocation submitted by a verified
// user. The latest record per place wins on read and is treated as ground
// truth by the resolver.
type Correction struct {
	ID          int64     `json:"id"`
	PlaceID     string    `json:"placeId"`
	Entrance    GeoPoint  `json:"entrance"`
	Accessible  bool      `json:"accessible"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Confirmation is one append-only affirmation of an existing entrance.
// The fingerprint is advisory; it is not a uniqueness constraint.
type Confirmation struct {
	ID          int64     `json:"id"`
	PlaceID     string    `json:"placeId"`
	Fingerprint string    `json:"fingerprint"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ConfirmationStats is the social-proof summary surfaced per place.
type ConfirmationStats struct {
	Count           int        `json:"count"`
	LastConfirmedAt *time.Time `json:"lastConfirmedAt,omitempty"`
}
