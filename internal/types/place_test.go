package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceIDStableUnderCoordinateJitter(t *testing.T) {
	a := PlaceIDFor("123 Example St, Seattle", GeoPoint{Lat: 47.600001, Lon: -122.300002})
	b := PlaceIDFor("123 Example St, Seattle", GeoPoint{Lat: 47.600004, Lon: -122.299998})
	assert.Equal(t, a, b, "sub-meter jitter must not change the place id")
}

func TestPlaceIDDistinguishesPlaces(t *testing.T) {
	base := PlaceIDFor("123 Example St, Seattle", GeoPoint{Lat: 47.6, Lon: -122.3})

	otherName := PlaceIDFor("124 Example St, Seattle", GeoPoint{Lat: 47.6, Lon: -122.3})
	assert.NotEqual(t, base, otherName)

	otherSpot := PlaceIDFor("123 Example St, Seattle", GeoPoint{Lat: 47.601, Lon: -122.3})
	assert.NotEqual(t, base, otherSpot)
}

func TestPlaceIDShape(t *testing.T) {
	id := PlaceIDFor("anywhere", GeoPoint{})
	assert.Len(t, id, 32)
}
