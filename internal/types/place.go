package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// PlaceIDFor derives the stable identifier joining geocode results with
// corrections and confirmations. Coordinates are rounded to five decimal
// places (~1.1 m) so repeated geocodes of the same place hash identically
// despite float jitter in provider responses.
func PlaceIDFor(displayName string, center GeoPoint) string {
	canonical := fmt.Sprintf("%s|%.5f|%.5f", displayName, center.Lat, center.Lon)
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
