package stationfinder

import "fmt"

// StationKind distinguishes station-level aggregates from granular stops.
type StationKind string

const (
	// StopArea is a station-level aggregate place; it may contain
	// multiple stop points (platforms, entrances).
	StopArea StationKind = "stop_area"
	// StopPoint is a granular platform or stop within a stop area.
	StopPoint StationKind = "stop_point"
)

// Station is one physical stop from the reference dataset.
//
// ParentID is a non-owning reference by raw dataset id; resolve it through
// StationIndex.StationByID. Empty means the station has no parent.
type Station struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        StationKind `json:"kind"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	MainStation bool        `json:"is_main_station"`
	CityAlias   bool        `json:"is_city"`
	ParentID    string      `json:"parent_id,omitempty"`
}

// DefaultAuthority is the short code embedded in canonical station ids
// when no other authority is configured.
const DefaultAuthority = "SNCF"

// FormatStationID builds the canonical id form "stop_area:<AUTHORITY>:<raw-id>".
func FormatStationID(authority, rawID string) string {
	return fmt.Sprintf("stop_area:%s:%s", authority, rawID)
}

// PlaceRef is a place returned by an external transit-data search service.
type PlaceRef struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      StationKind `json:"kind"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
}

// PlaceSearcher is the external nearby-places capability consumed by the
// resolver's fallback path. Implementations are supplied by an upstream API
// client; both methods may return an error, which the resolver degrades to
// zero candidates.
type PlaceSearcher interface {
	// SearchNearby returns places within radiusM meters of the given point.
	SearchNearby(lat, lon float64, radiusM, limit int) ([]PlaceRef, error)
	// SearchPlaces returns places matching a free-text query.
	SearchPlaces(query string, limit int) ([]PlaceRef, error)
}

// station converts an externally sourced place to a Station record.
func (p PlaceRef) station() *Station {
	kind := p.Kind
	if kind == "" {
		kind = StopArea
	}
	return &Station{
		ID:        p.ID,
		Name:      p.Name,
		Kind:      kind,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}
}
