package stationfinder

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Fallback-path tuning. Radius and limits mirror the upstream search
// behavior this engine was built against.
const (
	nearbyMaxDistanceKm = 2.0
	nearbyRadiusM       = 500
	nearbyLimit         = 5
	fallbackSearchLimit = 10
)

// Ranking weights for externally searched places.
const (
	scoreStopArea    = 100
	scoreStopPoint   = 50
	scoreCityInName  = 30
	scoreKeyword     = 10
	scoreMainStation = 20
)

// stationKeywords are tokens whose presence suggests a place is a station.
var stationKeywords = []string{
	"gare", "station", "centrale", "central", "terminus", "terminal", "tgv",
	"principale", "main", "sncf", "saint", "st-", "st ",
}

// secondaryIndicators mark a place as something other than a city's main
// station (bus terminals, annex halls, tram stops).
var secondaryIndicators = []string{"bis", "routiere", "annexe", "bus", "tram"}

// cityPrefixes are administrative prefixes stripped from normalized city
// queries ("ville de lyon" -> "lyon"). Apostrophes are already spaces after
// normalization, so "ville d'angers" arrives as "ville d angers".
var cityPrefixes = []string{"ville de ", "commune de ", "ville d ", "commune d "}

func stripCityPrefix(norm string) string {
	for _, prefix := range cityPrefixes {
		if strings.HasPrefix(norm, prefix) {
			return strings.TrimPrefix(norm, prefix)
		}
	}
	return norm
}

// CuratedStation is one hand-maintained well-known station.
type CuratedStation struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"longitude"`
}

var curatedValidate = validator.New()

// CuratedStations is a small city -> station -> coordinates table used as a
// fast-path and fallback data source. It is owned by the Resolver it is
// bound to: every mutation invalidates the owner's caches for the affected
// city. Safe for concurrent use.
type CuratedStations struct {
	mu      sync.RWMutex
	entries map[string][]CuratedStation // normalized city -> entries, in order
	display map[string]string           // normalized city -> original spelling
	owners  []*Resolver
}

// NewCuratedStations returns an empty curated table.
func NewCuratedStations() *CuratedStations {
	return &CuratedStations{
		entries: make(map[string][]CuratedStation),
		display: make(map[string]string),
	}
}

// DefaultCuratedStations returns the built-in table of major French
// stations.
func DefaultCuratedStations() *CuratedStations {
	t := NewCuratedStations()
	seed := []struct {
		city string
		name string
		lat  float64
		lon  float64
	}{
		{"Paris", "Gare de Lyon", 48.844, 2.373},
		{"Paris", "Gare du Nord", 48.881, 2.355},
		{"Paris", "Gare Montparnasse", 48.842, 2.321},
		{"Paris", "Gare de l'Est", 48.877, 2.359},
		{"Paris", "Gare Saint-Lazare", 48.876, 2.325},
		{"Paris", "Gare d'Austerlitz", 48.842, 2.366},
		{"Paris", "Gare de Bercy", 48.839, 2.382},
		{"Marseille", "Saint-Charles", 43.303, 5.380},
		{"Lyon", "Part-Dieu", 45.760, 4.860},
		{"Lyon", "Perrache", 45.750, 4.826},
		{"Bordeaux", "Saint-Jean", 44.826, -0.556},
		{"Lille", "Flandres", 50.638, 3.072},
		{"Lille", "Europe", 50.639, 3.075},
		{"Toulouse", "Matabiau", 43.611, 1.454},
		{"Nice", "Ville", 43.704, 7.262},
		{"Strasbourg", "Centrale", 48.585, 7.735},
		{"Nantes", "Centrale", 47.217, -1.542},
		{"Rennes", "Centrale", 48.103, -1.672},
		{"Grenoble", "Gare", 45.192, 5.716},
	}
	for _, s := range seed {
		// Built-in entries are known good; Add cannot fail here.
		if err := t.Add(s.city, s.name, s.lat, s.lon); err != nil {
			panic(fmt.Sprintf("built-in curated station %q: %v", s.name, err))
		}
	}
	return t
}

// bind registers a resolver whose caches must be invalidated on mutation.
func (t *CuratedStations) bind(r *Resolver) {
	t.mu.Lock()
	t.owners = append(t.owners, r)
	t.mu.Unlock()
}

// Add inserts or updates a station entry. The coordinates are validated
// against WGS84 ranges; an invalid entry is rejected and the table is left
// unchanged.
func (t *CuratedStations) Add(city, name string, lat, lon float64) error {
	entry := CuratedStation{
		Name:      strings.TrimSpace(name),
		Latitude:  lat,
		Longitude: lon,
	}
	if err := curatedValidate.Struct(entry); err != nil {
		return fmt.Errorf("curated station %q: %w", name, err)
	}

	city = strings.TrimSpace(city)
	norm := stripCityPrefix(Normalize(city))
	if norm == "" {
		return fmt.Errorf("curated station %q: empty city", name)
	}

	t.mu.Lock()
	if _, seen := t.display[norm]; !seen {
		t.display[norm] = city
	}
	replaced := false
	for i, e := range t.entries[norm] {
		if Normalize(e.Name) == Normalize(entry.Name) {
			t.entries[norm][i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		t.entries[norm] = append(t.entries[norm], entry)
	}
	owners := t.owners
	t.mu.Unlock()

	invalidateCity(owners, norm)
	return nil
}

// match picks the curated entry for a city: with a station name, the first
// entry whose normalized name contains or is contained by the query; with no
// name, or when nothing matches, the city's first entry.
func (t *CuratedStations) match(normCity, normName string) (CuratedStation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.entries[normCity]
	if len(entries) == 0 {
		return CuratedStation{}, false
	}
	if normName != "" {
		for _, e := range entries {
			en := Normalize(e.Name)
			if strings.Contains(en, normName) || strings.Contains(normName, en) {
				return e, true
			}
		}
	}
	return entries[0], true
}

// Snapshot returns a copy of the table keyed by original city spellings,
// each station mapped to its (lat, lon) pair.
func (t *CuratedStations) Snapshot() map[string]map[string][2]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]map[string][2]float64, len(t.entries))
	for norm, entries := range t.entries {
		city := t.display[norm]
		if city == "" {
			city = norm
		}
		m := make(map[string][2]float64, len(entries))
		for _, e := range entries {
			m[e.Name] = [2]float64{e.Latitude, e.Longitude}
		}
		out[city] = m
	}
	return out
}

// Len returns the total number of curated entries.
func (t *CuratedStations) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, entries := range t.entries {
		n += len(entries)
	}
	return n
}

// ExportJSON writes the table to path as city -> station -> [lat, lon].
func (t *CuratedStations) ExportJSON(path string) error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding curated stations: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ExportYAML writes the table to path in the same shape as ExportJSON.
func (t *CuratedStations) ExportYAML(path string) error {
	data, err := yaml.Marshal(t.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding curated stations: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ImportJSON merges entries from a city -> station -> [lat, lon] file.
// Malformed or out-of-range entries are skipped with a warning; valid ones
// are applied. All owner caches are cleared afterwards.
func (t *CuratedStations) ImportJSON(path string) error {
	return t.importFile(path, json.Unmarshal)
}

// ImportYAML merges entries from a YAML file shaped like ExportYAML output.
func (t *CuratedStations) ImportYAML(path string) error {
	return t.importFile(path, yaml.Unmarshal)
}

func (t *CuratedStations) importFile(path string, unmarshal func([]byte, any) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var raw map[string]map[string][]float64
	if err := unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	for city, stations := range raw {
		for name, coords := range stations {
			if len(coords) != 2 {
				log.Printf("warning: curated import: %s/%s has %d coordinates, want 2", city, name, len(coords))
				continue
			}
			if err := t.Add(city, name, coords[0], coords[1]); err != nil {
				log.Printf("warning: curated import: %v", err)
			}
		}
	}

	t.mu.RLock()
	owners := t.owners
	t.mu.RUnlock()
	invalidateAll(owners)
	return nil
}

// Cities lists the table's cities in original spelling, sorted.
func (t *CuratedStations) Cities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for norm := range t.entries {
		if city := t.display[norm]; city != "" {
			names = append(names, city)
		} else {
			names = append(names, norm)
		}
	}
	sort.Strings(names)
	return names
}

func invalidateCity(owners []*Resolver, norm string) {
	for _, r := range owners {
		r.cityCache.removeMatching(func(key string) bool {
			return key == "city:"+norm
		})
		r.stationCache.removeMatching(func(key string) bool {
			return strings.HasPrefix(key, "city_station:"+norm+":") ||
				strings.HasPrefix(key, "fallback:"+norm+":")
		})
		r.searchCache.clear()
	}
}

func invalidateAll(owners []*Resolver) {
	for _, r := range owners {
		r.cityCache.clear()
		r.stationCache.clear()
		r.coordCache.clear()
		r.searchCache.clear()
	}
}

// FindStationWithFallback resolves a station through the curated table
// first: a curated hit yields coordinates that are resolved through the
// coordinate-lookup path (index scan, then the external nearby search). When
// the curated table has no entry for the city, the external place search is
// consulted and its results ranked. Nil when every source comes up empty.
func (r *Resolver) FindStationWithFallback(city, stationName string) *Station {
	r.maintain()

	normCity := stripCityPrefix(Normalize(city))
	normName := Normalize(stationName)
	key := "fallback:" + normCity + ":" + normName
	if cached, ok := r.stationCache.get(key); ok {
		return cached
	}

	if entry, ok := r.curated.match(normCity, normName); ok {
		if st := r.resolveCoordinates(entry.Latitude, entry.Longitude); st != nil {
			r.stationCache.put(key, st)
			return st
		}
	}

	if r.places == nil {
		r.stationCache.put(key, nil)
		return nil
	}

	query := strings.TrimSpace(city)
	if stationName != "" {
		query += " " + strings.TrimSpace(stationName)
	}
	places, err := r.places.SearchPlaces(query, fallbackSearchLimit)
	if err != nil {
		// A failed collaborator call is not cached: the same query may
		// succeed once the source recovers. An empty result from a
		// healthy source is cached like any other value.
		log.Printf("warning: place search %q failed: %v", query, err)
		return nil
	}

	var result *Station
	if ranked := rankPlaces(places, normCity); len(ranked) > 0 {
		result = ranked[0].station()
	}
	r.stationCache.put(key, result)
	return result
}

// resolveCoordinates turns a coordinate pair into a Station: nearest indexed
// station first, then the external nearby search, preferring stop areas.
func (r *Resolver) resolveCoordinates(lat, lon float64) *Station {
	if st := r.FindStationByCoordinates(lat, lon, nearbyMaxDistanceKm); st != nil {
		return st
	}
	if r.places == nil {
		return nil
	}
	places, err := r.places.SearchNearby(lat, lon, nearbyRadiusM, nearbyLimit)
	if err != nil {
		log.Printf("warning: nearby search (%.5f, %.5f) failed: %v", lat, lon, err)
		return nil
	}
	for _, p := range places {
		if p.Kind == StopArea {
			return p.station()
		}
	}
	if len(places) > 0 {
		return places[0].station()
	}
	return nil
}

// placeScore ranks an externally searched place for a city query.
func placeScore(p PlaceRef, normCity string) int {
	score := 0
	switch p.Kind {
	case StopArea:
		score += scoreStopArea
	case StopPoint:
		score += scoreStopPoint
	}

	lower := strings.ToLower(p.Name)
	if normCity != "" && strings.Contains(Normalize(p.Name), normCity) {
		score += scoreCityInName
	}
	for _, keyword := range stationKeywords {
		if strings.Contains(lower, keyword) {
			score += scoreKeyword
			break
		}
	}
	if likelyMainStation(p.Name) {
		score += scoreMainStation
	}
	return score
}

// likelyMainStation reports whether a place name looks like a city's primary
// station: true unless it carries a secondary-station indicator.
func likelyMainStation(name string) bool {
	lower := strings.ToLower(name)
	for _, indicator := range secondaryIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}

// rankPlaces orders places by descending score, ties keeping source order.
func rankPlaces(places []PlaceRef, normCity string) []PlaceRef {
	if len(places) == 0 {
		return nil
	}
	ranked := make([]PlaceRef, len(places))
	copy(ranked, places)
	sort.SliceStable(ranked, func(i, j int) bool {
		return placeScore(ranked[i], normCity) > placeScore(ranked[j], normCity)
	})
	return ranked
}
