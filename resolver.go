package stationfinder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Similarity thresholds for the resolver's fuzzy paths.
const (
	cityMatchThreshold    = 0.8
	stationMatchThreshold = 0.6
	searchMatchThreshold  = 0.5
	// substringBonus is added when the query is a substring of a
	// station's normalized name.
	substringBonus = 0.2
)

// defaultSearchLimit caps SearchStations results when no limit is given.
const defaultSearchLimit = 10

// Config carries resolver construction options.
type Config struct {
	DatasetPath string        // bulk CSV dataset path
	Encoding    string        // preferred dataset encoding (default "utf-8")
	Country     string        // 2-letter country filter (default "FR")
	Authority   string        // short code in canonical station ids
	TTL         time.Duration // query cache TTL (default 24h)
	Rows        []StationRow  // pre-parsed rows, bypassing the file loader
	Searcher    PlaceSearcher // optional external nearby-places capability
	Curated     *CuratedStations
}

// Option is a functional option for configuring the Resolver.
type Option func(*Config)

// WithDataset sets the bulk CSV dataset path.
func WithDataset(path string) Option {
	return func(c *Config) { c.DatasetPath = path }
}

// WithEncoding sets the encoding attempted first when loading the dataset.
func WithEncoding(name string) Option {
	return func(c *Config) { c.Encoding = name }
}

// WithCountry sets the 2-letter country filter applied during index build.
// An empty value disables filtering.
func WithCountry(code string) Option {
	return func(c *Config) { c.Country = code }
}

// WithAuthority sets the authority code used in canonical station ids.
func WithAuthority(code string) Option {
	return func(c *Config) { c.Authority = code }
}

// WithTTL sets the query cache time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) { c.TTL = ttl }
}

// WithRows builds the index from pre-parsed rows instead of a dataset file.
func WithRows(rows []StationRow) Option {
	return func(c *Config) { c.Rows = rows }
}

// WithPlaceSearcher wires the external search collaborator used by the
// fallback resolution path.
func WithPlaceSearcher(s PlaceSearcher) Option {
	return func(c *Config) { c.Searcher = s }
}

// WithCurated supplies the curated table of well-known stations. The
// resolver takes ownership: mutations invalidate its caches.
func WithCurated(t *CuratedStations) Option {
	return func(c *Config) { c.Curated = t }
}

func defaultConfig() *Config {
	return &Config{
		Encoding:  "utf-8",
		Country:   "FR",
		Authority: DefaultAuthority,
		TTL:       defaultCacheTTL,
	}
}

// Resolver maps free-text place descriptions and coordinates to canonical
// station records. The underlying index is immutable; the caches and the
// curated table are protected by their own locks, so a Resolver is safe for
// concurrent use.
type Resolver struct {
	index   *StationIndex
	config  *Config
	curated *CuratedStations
	places  PlaceSearcher

	cityCache    *queryCache[[]Station]
	stationCache *queryCache[*Station]
	coordCache   *queryCache[*Station]
	searchCache  *queryCache[[]Station]
}

// New creates a Resolver. The station index is built exactly once here:
// from pre-parsed rows when supplied, else from the configured dataset file
// (with encoding fallbacks), else from the hardcoded major-station table.
//
//	r := stationfinder.New(stationfinder.WithDataset("stations.csv"))
//	stations := r.FindStationsByCity("Lyon")
func New(opts ...Option) *Resolver {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var idx *StationIndex
	switch {
	case cfg.Rows != nil:
		idx = buildIndexFromRows(cfg.Rows, cfg)
		if idx.Len() == 0 {
			idx = fallbackIndex(cfg)
		}
	case cfg.DatasetPath != "":
		idx = loadIndex(cfg.DatasetPath, cfg)
	default:
		idx = fallbackIndex(cfg)
	}

	curated := cfg.Curated
	if curated == nil {
		curated = DefaultCuratedStations()
	}

	r := &Resolver{
		index:        idx,
		config:       cfg,
		curated:      curated,
		places:       cfg.Searcher,
		cityCache:    newQueryCache[[]Station](cfg.TTL),
		stationCache: newQueryCache[*Station](cfg.TTL),
		coordCache:   newQueryCache[*Station](cfg.TTL),
		searchCache:  newQueryCache[[]Station](cfg.TTL),
	}
	curated.bind(r)
	return r
}

// Index exposes the immutable station index.
func (r *Resolver) Index() *StationIndex { return r.index }

// Curated exposes the curated table owned by this resolver.
func (r *Resolver) Curated() *CuratedStations { return r.curated }

// maintain runs the lazy expiry sweep on every cache.
func (r *Resolver) maintain() {
	r.cityCache.cleanup(false)
	r.stationCache.cleanup(false)
	r.coordCache.cleanup(false)
	r.searchCache.cleanup(false)
}

// CleanupCaches forces an immediate expiry sweep on every cache.
func (r *Resolver) CleanupCaches() {
	r.cityCache.cleanup(true)
	r.stationCache.cleanup(true)
	r.coordCache.cleanup(true)
	r.searchCache.cleanup(true)
}

// FindStationsByCity returns all stations of a city. The city name is
// matched exactly against the normalized index first; on a miss, the closest
// known city clearing the similarity threshold is used. Returns an empty
// slice when nothing matches.
func (r *Resolver) FindStationsByCity(city string) []Station {
	r.maintain()

	norm := Normalize(city)
	key := "city:" + norm
	if cached, ok := r.cityCache.get(key); ok {
		return cached
	}

	result := r.index.stationsForCity(norm)
	if result == nil {
		if best := r.bestCityMatch(norm); best != "" {
			result = r.index.stationsForCity(best)
		}
	}
	if result == nil {
		result = []Station{}
	}

	r.cityCache.put(key, result)
	return result
}

// bestCityMatch returns the known city most similar to norm, or "" when no
// candidate exceeds the city threshold. Candidates are walked in sorted
// order so ties resolve deterministically.
func (r *Resolver) bestCityMatch(norm string) string {
	best := ""
	bestScore := cityMatchThreshold
	for _, candidate := range r.index.cities {
		if !withinRatioBound(norm, candidate, cityMatchThreshold) {
			continue
		}
		if score := Similarity(norm, candidate); score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

// FindStationByName resolves a station within a city. With an empty
// stationName it returns the city's first main station, falling back to the
// first station overall. With a name it tries an exact normalized match,
// then the most similar candidate above the station threshold. Nil when the
// city resolves to no stations or no candidate clears the threshold.
func (r *Resolver) FindStationByName(city, stationName string) *Station {
	r.maintain()

	normCity := Normalize(city)
	normName := Normalize(stationName)
	key := "city_station:" + normCity + ":" + normName
	if cached, ok := r.stationCache.get(key); ok {
		return cached
	}

	st := r.resolveStationByName(city, normName)
	r.stationCache.put(key, st)
	return st
}

func (r *Resolver) resolveStationByName(city, normName string) *Station {
	stations := r.FindStationsByCity(city)
	if len(stations) == 0 {
		return nil
	}

	// Returned pointers are copies; the index stays immutable.
	if normName == "" {
		for _, st := range stations {
			if st.MainStation {
				st := st
				return &st
			}
		}
		st := stations[0]
		return &st
	}

	for _, st := range stations {
		if Normalize(st.Name) == normName {
			st := st
			return &st
		}
	}

	var best *Station
	bestScore := stationMatchThreshold
	for _, st := range stations {
		candidate := Normalize(st.Name)
		if !withinRatioBound(normName, candidate, stationMatchThreshold) {
			continue
		}
		if score := Similarity(normName, candidate); score > bestScore {
			bestScore = score
			st := st
			best = &st
		}
	}
	return best
}

// FindStationByCoordinates returns the station nearest to the given point,
// or nil when none lies within maxDistanceKm. Linear scan over the whole
// index; acceptable at current dataset scale.
func (r *Resolver) FindStationByCoordinates(lat, lon, maxDistanceKm float64) *Station {
	r.maintain()

	if !validLatLon(lat, lon) {
		return nil
	}

	// Keys are rounded to bound cache cardinality.
	key := fmt.Sprintf("coord:%.5f:%.5f:%g", lat, lon, maxDistanceKm)
	if cached, ok := r.coordCache.get(key); ok {
		return cached
	}

	nearest := -1
	minDist := 0.0
	for i := range r.index.stations {
		st := &r.index.stations[i]
		d := DistanceKm(lat, lon, st.Latitude, st.Longitude)
		if nearest < 0 || d < minDist {
			nearest = i
			minDist = d
		}
	}

	var result *Station
	if nearest >= 0 && minDist <= maxDistanceKm {
		st := r.index.stations[nearest]
		result = &st
	}
	r.coordCache.put(key, result)
	return result
}

// SearchStations matches query against every indexed station name and
// returns the top limit results sorted by descending score. A candidate's
// score is its similarity ratio plus a flat bonus when the normalized query
// is a substring of the normalized name; candidates at or below the search
// threshold are discarded.
func (r *Resolver) SearchStations(query string, limit int) []Station {
	r.maintain()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	norm := Normalize(query)
	key := "search:" + norm + ":" + strconv.Itoa(limit)
	if cached, ok := r.searchCache.get(key); ok {
		return cached
	}

	type scored struct {
		score   float64
		station Station
	}
	var matched []scored
	for i := range r.index.stations {
		name := Normalize(r.index.stations[i].Name)
		substring := norm != "" && strings.Contains(name, norm)
		if !substring && !withinRatioBound(norm, name, searchMatchThreshold) {
			continue
		}
		score := Similarity(norm, name)
		if substring {
			score += substringBonus
		}
		if score > searchMatchThreshold {
			matched = append(matched, scored{score: score, station: r.index.stations[i]})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]Station, len(matched))
	for i, m := range matched {
		results[i] = m.station
	}
	r.searchCache.put(key, results)
	return results
}

// AllCities lists every known city, in original spelling, sorted.
func (r *Resolver) AllCities() []string {
	names := make([]string, 0, len(r.index.cities))
	for _, norm := range r.index.cities {
		if display, ok := r.index.cityName[norm]; ok {
			names = append(names, display)
		} else {
			names = append(names, norm)
		}
	}
	sort.Strings(names)
	return names
}

// FindJourneyEndpoints resolves the departure and arrival stations of a
// journey independently; either side may be nil, signaling that resolution
// failed for that side specifically.
func (r *Resolver) FindJourneyEndpoints(fromCity, toCity, fromStation, toStation string) (*Station, *Station) {
	departure := r.FindStationByName(fromCity, fromStation)
	arrival := r.FindStationByName(toCity, toStation)
	return departure, arrival
}
