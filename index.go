package stationfinder

import (
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// StationRow is one raw record from the bulk tabular dataset. All fields are
// kept as read; buildIndex parses them tolerantly and skips what it cannot use.
type StationRow struct {
	ID            string
	Name          string
	Latitude      string
	Longitude     string
	Country       string
	IsCity        string
	IsMainStation string
	ParentID      string
}

// StationIndex is an immutable snapshot of the dataset, built once at
// startup. Safe to share read-only across goroutines; it is never mutated
// after construction.
type StationIndex struct {
	stations []Station          // all indexed stations, dataset order
	byID     map[string]Station // raw dataset id -> station
	byCity   map[string][]Station
	cityName map[string]string // normalized city -> first-seen spelling
	cities   []string          // normalized city names, sorted
}

// indexBuilder accumulates rows before the final per-city sort.
type indexBuilder struct {
	country   string
	authority string
	idx       *StationIndex
}

func newIndexBuilder(country, authority string) *indexBuilder {
	return &indexBuilder{
		country:   country,
		authority: authority,
		idx: &StationIndex{
			byID:     make(map[string]Station),
			byCity:   make(map[string][]Station),
			cityName: make(map[string]string),
		},
	}
}

// add parses one dataset row and indexes it. Returns false when the row is
// skipped (missing or invalid coordinates, country mismatch, duplicate id).
func (b *indexBuilder) add(row StationRow) bool {
	if row.Latitude == "" || row.Longitude == "" {
		return false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(row.Latitude), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(row.Longitude), 64)
	if errLat != nil || errLon != nil {
		log.Printf("warning: invalid coordinates for station id %s", row.ID)
		return false
	}
	if b.country != "" && strings.TrimSpace(row.Country) != b.country {
		return false
	}
	if _, dup := b.idx.byID[row.ID]; dup {
		return false
	}

	parent := strings.TrimSpace(row.ParentID)
	if parent == "NA" {
		parent = ""
	}

	st := Station{
		ID:          FormatStationID(b.authority, row.ID),
		Name:        row.Name,
		Kind:        StopArea,
		Latitude:    lat,
		Longitude:   lon,
		MainStation: parseFlag(row.IsMainStation),
		CityAlias:   parseFlag(row.IsCity),
		ParentID:    parent,
	}

	b.idx.byID[row.ID] = st
	b.idx.stations = append(b.idx.stations, st)

	if city := deriveCity(st); city != "" {
		b.addToCity(city, st)
	}
	return true
}

func (b *indexBuilder) addToCity(city string, st Station) {
	norm := Normalize(city)
	if norm == "" {
		return
	}
	if _, seen := b.idx.cityName[norm]; !seen {
		b.idx.cityName[norm] = city
	}
	b.idx.byCity[norm] = append(b.idx.byCity[norm], st)
}

// finish sorts each city's stations (main stations first, then stations
// without a parent before those with one; stable) and the city list.
func (b *indexBuilder) finish() *StationIndex {
	idx := b.idx
	for city := range idx.byCity {
		stations := idx.byCity[city]
		sort.SliceStable(stations, func(i, j int) bool {
			if stations[i].MainStation != stations[j].MainStation {
				return stations[i].MainStation
			}
			iParentless := stations[i].ParentID == ""
			jParentless := stations[j].ParentID == ""
			if iParentless != jParentless {
				return iParentless
			}
			return false
		})
	}
	idx.cities = make([]string, 0, len(idx.byCity))
	for city := range idx.byCity {
		idx.cities = append(idx.cities, city)
	}
	sort.Strings(idx.cities)
	return idx
}

// parseFlag parses boolean-like dataset fields: case-insensitive "TRUE" is
// true, anything else (including absence) is false.
func parseFlag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "TRUE")
}

// deriveCity extracts the city a station belongs to, in priority order:
// a city-alias row names the city itself; a trailing parenthesized segment
// ("Gare de Lyon (Paris)") names it; a " - " separator names it as prefix
// ("Lille - Flandres"). Empty when none apply.
func deriveCity(st Station) string {
	if st.CityAlias {
		return st.Name
	}
	name := st.Name
	if i := strings.LastIndex(name, " ("); i >= 0 && strings.HasSuffix(name, ")") {
		return name[i+2 : len(name)-1]
	}
	if city, _, found := strings.Cut(name, " - "); found {
		return city
	}
	return ""
}

// BuildIndex constructs a StationIndex from already-parsed dataset rows.
// Rows with missing or non-numeric coordinates are skipped, as are rows
// whose country does not match the configured filter; an empty country cell
// is a mismatch. Disable the filter for rows carrying no country data.
func BuildIndex(rows []StationRow, opts ...Option) *StationIndex {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return buildIndexFromRows(rows, cfg)
}

func buildIndexFromRows(rows []StationRow, cfg *Config) *StationIndex {
	b := newIndexBuilder(cfg.Country, cfg.Authority)
	for _, row := range rows {
		b.add(row)
	}
	return b.finish()
}

// StationByID returns the station for a raw dataset id.
func (idx *StationIndex) StationByID(rawID string) (Station, bool) {
	st, ok := idx.byID[rawID]
	return st, ok
}

// Len returns the number of indexed stations.
func (idx *StationIndex) Len() int { return len(idx.stations) }

// CityCount returns the number of known cities.
func (idx *StationIndex) CityCount() int { return len(idx.byCity) }

// stationsForCity returns the stations of an already-normalized city name.
func (idx *StationIndex) stationsForCity(norm string) []Station {
	return idx.byCity[norm]
}

// fallbackEncodings is the fixed list tried after the caller-supplied
// encoding when loading the dataset.
var fallbackEncodings = []string{"utf-8", "latin1", "cp1252", "iso-8859-1"}

// decoderFor returns the transformer for a named encoding. The UTF-8 case
// validates rather than decodes, so a dataset in a legacy encoding fails
// fast and the loader moves on to the next attempt.
func decoderFor(name string) transform.Transformer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return encoding.UTF8Validator
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1.NewDecoder()
	case "cp1252", "windows-1252":
		return charmap.Windows1252.NewDecoder()
	default:
		return nil
	}
}

// loadIndex loads the dataset at path, attempting the caller-supplied
// encoding first and then the fixed fallback list, stopping at the first
// encoding that yields at least one valid station. When every attempt yields
// zero stations the index is populated from the hardcoded table of major
// stations instead, so the resolver always has usable data for major cities.
func loadIndex(path string, cfg *Config) *StationIndex {
	attempts := append([]string{cfg.Encoding}, fallbackEncodings...)
	tried := make(map[string]bool)

	for _, name := range attempts {
		canonical := strings.ToLower(strings.TrimSpace(name))
		dec := decoderFor(name)
		if dec == nil || tried[canonical] {
			continue
		}
		tried[canonical] = true

		idx, err := loadCSV(path, dec, cfg)
		if err != nil {
			log.Printf("warning: loading %s with encoding %s: %v", path, name, err)
			continue
		}
		if idx.Len() > 0 {
			log.Printf("info: loaded %d stations in %d cities (encoding %s)",
				idx.Len(), idx.CityCount(), name)
			return idx
		}
	}

	log.Printf("warning: no stations loaded from %s, using hardcoded fallback", path)
	return fallbackIndex(cfg)
}

func loadCSV(path string, dec transform.Transformer, cfg *Config) (*StationIndex, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fi.Close()

	reader := csv.NewReader(transform.NewReader(fi, dec))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	// A dataset without a country column cannot be filtered by country.
	country := cfg.Country
	if _, ok := col["country"]; !ok {
		country = ""
	}

	b := newIndexBuilder(country, cfg.Authority)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed rows never abort the load; stream-level errors
			// (bad encoding, I/O) abort this attempt so the next
			// encoding can be tried.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Printf("warning: skipping malformed row: %v", err)
				continue
			}
			return nil, err
		}
		b.add(StationRow{
			ID:            field(record, "id"),
			Name:          field(record, "name"),
			Latitude:      field(record, "latitude"),
			Longitude:     field(record, "longitude"),
			Country:       field(record, "country"),
			IsCity:        field(record, "is_city"),
			IsMainStation: field(record, "is_main_station"),
			ParentID:      field(record, "parent_station_id"),
		})
	}
	return b.finish(), nil
}

// fallbackStation seeds the index when the bulk dataset is unavailable.
type fallbackStation struct {
	id   string
	name string
	city string
	lat  float64
	lon  float64
	main bool
}

var fallbackStations = []fallbackStation{
	{"87686006", "Paris Gare de Lyon", "Paris", 48.844, 2.373, true},
	{"87751008", "Marseille Saint-Charles", "Marseille", 43.303, 5.380, true},
	{"87747006", "Grenoble", "Grenoble", 45.192, 5.716, true},
	{"87722025", "Lyon Part-Dieu", "Lyon", 45.760, 4.860, true},
	{"87723197", "Lyon Perrache", "Lyon", 45.750, 4.826, false},
	{"87318964", "Aix-en-Provence TGV", "Aix en Provence", 43.455, 5.317, true},
	{"87611004", "Versailles-Chantiers", "Versailles", 48.7942, 2.1347, true},
	{"87711309", "Versailles Rive Gauche", "Versailles", 48.8031, 2.1271, false},
	{"87545210", "Versailles Rive Droite", "Versailles", 48.809, 2.134, false},
	{"87773002", "Toulouse Matabiau", "Toulouse", 43.611, 1.454, true},
	{"87756056", "Nice Ville", "Nice", 43.704, 7.262, true},
}

// fallbackIndex builds an index from the hardcoded major-station table.
func fallbackIndex(cfg *Config) *StationIndex {
	b := newIndexBuilder("", cfg.Authority)
	for _, f := range fallbackStations {
		st := Station{
			ID:          FormatStationID(cfg.Authority, f.id),
			Name:        f.name,
			Kind:        StopArea,
			Latitude:    f.lat,
			Longitude:   f.lon,
			MainStation: f.main,
		}
		b.idx.byID[f.id] = st
		b.idx.stations = append(b.idx.stations, st)
		b.addToCity(f.city, st)
	}
	return b.finish()
}
