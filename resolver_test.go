package stationfinder

import (
	"testing"
	"time"
)

func TestFindStationsByCityExact(t *testing.T) {
	r := newTestResolver()

	stations := r.FindStationsByCity("Lyon")
	if len(stations) != 2 {
		t.Fatalf("Lyon has %d stations, want 2", len(stations))
	}
	if stations[0].Name != "Lyon - Part-Dieu" {
		t.Errorf("first Lyon station = %q, want the main one", stations[0].Name)
	}

	// Lookup goes through normalization, so spelling variants hit the
	// same city.
	if got := r.FindStationsByCity("  LYON "); len(got) != 2 {
		t.Errorf("normalized variant returned %d stations, want 2", len(got))
	}
}

func TestFindStationsByCityFuzzy(t *testing.T) {
	r := newTestResolver()

	exact := r.FindStationsByCity("Paris")
	fuzzy := r.FindStationsByCity("Pariss")
	if len(fuzzy) != len(exact) {
		t.Fatalf("fuzzy city match returned %d stations, exact returned %d",
			len(fuzzy), len(exact))
	}
	for i := range exact {
		if fuzzy[i].ID != exact[i].ID {
			t.Errorf("fuzzy result %d = %s, want %s", i, fuzzy[i].ID, exact[i].ID)
		}
	}

	// Below the city threshold: empty, never nil.
	miss := r.FindStationsByCity("Parizzz")
	if miss == nil {
		t.Fatal("city miss returned nil, want empty slice")
	}
	if len(miss) != 0 {
		t.Fatalf("city miss returned %d stations", len(miss))
	}
}

func TestFindStationByName(t *testing.T) {
	r := newTestResolver()

	// No name picks the city's first main station.
	st := r.FindStationByName("Paris", "")
	if st == nil || st.Name != "Gare de Lyon (Paris)" {
		t.Fatalf("empty name resolved to %v, want the main station", st)
	}

	// Exact match after normalization.
	st = r.FindStationByName("Paris", "gare du nord (paris)")
	if st == nil || st.Name != "Gare du Nord (Paris)" {
		t.Fatalf("exact name resolved to %v", st)
	}

	// Fuzzy match above the station threshold.
	st = r.FindStationByName("Paris", "gare du nor")
	if st == nil || st.Name != "Gare du Nord (Paris)" {
		t.Fatalf("fuzzy name resolved to %v", st)
	}

	if st := r.FindStationByName("Paris", "xyzzy"); st != nil {
		t.Errorf("nonsense name resolved to %v, want nil", st)
	}
	if st := r.FindStationByName("Atlantis", "gare"); st != nil {
		t.Errorf("unknown city resolved to %v, want nil", st)
	}
}

func TestFindStationByNameReturnsCopy(t *testing.T) {
	r := newTestResolver()

	first := r.FindStationByName("Marseille", "saint charles")
	if first == nil {
		t.Fatal("station not resolved")
	}
	first.Name = "mutated"

	again := r.FindStationByName("Marseille", "saint charles")
	if again.Name != "Saint-Charles (Marseille)" {
		t.Errorf("caller mutation leaked into the index: %q", again.Name)
	}
}

func TestFindStationByCoordinates(t *testing.T) {
	r := newTestResolver()

	// ~5 km south of Gare de Lyon.
	st := r.FindStationByCoordinates(48.80, 2.3735, 10)
	if st == nil || st.Name != "Gare de Lyon (Paris)" {
		t.Fatalf("nearest station = %v, want Gare de Lyon", st)
	}

	// Same point, tight radius: nothing qualifies.
	if st := r.FindStationByCoordinates(48.80, 2.3735, 0.001); st != nil {
		t.Errorf("station %q returned outside max distance", st.Name)
	}

	if st := r.FindStationByCoordinates(91, 0, 10); st != nil {
		t.Errorf("invalid latitude resolved to %v", st)
	}
}

func TestSearchStations(t *testing.T) {
	r := newTestResolver()

	results := r.SearchStations("lyon", 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// All three Lyon-named stations carry the substring bonus; the shortest
	// name scores highest and the limit drops the weakest.
	if results[0].Name != "Lyon - Perrache" {
		t.Errorf("top result = %q, want Lyon - Perrache", results[0].Name)
	}
	if results[1].Name != "Lyon - Part-Dieu" {
		t.Errorf("second result = %q, want Lyon - Part-Dieu", results[1].Name)
	}

	// Zero limit falls back to the default.
	if got := r.SearchStations("lyon", 0); len(got) != 3 {
		t.Errorf("default-limit search returned %d results, want 3", len(got))
	}

	if got := r.SearchStations("zzzzzz", 5); len(got) != 0 {
		t.Errorf("nonsense query returned %d results", len(got))
	}
}

func TestResolverCachesFuzzyCityLookups(t *testing.T) {
	r := newTestResolver(WithTTL(time.Second))
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r.cityCache.now = clock.now
	r.cityCache.lastCleanup = clock.current

	r.FindStationsByCity("Pariss")
	if _, ok := r.cityCache.get("city:pariss"); !ok {
		t.Fatal("fuzzy city lookup not cached under its own key")
	}

	clock.advance(2 * time.Second)
	if _, ok := r.cityCache.get("city:pariss"); ok {
		t.Fatal("cached city lookup survived its TTL")
	}
}

func TestResolverWithoutDatasetUsesFallback(t *testing.T) {
	r := New()

	cities := r.AllCities()
	if len(cities) == 0 {
		t.Fatal("fallback resolver knows no cities")
	}

	stations := r.FindStationsByCity("Versailles")
	if len(stations) != 3 {
		t.Fatalf("Versailles has %d fallback stations, want 3", len(stations))
	}
	if !stations[0].MainStation {
		t.Error("main Versailles station not listed first")
	}
}
