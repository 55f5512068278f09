// Command station-lookup resolves cities and station names against a bulk
// station dataset from the command line.
//
// Usage:
//
//	station-lookup [-csv stations.csv] [-country FR] <city> [station]
//	station-lookup -search "part dieu" [-limit 5]
//	station-lookup -near 45.760,4.860 [-radius-km 10]
//	station-lookup -cities
//
// The dataset path can also come from the STATIONS_CSV environment variable,
// optionally via a .env file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/railmapper/stationfinder"
)

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	csvPath := flag.String("csv", os.Getenv("STATIONS_CSV"), "path to the station CSV dataset")
	country := flag.String("country", "FR", "2-letter country filter (empty disables)")
	encoding := flag.String("encoding", "utf-8", "dataset encoding tried first")
	search := flag.String("search", "", "free-text station search instead of city lookup")
	near := flag.String("near", "", "lat,lon nearest-station lookup")
	radiusKm := flag.Float64("radius-km", 10, "max distance for -near, in kilometers")
	limit := flag.Int("limit", 10, "max results for -search")
	cities := flag.Bool("cities", false, "list all known cities")
	flag.Parse()

	r := stationfinder.New(
		stationfinder.WithDataset(*csvPath),
		stationfinder.WithCountry(*country),
		stationfinder.WithEncoding(*encoding),
	)

	switch {
	case *cities:
		for _, city := range r.AllCities() {
			fmt.Println(city)
		}
	case *search != "":
		printJSON(r.SearchStations(*search, *limit))
	case *near != "":
		lat, lon, err := parseLatLon(*near)
		if err != nil {
			fatalf("invalid -near value: %v", err)
		}
		st := r.FindStationByCoordinates(lat, lon, *radiusKm)
		if st == nil {
			fatalf("no station within %g km of (%g, %g)", *radiusKm, lat, lon)
		}
		printJSON(st)
	default:
		if flag.NArg() < 1 {
			flag.Usage()
			os.Exit(2)
		}
		city := flag.Arg(0)
		station := ""
		if flag.NArg() > 1 {
			station = strings.Join(flag.Args()[1:], " ")
		}
		st := r.FindStationByName(city, station)
		if st == nil {
			st = r.FindStationWithFallback(city, station)
		}
		if st == nil {
			fatalf("no station found for %q %q", city, station)
		}
		printJSON(st)
	}
}

func parseLatLon(s string) (float64, float64, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encoding result: %v", err)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
