// Package geo resolves a connecting address to a coarse location.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Location is the coarse geolocation attached to a device's connection
// metadata.
type Location struct {
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Resolver maps a remote IP address to a Location. Implementations return nil
// when the address cannot be resolved; resolution is best effort and never an
// error the caller acts on.
type Resolver interface {
	Lookup(ip string) *Location
}

// NoopResolver is used when no geolocation database is configured.
type NoopResolver struct{}

func (NoopResolver) Lookup(string) *Location { return nil }

// MaxMindResolver resolves addresses against a MaxMind GeoLite2/GeoIP2
// city database file.
type MaxMindResolver struct {
	reader *maxminddb.Reader
}

func OpenMaxMind(path string) (*MaxMindResolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geolocation database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Close() error { return r.reader.Close() }

func (r *MaxMindResolver) Lookup(ip string) *Location {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil
	}

	var record struct {
		Country struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"country"`
		City struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"city"`
		Location struct {
			Latitude  float64 `maxminddb:"latitude"`
			Longitude float64 `maxminddb:"longitude"`
		} `maxminddb:"location"`
	}

	if err := r.reader.Lookup(addr, &record); err != nil {
		return nil
	}

	loc := &Location{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if loc.Country == "" && loc.City == "" && loc.Latitude == 0 && loc.Longitude == 0 {
		return nil
	}
	return loc
}
