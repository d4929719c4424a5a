// Package geoip defines the GeoLookup contract (spec.md §6.3) and a
// MaxMind-backed reference implementation.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Result is the geo-enrichment attached to a node; any field may be absent
// (spec.md §6.3).
type Result struct {
	CountryCode string
	CountryName string
	Region      string
	City        string
	Latitude    float64
	Longitude   float64
	Timezone    string
	ISP         string
	Org         string
	ASN         uint32
	ASNOrg      string
}

// GeoLookup resolves geographic metadata for an IP address.
type GeoLookup interface {
	Lookup(ip string) (Result, error)
}

// MaxMindLookup backs GeoLookup with a local GeoLite2-City (and optionally
// GeoLite2-ASN) MaxMind database.
type MaxMindLookup struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

// Open opens the city database at cityPath and, if asnPath is non-empty,
// the ASN database too.
func Open(cityPath, asnPath string) (*MaxMindLookup, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: open city db: %w", err)
	}
	m := &MaxMindLookup{city: city}
	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			city.Close()
			return nil, fmt.Errorf("geoip: open asn db: %w", err)
		}
		m.asn = asn
	}
	return m, nil
}

// Lookup implements GeoLookup.
func (m *MaxMindLookup) Lookup(ipStr string) (Result, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return Result{}, fmt.Errorf("geoip: invalid ip %q", ipStr)
	}

	var res Result
	rec, err := m.city.City(ip)
	if err != nil {
		return Result{}, fmt.Errorf("geoip: city lookup: %w", err)
	}
	res.CountryCode = rec.Country.IsoCode
	res.CountryName = rec.Country.Names["en"]
	if len(rec.Subdivisions) > 0 {
		res.Region = rec.Subdivisions[0].Names["en"]
	}
	res.City = rec.City.Names["en"]
	res.Latitude = rec.Location.Latitude
	res.Longitude = rec.Location.Longitude
	res.Timezone = rec.Location.TimeZone

	if m.asn != nil {
		asnRec, err := m.asn.ASN(ip)
		if err == nil {
			res.ASN = asnRec.AutonomousSystemNumber
			res.ASNOrg = asnRec.AutonomousSystemOrganization
			res.ISP = asnRec.AutonomousSystemOrganization
			res.Org = asnRec.AutonomousSystemOrganization
		}
	}
	return res, nil
}

// Close releases both underlying database files.
func (m *MaxMindLookup) Close() error {
	if m.asn != nil {
		_ = m.asn.Close()
	}
	return m.city.Close()
}
