package geolite

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Info is what the GeoLite datasets know about one address. Unknown fields
// stay at their zero value.
type Info struct {
	Country      string
	ASN          uint
	Organization string
}

// Lookup annotates addresses from the MaxMind Country and ASN datasets.
// Either dataset may be absent; a nil *Lookup answers every query with Info{}.
type Lookup struct {
	mu        sync.RWMutex
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
}

// Open loads the datasets at the given paths. Empty paths are skipped.
func Open(countryPath, asnPath string) (*Lookup, error) {
	lookup := &Lookup{}

	if countryPath != "" {
		reader, err := geoip2.Open(countryPath)
		if err != nil {
			return nil, fmt.Errorf("open country database %s: %w", countryPath, err)
		}
		lookup.countryDB = reader
	}

	if asnPath != "" {
		reader, err := geoip2.Open(asnPath)
		if err != nil {
			_ = lookup.Close()
			return nil, fmt.Errorf("open asn database %s: %w", asnPath, err)
		}
		lookup.asnDB = reader
	}

	return lookup, nil
}

func (l *Lookup) Enabled() bool {
	if l == nil {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countryDB != nil || l.asnDB != nil
}

func (l *Lookup) Lookup(address string) Info {
	var info Info
	if l == nil {
		return info
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return info
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.countryDB != nil {
		if record, err := l.countryDB.Country(ip); err == nil {
			if name := record.Country.Names["en"]; name != "" {
				info.Country = name
			} else if record.Country.IsoCode != "" {
				info.Country = strings.ToUpper(record.Country.IsoCode)
			}
		}
	}

	if l.asnDB != nil {
		if record, err := l.asnDB.ASN(ip); err == nil {
			info.ASN = record.AutonomousSystemNumber
			info.Organization = record.AutonomousSystemOrganization
		}
	}

	return info
}

func (l *Lookup) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.countryDB != nil {
		errs = append(errs, l.countryDB.Close())
		l.countryDB = nil
	}
	if l.asnDB != nil {
		errs = append(errs, l.asnDB.Close())
		l.asnDB = nil
	}
	return errors.Join(errs...)
}
