package sink

import (
	"context"
	"time"

	"edgescan/internal/geolite"
)

// Report is the final, sink-independent view of one scan.
type Report struct {
	ID         string      `json:"id"`
	Token      string      `json:"token"`
	SourceURL  string      `json:"source_url"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Candidates int         `json:"candidates"`
	Workers    int         `json:"workers"`
	Partial    bool        `json:"partial,omitempty"`
	Detections []Detection `json:"detections"`
}

type Detection struct {
	Address      string `json:"address"`
	Country      string `json:"country,omitempty"`
	ASN          uint   `json:"asn,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// ResultSink receives the report once a scan has finished.
type ResultSink interface {
	Name() string
	Save(ctx context.Context, report Report) error
}

// Enricher annotates a single address. *geolite.Lookup satisfies it.
type Enricher interface {
	Lookup(address string) geolite.Info
}

// BuildDetections keeps the order of addresses. A nil enricher leaves the
// annotations empty.
func BuildDetections(addresses []string, enricher Enricher) []Detection {
	detections := make([]Detection, 0, len(addresses))
	for _, address := range addresses {
		detection := Detection{Address: address}
		if enricher != nil {
			info := enricher.Lookup(address)
			detection.Country = info.Country
			detection.ASN = info.ASN
			detection.Organization = info.Organization
		}
		detections = append(detections, detection)
	}
	return detections
}

// Addresses returns the detected addresses in detection order.
func (r Report) Addresses() []string {
	addresses := make([]string, 0, len(r.Detections))
	for _, detection := range r.Detections {
		addresses = append(addresses, detection.Address)
	}
	return addresses
}
