package sink

import (
	"context"
	"errors"

	"edgescan/internal/database"
	"edgescan/internal/domain"

	"gorm.io/gorm"
)

// Database persists the report as a scan run with one row per detection.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (s *Database) Name() string {
	return "database"
}

func (s *Database) Save(ctx context.Context, report Report) error {
	if s.db == nil {
		return errors.New("database sink: connection is nil")
	}

	run := ScanRunFromReport(report)
	return database.SaveScanRun(ctx, s.db, &run)
}

func ScanRunFromReport(report Report) domain.ScanRun {
	run := domain.ScanRun{
		ScanID:     report.ID,
		Token:      report.Token,
		SourceURL:  report.SourceURL,
		Candidates: report.Candidates,
		Workers:    report.Workers,
		Partial:    report.Partial,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Detections: make([]domain.DetectedAddress, 0, len(report.Detections)),
	}

	for i, detection := range report.Detections {
		run.Detections = append(run.Detections, domain.DetectedAddress{
			Position:     i,
			IP:           detection.Address,
			Country:      detection.Country,
			ASN:          detection.ASN,
			Organization: detection.Organization,
		})
	}

	return run
}
