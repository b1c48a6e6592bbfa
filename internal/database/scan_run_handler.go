package database

import (
	"context"
	"errors"
	"fmt"

	"edgescan/internal/domain"

	"gorm.io/gorm"
)

const detectionInsertBatch = 500

var ErrScanRunNotFound = errors.New("scan run not found")

// SaveScanRun stores the run and its detections in one transaction.
func SaveScanRun(ctx context.Context, db *gorm.DB, run *domain.ScanRun) error {
	if db == nil {
		return errors.New("database: nil connection")
	}
	if run == nil {
		return errors.New("database: nil scan run")
	}

	detections := run.Detections
	run.Detections = nil
	defer func() { run.Detections = detections }()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("insert scan run: %w", err)
		}

		if len(detections) == 0 {
			return nil
		}

		for i := range detections {
			detections[i].ScanRunID = run.ID
		}

		if err := tx.CreateInBatches(&detections, detectionInsertBatch).Error; err != nil {
			return fmt.Errorf("insert detections: %w", err)
		}
		return nil
	})
}

// GetScanRun loads a run by its scan id with detections in detection order.
func GetScanRun(ctx context.Context, db *gorm.DB, scanID string) (domain.ScanRun, error) {
	var run domain.ScanRun

	err := db.WithContext(ctx).
		Preload("Detections", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("scan_id = ?", scanID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ScanRun{}, fmt.Errorf("%w: %s", ErrScanRunNotFound, scanID)
	}
	if err != nil {
		return domain.ScanRun{}, err
	}

	return run, nil
}

// ListScanRuns returns the most recent runs without their detections.
func ListScanRuns(ctx context.Context, db *gorm.DB, limit int) ([]domain.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []domain.ScanRun
	if err := db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// DistinctDetectedAddresses returns every address ever detected, IPv4
// addresses in numeric order first.
func DistinctDetectedAddresses(ctx context.Context, db *gorm.DB) ([]string, error) {
	var rows []struct {
		IP    string
		IPInt uint32
	}

	err := db.WithContext(ctx).
		Model(&domain.DetectedAddress{}).
		Select("ip, ip_int").
		Group("ip, ip_int").
		Order("ip_int = 0, ip_int ASC, ip ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ips := make([]string, 0, len(rows))
	for _, row := range rows {
		ips = append(ips, row.IP)
	}
	return ips, nil
}
