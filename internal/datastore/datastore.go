// Package datastore optionally persists run results into SQLite so sweeps
// and threshold choices can be compared across runs. CSV remains the output
// contract; the database is an operator convenience.
package datastore

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iaswatch/iaswatch/internal/optimize"
	"github.com/iaswatch/iaswatch/internal/pipeline"
)

// Run is one pipeline execution.
type Run struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"uniqueIndex;size:36"`
	StartedAt   time.Time
	Elapsed     time.Duration
	Cases       int
	Skips       int
	Failures    int
	SlopeFrac   float64
	AccelFrac   float64
	BlockPolicy string
}

// ClassificationRow is one persisted case result.
type ClassificationRow struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"index;size:36"`
	Species        string `gorm:"index"`
	Country        string `gorm:"index"`
	InvasionYear   int
	DetectedDates  string // semicolon-joined YYYY-MM values
	InWindow       bool
	NumDetections  int
	Classification string `gorm:"size:2"`
	TaxonomicGroup string
	Habitat        string
	LagDays        *int
}

// Sweep is one threshold grid-search execution with its selected operating
// point.
type Sweep struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"uniqueIndex;size:36"`
	StartedAt     time.Time
	Cases         int
	Cells         int
	BlockPolicy   string
	BestSlopeFrac float64
	BestAccelFrac float64
	BestTPRate    float64
	BestFPRate    float64
}

// GridCellRow is one persisted sweep cell.
type GridCellRow struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"index;size:36"`
	SlopeFrac       float64
	AccelFrac       float64
	TP              int
	FP              int
	FN              int
	TPRate          float64
	FPRate          float64
	ActualPositives int
}

// SkipRow is one persisted skipped or failed case.
type SkipRow struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    string `gorm:"index;size:36"`
	Species  string
	Country  string
	Platform string
	Kind     string // "skip" or "fit-failure"
	Reason   string
}

// Store wraps the GORM database handle.
type Store struct {
	DB *gorm.DB
}

// Open opens (or creates) the SQLite database and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Run{}, &Sweep{}, &ClassificationRow{}, &GridCellRow{}, &SkipRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun persists a run's metadata, case results and side lists in one
// transaction.
func (s *Store) SaveRun(out *pipeline.Output, slopeFrac, accelFrac float64, policy string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		run := Run{
			RunID:       out.RunID,
			StartedAt:   time.Now().Add(-out.Elapsed),
			Elapsed:     out.Elapsed,
			Cases:       out.CasesTotal,
			Skips:       len(out.Skips),
			Failures:    len(out.Failures),
			SlopeFrac:   slopeFrac,
			AccelFrac:   accelFrac,
			BlockPolicy: policy,
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("saving run: %w", err)
		}

		for _, r := range out.Results {
			dates := make([]string, len(r.Detected))
			for i, m := range r.Detected {
				dates[i] = m.String()
			}
			row := ClassificationRow{
				RunID:          out.RunID,
				Species:        r.Species,
				Country:        r.Country,
				InvasionYear:   r.InvasionYear,
				DetectedDates:  strings.Join(dates, ";"),
				InWindow:       r.InWindow,
				NumDetections:  r.NumDetections,
				Classification: string(r.Label),
				TaxonomicGroup: r.TaxonomicGroup,
				Habitat:        r.Habitat,
			}
			if r.LagOK {
				lag := r.LagDays
				row.LagDays = &lag
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("saving classification row: %w", err)
			}
		}

		for _, sk := range out.Skips {
			row := SkipRow{
				RunID: out.RunID, Species: sk.Species, Country: sk.Country,
				Platform: sk.Platform, Kind: "skip", Reason: sk.Reason,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("saving skip row: %w", err)
			}
		}
		for _, f := range out.Failures {
			row := SkipRow{
				RunID: out.RunID, Species: f.Species, Country: f.Country,
				Kind: "fit-failure", Reason: f.Err,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("saving failure row: %w", err)
			}
		}
		return nil
	})
}

// SaveSweep persists a sweep's metadata, its selected operating point and
// every grid cell in one transaction.
func (s *Store) SaveSweep(runID, policy string, cases int, best optimize.Cell, cells []optimize.Cell) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		sweep := Sweep{
			RunID:         runID,
			StartedAt:     time.Now(),
			Cases:         cases,
			Cells:         len(cells),
			BlockPolicy:   policy,
			BestSlopeFrac: best.SlopeFrac,
			BestAccelFrac: best.AccelFrac,
			BestTPRate:    best.TPRate,
			BestFPRate:    best.FPRate,
		}
		if err := tx.Create(&sweep).Error; err != nil {
			return fmt.Errorf("saving sweep: %w", err)
		}
		return saveCells(tx, runID, cells)
	})
}

// SaveGridCells persists the sweep cells for a run.
func (s *Store) SaveGridCells(runID string, cells []optimize.Cell) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return saveCells(tx, runID, cells)
	})
}

func saveCells(tx *gorm.DB, runID string, cells []optimize.Cell) error {
	for _, c := range cells {
		row := GridCellRow{
			RunID:           runID,
			SlopeFrac:       c.SlopeFrac,
			AccelFrac:       c.AccelFrac,
			TP:              c.TP,
			FP:              c.FP,
			FN:              c.FN,
			TPRate:          c.TPRate,
			FPRate:          c.FPRate,
			ActualPositives: c.ActualPositives,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("saving grid cell: %w", err)
		}
	}
	return nil
}
