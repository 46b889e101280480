package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carpark-vacancy-backend/internal/model"
)

// Store defines the interface for all database operations. Snapshots are an
// append-only log: there is no update or delete path for them anywhere in
// this interface, and appends are idempotent per (carpark_id, observed_at).
type Store interface {
	DB() *gorm.DB

	// AppendSnapshots writes a batch to the log and returns how many rows
	// were actually inserted. Re-appending an existing key is a no-op, and
	// records failing per-record validity are dropped without failing the
	// batch.
	AppendSnapshots(ctx context.Context, snaps []model.Snapshot) (int, error)

	// SnapshotsByDate returns one capture-day partition in non-decreasing
	// observed_at order.
	SnapshotsByDate(ctx context.Context, date string) ([]model.Snapshot, error)

	// SnapshotsSince returns all snapshots observed at or after t, in
	// non-decreasing observed_at order.
	SnapshotsSince(ctx context.Context, t time.Time) ([]model.Snapshot, error)

	// AllSnapshots returns the whole log in non-decreasing observed_at order.
	AllSnapshots(ctx context.Context) ([]model.Snapshot, error)

	// LatestSnapshots returns the most recent record per carpark.
	LatestSnapshots(ctx context.Context) (map[string]model.Snapshot, error)

	UpsertCarparks(ctx context.Context, carparks []model.Carpark) error
	Carparks(ctx context.Context) ([]model.Carpark, error)

	// ReplaceHourlyAggregates swaps out every aggregate row for the date in
	// one transaction: replace, never merge, so an aggregation re-run after
	// late data leaves exactly the recomputed result.
	ReplaceHourlyAggregates(ctx context.Context, date string, rows []model.HourlyAggregate) error
	HourlyAggregatesByDate(ctx context.Context, carparkID, date string) ([]model.HourlyAggregate, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for collaborators that query directly.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// AppendSnapshots appends a batch to the log. Duplicate keys are absorbed
// by ON CONFLICT DO NOTHING; invalid records are filtered per record.
func (s *gormStore) AppendSnapshots(ctx context.Context, snaps []model.Snapshot) (int, error) {
	valid := make([]model.Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap.CarparkID == "" || snap.ObservedAt.IsZero() || snap.CaptureDate == "" {
			log.Printf("Dropping invalid snapshot (carpark=%q observed=%v)", snap.CarparkID, snap.ObservedAt)
			continue
		}
		valid = append(valid, snap)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(valid, 200)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to append snapshots: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *gormStore) SnapshotsByDate(ctx context.Context, date string) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).
		Where("capture_date = ?", date).
		Order("observed_at, carpark_id").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots for %s: %w", date, err)
	}
	return snaps, nil
}

func (s *gormStore) SnapshotsSince(ctx context.Context, t time.Time) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).
		Where("observed_at >= ?", t).
		Order("observed_at, carpark_id").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots since %v: %w", t, err)
	}
	return snaps, nil
}

func (s *gormStore) AllSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).
		Order("observed_at, carpark_id").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snaps, nil
}

func (s *gormStore) LatestSnapshots(ctx context.Context) (map[string]model.Snapshot, error) {
	latest := s.db.Model(&model.Snapshot{}).
		Select("carpark_id, MAX(observed_at) AS observed_at").
		Group("carpark_id")

	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).Model(&model.Snapshot{}).
		Joins("JOIN (?) latest ON snapshots.carpark_id = latest.carpark_id AND snapshots.observed_at = latest.observed_at", latest).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshots: %w", err)
	}

	byCarpark := make(map[string]model.Snapshot, len(snaps))
	for _, snap := range snaps {
		byCarpark[snap.CarparkID] = snap
	}
	return byCarpark, nil
}

// UpsertCarparks refreshes registry metadata wholesale.
func (s *gormStore) UpsertCarparks(ctx context.Context, carparks []model.Carpark) error {
	if len(carparks) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "address", "region", "district", "latitude", "longitude", "capacity", "updated_at",
		}),
	}).CreateInBatches(carparks, 200).Error
	if err != nil {
		return fmt.Errorf("failed to upsert carparks: %w", err)
	}
	return nil
}

func (s *gormStore) Carparks(ctx context.Context) ([]model.Carpark, error) {
	var carparks []model.Carpark
	if err := s.db.WithContext(ctx).Order("id").Find(&carparks).Error; err != nil {
		return nil, fmt.Errorf("failed to read carparks: %w", err)
	}
	return carparks, nil
}

func (s *gormStore) ReplaceHourlyAggregates(ctx context.Context, date string, rows []model.HourlyAggregate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", date).Delete(&model.HourlyAggregate{}).Error; err != nil {
			return fmt.Errorf("failed to clear aggregates for %s: %w", date, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to insert aggregates for %s: %w", date, err)
		}
		return nil
	})
}

func (s *gormStore) HourlyAggregatesByDate(ctx context.Context, carparkID, date string) ([]model.HourlyAggregate, error) {
	var rows []model.HourlyAggregate
	err := s.db.WithContext(ctx).
		Where("carpark_id = ? AND date = ?", carparkID, date).
		Order("hour").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregates for %s on %s: %w", carparkID, date, err)
	}
	return rows, nil
}
