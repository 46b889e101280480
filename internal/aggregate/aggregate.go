package aggregate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/store"
)

// bucketKey identifies one (carpark, hour) rollup bucket within a date.
type bucketKey struct {
	carparkID string
	hour      int
}

// BuildHourly rolls a day's snapshots into one aggregate per (carpark,
// hour). It is pure and deterministic: the same snapshot set always yields
// the same rows, sorted by (carpark_id, hour). Hour bucketing uses the
// canonical timezone, matching the store's day partitioning.
func BuildHourly(date string, snaps []model.Snapshot, loc *time.Location) []model.HourlyAggregate {
	buckets := make(map[bucketKey][]model.Snapshot)
	for _, snap := range snaps {
		key := bucketKey{carparkID: snap.CarparkID, hour: snap.ObservedAt.In(loc).Hour()}
		buckets[key] = append(buckets[key], snap)
	}

	rows := make([]model.HourlyAggregate, 0, len(buckets))
	for key, bucket := range buckets {
		rows = append(rows, buildBucket(key, date, bucket))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CarparkID != rows[j].CarparkID {
			return rows[i].CarparkID < rows[j].CarparkID
		}
		return rows[i].Hour < rows[j].Hour
	})
	return rows
}

func buildBucket(key bucketKey, date string, bucket []model.Snapshot) model.HourlyAggregate {
	row := model.HourlyAggregate{
		CarparkID:   key.carparkID,
		Date:        date,
		Hour:        key.hour,
		SampleCount: len(bucket),
	}

	var (
		knownSum   int
		knownCount int
		utilSum    float64
		utilCount  int
		utilPeak   float64
	)

	for _, snap := range bucket {
		if snap.IsCapped {
			row.CappedSampleCount++
		}
		if snap.Available == nil {
			continue
		}
		v := *snap.Available

		if row.MinAvailable == nil || v < *row.MinAvailable {
			min := v
			row.MinAvailable = &min
		}
		if row.MaxAvailable == nil || v > *row.MaxAvailable {
			max := v
			row.MaxAvailable = &max
		}
		knownSum += v
		knownCount++

		// Utilization is only defined where the sample carries a positive
		// capacity.
		if snap.TotalCapacity != nil && *snap.TotalCapacity > 0 {
			util := float64(*snap.TotalCapacity-v) / float64(*snap.TotalCapacity) * 100
			utilSum += util
			if utilCount == 0 || util > utilPeak {
				utilPeak = util
			}
			utilCount++
		}
	}

	if knownCount > 0 {
		avg := float64(knownSum) / float64(knownCount)
		row.AvgAvailable = &avg
	}
	if utilCount > 0 {
		avgUtil := utilSum / float64(utilCount)
		row.AvgUtilizationPct = &avgUtil
		peak := utilPeak
		row.PeakUtilizationPct = &peak
	}
	return row
}

// Service runs aggregation against the snapshot store.
type Service struct {
	store store.Store
	loc   *time.Location
}

// NewService creates an aggregation service.
func NewService(s store.Store, loc *time.Location) *Service {
	return &Service{store: s, loc: loc}
}

// AggregateDate recomputes every hourly aggregate for one capture date from
// its full snapshot partition and replaces the previous rows. An empty
// partition yields an empty aggregate set, which simply clears the date.
func (s *Service) AggregateDate(ctx context.Context, date string) (int, error) {
	snaps, err := s.store.SnapshotsByDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("aggregation read for %s failed: %w", date, err)
	}

	rows := BuildHourly(date, snaps, s.loc)
	if err := s.store.ReplaceHourlyAggregates(ctx, date, rows); err != nil {
		return 0, fmt.Errorf("aggregation write for %s failed: %w", date, err)
	}

	log.Printf("Aggregated %s: %d snapshots into %d hourly rows", date, len(snaps), len(rows))
	return len(rows), nil
}
