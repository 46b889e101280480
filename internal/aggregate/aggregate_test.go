package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/store"
)

func intPtr(n int) *int { return &n }

func snapAt(carparkID string, observedAt time.Time, available *int) model.Snapshot {
	return model.Snapshot{
		CarparkID:   carparkID,
		ObservedAt:  observedAt,
		CapturedAt:  observedAt,
		CaptureDate: observedAt.Format("2006-01-02"),
		Available:   available,
	}
}

func TestBuildHourly_MorningRush(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, loc)

	snaps := []model.Snapshot{
		snapAt("A001", day.Add(8*time.Hour), intPtr(12)),
		snapAt("A001", day.Add(8*time.Hour+20*time.Minute), intPtr(0)),
		snapAt("A001", day.Add(8*time.Hour+50*time.Minute), intPtr(3)),
	}

	rows := BuildHourly("2026-08-25", snaps, loc)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "A001", row.CarparkID)
	assert.Equal(t, 8, row.Hour)
	assert.Equal(t, 3, row.SampleCount)
	assert.Equal(t, 0, *row.MinAvailable)
	assert.Equal(t, 12, *row.MaxAvailable)
	assert.InDelta(t, 5.0, *row.AvgAvailable, 1e-9)
	assert.Zero(t, row.CappedSampleCount)
}

func TestBuildHourly_UnknownSamplesCountButDoNotSkewStats(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 8, 25, 10, 0, 0, 0, loc)

	snaps := []model.Snapshot{
		snapAt("A001", at, intPtr(4)),
		snapAt("A001", at.Add(10*time.Minute), nil),
		snapAt("A001", at.Add(20*time.Minute), intPtr(6)),
	}

	rows := BuildHourly("2026-08-25", snaps, loc)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 3, row.SampleCount)
	assert.Equal(t, 4, *row.MinAvailable)
	assert.Equal(t, 6, *row.MaxAvailable)
	assert.InDelta(t, 5.0, *row.AvgAvailable, 1e-9)
}

func TestBuildHourly_AllUnknown(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 8, 25, 10, 0, 0, 0, loc)

	rows := BuildHourly("2026-08-25", []model.Snapshot{snapAt("A001", at, nil)}, loc)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 1, row.SampleCount)
	assert.Nil(t, row.MinAvailable)
	assert.Nil(t, row.MaxAvailable)
	assert.Nil(t, row.AvgAvailable)
	assert.Nil(t, row.AvgUtilizationPct)
}

func TestBuildHourly_CappedAndUtilization(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 8, 25, 14, 0, 0, 0, loc)

	withCapacity := func(s model.Snapshot, capped bool, total int) model.Snapshot {
		s.IsCapped = capped
		s.TotalCapacity = intPtr(total)
		return s
	}

	snaps := []model.Snapshot{
		withCapacity(snapAt("W042", at, intPtr(10)), true, 100),                  // 90% utilized
		withCapacity(snapAt("W042", at.Add(10*time.Minute), intPtr(50)), false, 100), // 50% utilized
		snapAt("W042", at.Add(20*time.Minute), intPtr(30)), // no capacity, excluded from utilization
	}

	rows := BuildHourly("2026-08-25", snaps, loc)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 3, row.SampleCount)
	assert.Equal(t, 1, row.CappedSampleCount)
	require.NotNil(t, row.AvgUtilizationPct)
	assert.InDelta(t, 70.0, *row.AvgUtilizationPct, 1e-9)
	require.NotNil(t, row.PeakUtilizationPct)
	assert.InDelta(t, 90.0, *row.PeakUtilizationPct, 1e-9)
}

func TestBuildHourly_Deterministic(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 8, 25, 9, 0, 0, 0, loc)

	snaps := []model.Snapshot{
		snapAt("B002", at.Add(30*time.Minute), intPtr(2)),
		snapAt("A001", at, intPtr(7)),
		snapAt("A001", at.Add(2*time.Hour), intPtr(9)),
	}

	first := BuildHourly("2026-08-25", snaps, loc)
	second := BuildHourly("2026-08-25", snaps, loc)
	assert.Equal(t, first, second)

	// Output order is (carpark_id, hour).
	require.Len(t, first, 3)
	assert.Equal(t, "A001", first[0].CarparkID)
	assert.Equal(t, 9, first[0].Hour)
	assert.Equal(t, "A001", first[1].CarparkID)
	assert.Equal(t, 11, first[1].Hour)
	assert.Equal(t, "B002", first[2].CarparkID)
}

func TestService_AggregateDate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Snapshot{}, &model.HourlyAggregate{}))
	st := store.NewGormStore(db)
	ctx := context.Background()

	loc := time.UTC
	at := time.Date(2026, 8, 25, 8, 0, 0, 0, loc)
	_, err = st.AppendSnapshots(ctx, []model.Snapshot{
		snapAt("A001", at, intPtr(12)),
		snapAt("A001", at.Add(20*time.Minute), intPtr(0)),
		snapAt("A001", at.Add(50*time.Minute), intPtr(3)),
	})
	require.NoError(t, err)

	svc := NewService(st, loc)

	n, err := svc.AggregateDate(ctx, "2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-running on unchanged input overwrites rather than duplicates.
	n, err = svc.AggregateDate(ctx, "2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := st.HourlyAggregatesByDate(ctx, "A001", "2026-08-25")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].SampleCount)

	// An empty date produces an empty set, not an error.
	n, err = svc.AggregateDate(ctx, "2026-08-26")
	require.NoError(t, err)
	assert.Zero(t, n)
}
