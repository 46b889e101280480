package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/registry"
	"carpark-vacancy-backend/internal/store"
)

func intPtr(n int) *int { return &n }

func TestWriteCSV(t *testing.T) {
	at := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	reg := registry.New([]model.Carpark{{ID: "A001", Name: "Star Ferry"}})

	snaps := []model.Snapshot{
		{CarparkID: "A001", ObservedAt: at, CaptureDate: "2026-08-25", Available: intPtr(12), AvailableDisplay: "12"},
		{CarparkID: "X9", ObservedAt: at.Add(time.Minute), CaptureDate: "2026-08-25", Available: nil, IsCapped: false},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, snaps, reg))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "capture_date", rows[0][0])
	assert.Equal(t, "Star Ferry", rows[1][3])
	assert.Equal(t, "12", rows[1][4])

	// Unregistered id keeps an empty name; unknown availability is an empty
	// cell, not 0.
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "", rows[2][4])
}

func TestRange(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Carpark{}, &model.Snapshot{}))
	st := store.NewGormStore(db)
	ctx := context.Background()

	mk := func(day string, hour int) model.Snapshot {
		at, _ := time.Parse("2006-01-02", day)
		at = at.Add(time.Duration(hour) * time.Hour)
		return model.Snapshot{CarparkID: "A001", ObservedAt: at, CapturedAt: at, CaptureDate: day, Available: intPtr(hour)}
	}

	_, err = st.AppendSnapshots(ctx, []model.Snapshot{
		mk("2026-08-23", 9),
		mk("2026-08-24", 9),
		mk("2026-08-25", 9),
		mk("2026-08-26", 9),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Range(ctx, &buf, st, "2026-08-24", "2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3) // header + two days, one row each
}

func TestRange_InvalidDates(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Carpark{}, &model.Snapshot{}))
	st := store.NewGormStore(db)

	var buf bytes.Buffer
	_, err = Range(context.Background(), &buf, st, "bad", "2026-08-25")
	assert.Error(t, err)

	_, err = Range(context.Background(), &buf, st, "2026-08-25", "2026-08-24")
	assert.Error(t, err)
}
