package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/registry"
	"carpark-vacancy-backend/internal/store"
)

var header = []string{
	"capture_date", "observed_at", "carpark_id", "name",
	"available", "available_display", "is_capped", "total_capacity",
	"motorcycle_available", "goods_available",
}

// WriteCSV streams snapshots as CSV rows, joined with registry names.
// Unknown counts are written as empty cells, never as 0.
func WriteCSV(w io.Writer, snaps []model.Snapshot, reg *registry.Registry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, snap := range snaps {
		name := ""
		if cp, ok := reg.Lookup(snap.CarparkID); ok {
			name = cp.Name
		}
		row := []string{
			snap.CaptureDate,
			snap.ObservedAt.Format(time.RFC3339),
			snap.CarparkID,
			name,
			optInt(snap.Available),
			snap.AvailableDisplay,
			strconv.FormatBool(snap.IsCapped),
			optInt(snap.TotalCapacity),
			optInt(snap.MotorcycleAvailable),
			optInt(snap.GoodsAvailable),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Range writes every snapshot captured between the from and to dates
// (inclusive, YYYY-MM-DD) by walking the store's day partitions in order.
func Range(ctx context.Context, w io.Writer, st store.Store, from, to string) (int, error) {
	fromDay, err := time.Parse("2006-01-02", from)
	if err != nil {
		return 0, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	toDay, err := time.Parse("2006-01-02", to)
	if err != nil {
		return 0, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if toDay.Before(fromDay) {
		return 0, fmt.Errorf("to date %s is before from date %s", to, from)
	}

	carparks, err := st.Carparks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry for export: %w", err)
	}
	reg := registry.New(carparks)

	var all []model.Snapshot
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		snaps, err := st.SnapshotsByDate(ctx, day.Format("2006-01-02"))
		if err != nil {
			return 0, err
		}
		all = append(all, snaps...)
	}

	if err := WriteCSV(w, all, reg); err != nil {
		return 0, err
	}
	return len(all), nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
