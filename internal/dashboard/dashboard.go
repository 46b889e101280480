package dashboard

import (
	"sort"
	"time"

	"carpark-vacancy-backend/internal/model"
)

// Status buckets a carpark's current availability for display.
type Status string

const (
	StatusNoData   Status = "NO_DATA"
	StatusFull     Status = "FULL"
	StatusLow      Status = "LOW"
	StatusModerate Status = "MODERATE"
	StatusOK       Status = "OK"
)

// Classification thresholds are business constants, not configuration.
const (
	lowMax      = 5
	moderateMax = 20
)

// Classify buckets an availability figure. Unknown is its own bucket; it is
// never folded into FULL.
func Classify(available *int) Status {
	switch {
	case available == nil:
		return StatusNoData
	case *available == 0:
		return StatusFull
	case *available <= lowMax:
		return StatusLow
	case *available <= moderateMax:
		return StatusModerate
	default:
		return StatusOK
	}
}

// CarparkStatus is one row of the current-state list.
type CarparkStatus struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	District            string    `json:"district,omitempty"`
	Available           *int      `json:"available"`
	AvailableDisplay    string    `json:"available_display,omitempty"`
	IsCapped            bool      `json:"is_capped"`
	MotorcycleAvailable *int      `json:"motorcycle_available,omitempty"`
	GoodsAvailable      *int      `json:"goods_available,omitempty"`
	Status              Status    `json:"status"`
	ObservedAt          time.Time `json:"observed_at"`
}

// Point is one time-series sample, reduced to what the chart needs.
type Point struct {
	Time      time.Time `json:"time"`
	Available *int      `json:"available"`
}

// Summary carries the roll-up counters and the view's freshness indicator.
type Summary struct {
	TotalCarparks int       `json:"total_carparks"`
	FullCount     int       `json:"full_count"`
	LowCount      int       `json:"low_count"`
	ModerateCount int       `json:"moderate_count"`
	OKCount       int       `json:"ok_count"`
	NoDataCount   int       `json:"no_data_count"`
	DataPoints    int       `json:"data_points"`
	LastUpdate    time.Time `json:"last_update"`
}

// View is the current-state display artifact. It is rebuilt from scratch on
// every build and never persisted as a primary record.
type View struct {
	Carparks     map[string]model.Carpark `json:"carparks"`
	CurrentStats []CarparkStatus          `json:"current_stats"`
	Timeseries   map[string][]Point       `json:"timeseries"`
	Summary      Summary                  `json:"summary"`
}

// Build assembles the view from the snapshot log and registry metadata.
//
// Latest-wins: per carpark the record with the greatest observed_at is
// authoritative; on an exact timestamp tie the first-seen record in input
// order is kept. The time series is bounded by seriesFrom, while the latest
// record and summary always consider the full input.
func Build(snaps []model.Snapshot, carparks []model.Carpark, seriesFrom time.Time) View {
	metadata := make(map[string]model.Carpark, len(carparks))
	for _, cp := range carparks {
		metadata[cp.ID] = cp
	}

	latest := make(map[string]model.Snapshot)
	timeseries := make(map[string][]Point)
	var lastUpdate time.Time

	for _, snap := range snaps {
		if cur, ok := latest[snap.CarparkID]; !ok || snap.ObservedAt.After(cur.ObservedAt) {
			latest[snap.CarparkID] = snap
		}
		if snap.ObservedAt.After(lastUpdate) {
			lastUpdate = snap.ObservedAt
		}
		if !snap.ObservedAt.Before(seriesFrom) {
			timeseries[snap.CarparkID] = append(timeseries[snap.CarparkID], Point{
				Time:      snap.ObservedAt,
				Available: snap.Available,
			})
		}
	}

	for _, points := range timeseries {
		sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	}

	stats := make([]CarparkStatus, 0, len(latest))
	summary := Summary{DataPoints: len(snaps), LastUpdate: lastUpdate}
	for id, snap := range latest {
		cp := metadata[id]
		name := cp.Name
		if name == "" {
			name = "Carpark " + id
		}

		status := Classify(snap.Available)
		switch status {
		case StatusFull:
			summary.FullCount++
		case StatusLow:
			summary.LowCount++
		case StatusModerate:
			summary.ModerateCount++
		case StatusOK:
			summary.OKCount++
		default:
			summary.NoDataCount++
		}

		stats = append(stats, CarparkStatus{
			ID:                  id,
			Name:                name,
			District:            cp.District,
			Available:           snap.Available,
			AvailableDisplay:    snap.AvailableDisplay,
			IsCapped:            snap.IsCapped,
			MotorcycleAvailable: snap.MotorcycleAvailable,
			GoodsAvailable:      snap.GoodsAvailable,
			Status:              status,
			ObservedAt:          snap.ObservedAt,
		})
	}
	summary.TotalCarparks = len(stats)

	// Fullest first, unknown availability last, carpark id as the final
	// tie-break so the order is stable.
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if (a.Available == nil) != (b.Available == nil) {
			return b.Available == nil
		}
		if a.Available != nil && *a.Available != *b.Available {
			return *a.Available < *b.Available
		}
		return a.ID < b.ID
	})

	return View{
		Carparks:     metadata,
		CurrentStats: stats,
		Timeseries:   timeseries,
		Summary:      summary,
	}
}
