package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/registry"
)

// OpenDataAdapter normalizes the government open-data vacancy feed. The
// feed reports exact counts for each vehicle class; nothing is capped.
type OpenDataAdapter struct {
	loc *time.Location
}

// openDataResponse is the top-level shape of the vacancy endpoint.
type openDataResponse struct {
	Results []openDataResult `json:"results"`
}

type openDataResult struct {
	ParkID     string         `json:"park_Id"`
	PrivateCar vehicleSection `json:"privateCar"`
	MotorCycle vehicleSection `json:"motorCycle"`
	LGV        vehicleSection `json:"LGV"`
}

type vehicleEntry struct {
	Vacancy    *int   `json:"vacancy"`
	LastUpdate string `json:"lastupdate"`
}

// vehicleSection absorbs the feed's habit of sending a vehicle class as
// either an array of entries or a single bare object.
type vehicleSection []vehicleEntry

func (v *vehicleSection) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = nil
		return nil
	}
	if trimmed[0] == '[' {
		var entries []vehicleEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return err
		}
		*v = entries
		return nil
	}
	var entry vehicleEntry
	if err := json.Unmarshal(trimmed, &entry); err != nil {
		return err
	}
	*v = vehicleSection{entry}
	return nil
}

// first returns the representative entry for the class: the feed lists the
// current reading first.
func (v vehicleSection) first() *vehicleEntry {
	if len(v) == 0 {
		return nil
	}
	return &v[0]
}

const openDataTimeLayout = "2006-01-02 15:04:05"

func (a *OpenDataAdapter) Name() string { return "opendata" }

// Normalize maps one vacancy response into canonical snapshots.
func (a *OpenDataAdapter) Normalize(payload []byte, capturedAt time.Time, reg *registry.Registry) (Batch, error) {
	var resp openDataResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Batch{}, fmt.Errorf("failed to unmarshal open data payload: %w", err)
	}

	var batch Batch
	for _, r := range resp.Results {
		if r.ParkID == "" {
			batch.skip(SkipMissingCarparkID)
			continue
		}

		pc := r.PrivateCar.first()
		mc := r.MotorCycle.first()
		lgv := r.LGV.first()
		if pc == nil && mc == nil && lgv == nil {
			batch.skip(SkipNoVacancyData)
			continue
		}

		snap := model.Snapshot{
			CarparkID:   r.ParkID,
			ObservedAt:  a.observedAt(pc, capturedAt),
			CapturedAt:  capturedAt,
			CaptureDate: captureDate(capturedAt, a.loc),
		}

		if pc != nil {
			snap.Available = exactVacancy(pc.Vacancy)
			if snap.Available != nil {
				snap.AvailableDisplay = strconv.Itoa(*snap.Available)
			}
		}
		if mc != nil {
			snap.MotorcycleAvailable = exactVacancy(mc.Vacancy)
		}
		if lgv != nil {
			snap.GoodsAvailable = exactVacancy(lgv.Vacancy)
		}

		batch.add(reg, snap)
	}
	return batch, nil
}

// observedAt takes the private-car lastupdate when it parses, falling back
// to the capture time.
func (a *OpenDataAdapter) observedAt(pc *vehicleEntry, capturedAt time.Time) time.Time {
	if pc == nil || pc.LastUpdate == "" {
		return capturedAt
	}
	t, err := time.ParseInLocation(openDataTimeLayout, pc.LastUpdate, a.loc)
	if err != nil {
		return capturedAt
	}
	return t
}

// exactVacancy keeps a reported count only when it is usable. The feed
// uses negative numbers for closed or non-reporting carparks; those are
// unknown, not zero.
func exactVacancy(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	n := *v
	return &n
}
