package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/parse"
	"carpark-vacancy-backend/internal/registry"
)

// WilsonAdapter normalizes the commercial operator's available-bays feed.
// The operator caps its guest figures for display ("10+" means ten or
// more), so availability above the cap is a floor, never an exact count.
type WilsonAdapter struct {
	loc *time.Location
}

// wilsonResponse covers the envelope variants the API has been seen to
// return: result.bays, result.data, and a bare top-level bays.
type wilsonResponse struct {
	Result *struct {
		Bays []wilsonBay `json:"bays"`
		Data []wilsonBay `json:"data"`
	} `json:"result"`
	Bays []wilsonBay `json:"bays"`
}

type wilsonBay struct {
	CarparkID             string `json:"carpark_id"`
	GuestAvailable        *int   `json:"guest_available"`
	GuestAvailableDisplay string `json:"guest_available_display"`
	GuestTotal            *int   `json:"guest_total"`
	LastUpdate            string `json:"last_update"`
}

func (r *wilsonResponse) bays() []wilsonBay {
	if r.Result != nil {
		if len(r.Result.Bays) > 0 {
			return r.Result.Bays
		}
		if len(r.Result.Data) > 0 {
			return r.Result.Data
		}
	}
	return r.Bays
}

func (a *WilsonAdapter) Name() string { return "wilson" }

// Normalize maps one available-bays response into canonical snapshots.
func (a *WilsonAdapter) Normalize(payload []byte, capturedAt time.Time, reg *registry.Registry) (Batch, error) {
	var resp wilsonResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Batch{}, fmt.Errorf("failed to unmarshal wilson payload: %w", err)
	}

	var batch Batch
	for _, bay := range resp.bays() {
		if bay.CarparkID == "" {
			batch.skip(SkipMissingCarparkID)
			continue
		}
		if bay.GuestAvailable == nil && bay.GuestAvailableDisplay == "" {
			batch.skip(SkipNoVacancyData)
			continue
		}

		snap := model.Snapshot{
			CarparkID:        bay.CarparkID,
			ObservedAt:       a.observedAt(bay.LastUpdate, capturedAt),
			CapturedAt:       capturedAt,
			CaptureDate:      captureDate(capturedAt, a.loc),
			AvailableDisplay: bay.GuestAvailableDisplay,
			TotalCapacity:    bay.GuestTotal,
		}

		displayed, capped := parse.Display(bay.GuestAvailableDisplay)
		switch {
		case capped:
			// The display is authoritative for a capped reading: "10+"
			// means exactly ten guaranteed, whatever the numeric field says.
			snap.Available = displayed
			snap.IsCapped = true
		case bay.GuestAvailable != nil && *bay.GuestAvailable >= 0:
			n := *bay.GuestAvailable
			snap.Available = &n
			if snap.AvailableDisplay == "" {
				snap.AvailableDisplay = strconv.Itoa(n)
			}
		default:
			// Numeric field absent or unusable; the display backfills it
			// when it parses as an exact count, otherwise the record stays
			// unknown.
			snap.Available = displayed
		}

		batch.add(reg, snap)
	}
	return batch, nil
}

// observedAt parses the operator's last_update, trying its local layout
// first and RFC3339 second, falling back to the capture time.
func (a *WilsonAdapter) observedAt(raw string, capturedAt time.Time) time.Time {
	if raw == "" {
		return capturedAt
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, a.loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(a.loc)
	}
	return capturedAt
}
