package registry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"carpark-vacancy-backend/internal/model"
)

// Registry is the in-memory carpark metadata lookup for one run. It is
// loaded once per run and only replaced wholesale by an explicit refresh;
// the snapshot pipeline treats it as read-only.
type Registry struct {
	byID map[string]model.Carpark
}

// New builds a registry from a metadata slice. On duplicate ids the last
// entry wins.
func New(carparks []model.Carpark) *Registry {
	byID := make(map[string]model.Carpark, len(carparks))
	for _, cp := range carparks {
		byID[cp.ID] = cp
	}
	return &Registry{byID: byID}
}

// Lookup resolves a carpark id to its metadata.
func (r *Registry) Lookup(id string) (model.Carpark, bool) {
	cp, ok := r.byID[id]
	return cp, ok
}

// Len returns the number of registered carparks.
func (r *Registry) Len() int {
	return len(r.byID)
}

// LoadReport counts what a metadata load kept and what it skipped, by
// reason, so malformed rows are observable rather than swallowed.
type LoadReport struct {
	Loaded  int
	Skipped map[string]int
}

func (lr *LoadReport) skip(reason string) {
	if lr.Skipped == nil {
		lr.Skipped = make(map[string]int)
	}
	lr.Skipped[reason]++
}

// Seed CSV files have drifted over time: the id column has been called
// park_id, id and carpark_id, names name / name_en, addresses address /
// address_en. All of that drift is absorbed here, in one place, so nothing
// downstream ever sees it.
var (
	idColumns      = []string{"park_id", "id", "carpark_id"}
	nameColumns    = []string{"name_en", "name"}
	addressColumns = []string{"address_en", "address"}
)

// FromCSV normalizes a metadata seed CSV into canonical carpark records.
func FromCSV(r io.Reader) ([]model.Carpark, LoadReport, error) {
	var report LoadReport

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, report, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}

	pick := func(row []string, candidates []string) string {
		for _, c := range candidates {
			if i, ok := colIndex[c]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	var carparks []model.Carpark
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.skip("unreadable_row")
			continue
		}

		id := pick(row, idColumns)
		if id == "" {
			report.skip("missing_id")
			continue
		}

		cp := model.Carpark{
			ID:       id,
			Name:     pick(row, nameColumns),
			Address:  pick(row, addressColumns),
			Region:   pick(row, []string{"region"}),
			District: pick(row, []string{"district"}),
			Latitude: parseCoord(pick(row, []string{"latitude"})),
			Capacity: parseCount(pick(row, []string{"capacity", "guest_total"})),
		}
		cp.Longitude = parseCoord(pick(row, []string{"longitude"}))

		carparks = append(carparks, cp)
		report.Loaded++
	}

	return carparks, report, nil
}

// infoResult is one entry of the government metadata endpoint.
type infoResult struct {
	ParkID         string   `json:"park_Id"`
	Name           string   `json:"name"`
	DisplayAddress string   `json:"displayAddress"`
	District       string   `json:"district"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

type infoResponse struct {
	Results []infoResult `json:"results"`
}

// FromInfoPayload normalizes the government carpark-info response into
// canonical carpark records.
func FromInfoPayload(payload []byte) ([]model.Carpark, LoadReport, error) {
	var report LoadReport

	var resp infoResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, report, fmt.Errorf("failed to unmarshal carpark info payload: %w", err)
	}

	var carparks []model.Carpark
	for _, r := range resp.Results {
		if r.ParkID == "" {
			report.skip("missing_id")
			continue
		}
		carparks = append(carparks, model.Carpark{
			ID:        r.ParkID,
			Name:      r.Name,
			Address:   r.DisplayAddress,
			District:  r.District,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
		report.Loaded++
	}

	return carparks, report, nil
}

func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseCount(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
