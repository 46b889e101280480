package adapter

import (
	"fmt"
	"time"

	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/registry"
)

// Skip reasons reported per record. Validation is per record, never per
// batch: one malformed entry never blocks the rest of its payload.
const (
	SkipMissingCarparkID = "missing_carpark_id"
	SkipNoVacancyData    = "no_vacancy_data"
)

// Batch is the outcome of normalizing one provider payload.
type Batch struct {
	Snapshots []model.Snapshot
	// Skipped counts records dropped during normalization, by reason.
	Skipped map[string]int
	// Unregistered counts snapshots whose carpark id is not in the registry.
	// Those snapshots are still kept; an unknown id is a diagnostic, not an
	// error.
	Unregistered int
}

func (b *Batch) skip(reason string) {
	if b.Skipped == nil {
		b.Skipped = make(map[string]int)
	}
	b.Skipped[reason]++
}

func (b *Batch) add(reg *registry.Registry, snap model.Snapshot) {
	if _, ok := reg.Lookup(snap.CarparkID); !ok {
		b.Unregistered++
	}
	b.Snapshots = append(b.Snapshots, snap)
}

// Adapter turns one provider's raw payload into canonical snapshots.
// Adapters are pure: they never touch the store.
type Adapter interface {
	Name() string
	Normalize(payload []byte, capturedAt time.Time, reg *registry.Registry) (Batch, error)
}

// ForProvider returns the adapter registered under the given name.
func ForProvider(name string, loc *time.Location) (Adapter, error) {
	switch name {
	case "opendata":
		return &OpenDataAdapter{loc: loc}, nil
	case "wilson":
		return &WilsonAdapter{loc: loc}, nil
	default:
		return nil, fmt.Errorf("unknown provider adapter %q", name)
	}
}

// captureDate is the calendar-day partition key for a snapshot, in the
// canonical timezone.
func captureDate(capturedAt time.Time, loc *time.Location) string {
	return capturedAt.In(loc).Format("2006-01-02")
}
