package model

import "time"

// Snapshot is one normalized vacancy observation from a provider feed.
// The log is append-only: (carpark_id, observed_at) is the record identity,
// and a second write with the same key is absorbed, never duplicated and
// never overwritten.
type Snapshot struct {
	CarparkID  string    `gorm:"primaryKey;size:64" json:"carpark_id"`
	ObservedAt time.Time `gorm:"primaryKey" json:"observed_at"`
	// CapturedAt is when our poller saw the record; CaptureDate is its
	// calendar day in the canonical zone and partitions the log.
	CapturedAt  time.Time `gorm:"not null" json:"captured_at"`
	CaptureDate string    `gorm:"size:10;not null;index:idx_snapshots_capture_date" json:"capture_date"`
	// Available is the free private-car bay count. nil means unknown, which
	// is distinct from 0 (full) everywhere downstream.
	Available        *int   `json:"available"`
	AvailableDisplay string `gorm:"size:16" json:"available_display,omitempty"`
	// IsCapped marks a threshold-or-more reading ("10+"); Available then
	// holds the provider's minimum-guaranteed value, never an exact count.
	IsCapped      bool `gorm:"not null" json:"is_capped"`
	TotalCapacity *int `json:"total_capacity,omitempty"`

	// Secondary vehicle classes, carried opaquely.
	MotorcycleAvailable *int `json:"motorcycle_available,omitempty"`
	GoodsAvailable      *int `json:"goods_available,omitempty"`
}
