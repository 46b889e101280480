package model

import "time"

// Carpark is one registry entry: slow-changing metadata keyed by the
// operator's carpark identifier. Rows are refreshed wholesale by an explicit
// registry refresh and are never touched by the snapshot pipeline.
type Carpark struct {
	ID        string   `gorm:"primaryKey;size:64" json:"id"`
	Name      string   `gorm:"size:256" json:"name"`
	Address   string   `gorm:"size:512" json:"address,omitempty"`
	Region    string   `gorm:"size:64" json:"region,omitempty"`
	District  string   `gorm:"size:64" json:"district,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	// Capacity is the published private-car bay count; nil when the operator
	// does not expose one.
	Capacity  *int      `json:"capacity,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Associations
	Subscriptions []*PushSubscription `gorm:"many2many:subscription_carpark_mapping;" json:"-"`
}
