package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A subscription watches zero or more carparks and is alerted when a watched
// carpark comes back from full.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Carparks []*Carpark `gorm:"many2many:subscription_carpark_mapping;"`
}
