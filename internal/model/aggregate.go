package model

// HourlyAggregate is the rollup for one (carpark, date, hour) bucket.
// Aggregation always recomputes a whole date from its snapshot partition and
// replaces the previous rows, so the table never drifts from the log even
// after re-ingestion or out-of-order appends.
type HourlyAggregate struct {
	CarparkID string `gorm:"primaryKey;size:64" json:"carpark_id"`
	Date      string `gorm:"primaryKey;size:10" json:"date"`
	Hour      int    `gorm:"primaryKey" json:"hour"`
	// SampleCount counts every snapshot in the bucket; the min/max/avg cover
	// only samples with a known available count and are nil when there are
	// none.
	SampleCount       int      `gorm:"not null" json:"sample_count"`
	MinAvailable      *int     `json:"min_available"`
	MaxAvailable      *int     `json:"max_available"`
	AvgAvailable      *float64 `json:"avg_available"`
	CappedSampleCount int      `gorm:"not null" json:"capped_sample_count"`
	// Utilization is (capacity-available)/capacity*100, undefined (nil)
	// when no sample in the bucket carries a positive capacity.
	AvgUtilizationPct  *float64 `json:"avg_utilization_pct"`
	PeakUtilizationPct *float64 `json:"peak_utilization_pct"`
}
