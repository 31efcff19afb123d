package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemMetric is one operational sample (disk usage, lag, throughput),
// written by supervisors and retention jobs. Append-only hypertable.
type SystemMetric struct {
	ID          ULID      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Timestamp   time.Time `gorm:"primaryKey;index:idx_system_metrics_name,priority:2" json:"timestamp"`
	MetricName  string    `gorm:"not null;size:128;index:idx_system_metrics_name,priority:1" json:"metric_name"`
	MetricValue float64   `gorm:"not null" json:"metric_value"`
	Tags        JSONMap   `json:"tags,omitempty"`
	ChannelID   *string   `gorm:"size:64" json:"channel_id,omitempty"`
}

// TableName returns the table name for SystemMetric.
func (SystemMetric) TableName() string {
	return "system_metrics"
}

// Validate performs basic validation on the metric.
func (m *SystemMetric) Validate() error {
	if m.MetricName == "" {
		return ErrNameRequired
	}
	return nil
}

// BeforeCreate generates the id and timestamp, then validates.
func (m *SystemMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID.IsZero() {
		m.ID = NewULID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m.Validate()
}
