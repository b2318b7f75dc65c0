package models

import "time"

const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// RateLimitCounter stores one request counter per user, period type and
// period start. Old rows are kept as usage history; the engine never deletes
// them.
type RateLimitCounter struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(128);not null;index:ux_rate_limit_counters_user_period_start,unique,priority:1;index:idx_rate_limit_counters_user_period,priority:1" json:"user_id"`
	PeriodType   string    `gorm:"type:varchar(16);not null;index:ux_rate_limit_counters_user_period_start,unique,priority:2;index:idx_rate_limit_counters_user_period,priority:2" json:"period_type"`
	PeriodStart  time.Time `gorm:"type:timestamp;not null;index:ux_rate_limit_counters_user_period_start,unique,priority:3" json:"period_start"`
	RequestCount int64     `gorm:"not null;default:0" json:"request_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the table name stable regardless of GORM pluralization.
func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}
