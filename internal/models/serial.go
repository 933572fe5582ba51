package models

import "time"

// SerialCounter holds the last issued counter for an (entity, year) key.
// Year 0 is the permanent counter used when the reset policy is "never".
type SerialCounter struct {
	EntityKind string    `gorm:"column:entity_kind;primaryKey;type:varchar(16)" json:"entityKind"`
	Year       int       `gorm:"column:year;primaryKey;autoIncrement:false" json:"year"`
	Counter    int64     `gorm:"column:counter;not null" json:"counter"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (SerialCounter) TableName() string {
	return "serial_counters"
}

// SerialAuditLog records every issued serial
type SerialAuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityKind string    `gorm:"column:entity_kind;not null;index" json:"entityKind"`
	Year       int       `gorm:"column:year;not null" json:"year"`
	Counter    int64     `gorm:"column:counter;not null" json:"counter"`
	Serial     string    `gorm:"column:serial;not null;index" json:"serial"`
	ActorID    string    `gorm:"column:actor_id" json:"actorId,omitempty"`
	IPAddress  string    `gorm:"column:ip_address" json:"ipAddress,omitempty"`
	UserAgent  string    `gorm:"column:user_agent" json:"userAgent,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name
func (SerialAuditLog) TableName() string {
	return "serial_audit_logs"
}
