package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a message emitted to a user or role
type Notification struct {
	ID        string            `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Kind      string            `gorm:"column:kind;not null;index" json:"kind"` // reservation_created, ...
	Target    string            `gorm:"column:target;not null;index" json:"target"`
	Message   string            `gorm:"column:message;type:text" json:"message"`
	Data      datatypes.JSONMap `gorm:"column:data" json:"data,omitempty"`
	ReadAt    *time.Time        `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt time.Time         `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name
func (Notification) TableName() string {
	return "notifications"
}
