package models

import (
	"time"

	"gorm.io/datatypes"
)

// FollowUpTask is a to-do created for staff after an intake event
type FollowUpTask struct {
	ID          string            `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Number      string            `gorm:"column:number;uniqueIndex" json:"number"`
	Title       string            `gorm:"column:title;not null" json:"title"`
	Description string            `gorm:"column:description;type:text" json:"description"`
	DueDate     time.Time         `gorm:"column:due_date;index" json:"dueDate"`
	Status      string            `gorm:"column:status;default:'open'" json:"status"`
	Data        datatypes.JSONMap `gorm:"column:data" json:"data,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (FollowUpTask) TableName() string {
	return "follow_up_tasks"
}
