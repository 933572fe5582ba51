package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Task status constants
const (
	StatusOpen = "open"
	StatusDone = "done"
)

// Numberer issues task numbers
type Numberer interface {
	IssueNextSerial(ctx context.Context, kind serial.EntityKind, opts serial.Options) (serial.Serial, error)
}

// Service stores follow-up tasks for staff
type Service struct {
	db      *gorm.DB
	numbers Numberer
}

// NewService creates the task service
func NewService(db *gorm.DB, numbers Numberer) *Service {
	return &Service{db: db, numbers: numbers}
}

// CreateFollowUpTask stores an open task and returns its number
func (s *Service) CreateFollowUpTask(ctx context.Context, title, description string, due time.Time, data map[string]interface{}) (string, error) {
	number, err := s.numbers.IssueNextSerial(ctx, serial.KindTask, serial.Options{})
	if err != nil {
		return "", fmt.Errorf("number task: %w", err)
	}
	task := models.FollowUpTask{
		ID:          uuid.New().String(),
		Number:      number.Value,
		Title:       title,
		Description: description,
		DueDate:     due,
		Status:      StatusOpen,
		Data:        datatypes.JSONMap(data),
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", &repository.StorageError{Op: "create task", Err: err}
	}
	return task.Number, nil
}

// ListOpen returns open tasks ordered by due date
func (s *Service) ListOpen(ctx context.Context) ([]models.FollowUpTask, error) {
	var out []models.FollowUpTask
	err := s.db.WithContext(ctx).Where("status = ?", StatusOpen).Order("due_date").Find(&out).Error
	if err != nil {
		return nil, &repository.StorageError{Op: "list tasks", Err: err}
	}
	return out, nil
}

// Complete marks a task done
func (s *Service) Complete(ctx context.Context, number string) error {
	res := s.db.WithContext(ctx).Model(&models.FollowUpTask{}).Where("number = ?", number).Update("status", StatusDone)
	if res.Error != nil {
		return &repository.StorageError{Op: "complete task", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", number, repository.ErrNotFound)
	}
	return nil
}

// Get loads a task by number
func (s *Service) Get(ctx context.Context, number string) (models.FollowUpTask, error) {
	var task models.FollowUpTask
	err := s.db.WithContext(ctx).First(&task, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.FollowUpTask{}, fmt.Errorf("task %s: %w", number, repository.ErrNotFound)
	}
	if err != nil {
		return models.FollowUpTask{}, &repository.StorageError{Op: "load task", Err: err}
	}
	return task, nil
}
