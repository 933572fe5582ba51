package notify

import (
	"context"
	"time"

	"github.com/xelth-com/eckrentgo/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StoreChannel persists notifications so users can read them later
type StoreChannel struct {
	db *gorm.DB
}

// NewStoreChannel creates the persistent channel
func NewStoreChannel(db *gorm.DB) *StoreChannel {
	return &StoreChannel{db: db}
}

// Code identifies the channel
func (c *StoreChannel) Code() string { return "store" }

// Deliver inserts the notification row
func (c *StoreChannel) Deliver(ctx context.Context, msg Message) error {
	row := models.Notification{
		ID:        msg.ID,
		Kind:      msg.Kind,
		Target:    msg.Target,
		Message:   msg.Message,
		Data:      datatypes.JSONMap(msg.Data),
		CreatedAt: msg.CreatedAt,
	}
	return c.db.WithContext(ctx).Create(&row).Error
}

// ListForTarget returns the notifications of a user, newest first
func (c *StoreChannel) ListForTarget(ctx context.Context, target string, unreadOnly bool) ([]models.Notification, error) {
	var out []models.Notification
	q := c.db.WithContext(ctx).Where("target = ?", target)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// MarkRead stamps read_at on a notification of the target
func (c *StoreChannel) MarkRead(ctx context.Context, target, id string) error {
	now := time.Now().UTC()
	return c.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND target = ? AND read_at IS NULL", id, target).
		Update("read_at", now).Error
}

// Pusher is the part of the websocket hub the channel needs
type Pusher interface {
	SendToUser(userID string, message interface{}) bool
}

// WebsocketChannel pushes notifications to connected users
type WebsocketChannel struct {
	hub Pusher
}

// NewWebsocketChannel creates the push channel
func NewWebsocketChannel(hub Pusher) *WebsocketChannel {
	return &WebsocketChannel{hub: hub}
}

// Code identifies the channel
func (c *WebsocketChannel) Code() string { return "websocket" }

// Deliver pushes to the target if online. Offline targets are not an error;
// the store channel keeps the message.
func (c *WebsocketChannel) Deliver(_ context.Context, msg Message) error {
	c.hub.SendToUser(msg.Target, map[string]interface{}{
		"type":         "NOTIFICATION",
		"notification": msg,
	})
	return nil
}
