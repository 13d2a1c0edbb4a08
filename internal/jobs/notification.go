package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// NotificationSink delivers an encoded notification to a recipient.
type NotificationSink interface {
	Deliver(ctx context.Context, recipient string, notification []byte) error
}

// NotificationPayload describes a notification to send.
type NotificationPayload struct {
	UserID  string         `json:"user_id" validate:"required"`
	Type    string         `json:"type" validate:"required"`
	Message string         `json:"message" validate:"required"`
	Data    map[string]any `json:"data"`
}

// Notification is the delivered record and the output of send_notification.
type Notification struct {
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier runs send_notification.
type Notifier struct {
	sink   NotificationSink
	logger *slog.Logger
	now    func() time.Time
}

// NewNotifier creates the send_notification job. With a nil sink the
// notification is only returned as the task result.
func NewNotifier(sink NotificationSink, logger *slog.Logger) *Notifier {
	return &Notifier{
		sink:   sink,
		logger: logger.With("component", "notifier"),
		now:    time.Now,
	}
}

// Send is the send_notification handler.
func (n *Notifier) Send(ctx context.Context, p NotificationPayload) (Notification, error) {
	data := p.Data
	if data == nil {
		data = map[string]any{}
	}

	notification := Notification{
		UserID:    p.UserID,
		Type:      p.Type,
		Message:   p.Message,
		Data:      data,
		CreatedAt: n.now().UTC(),
	}

	if n.sink == nil {
		n.logger.Debug("no notification sink configured, skipping delivery", "user_id", p.UserID)
		return notification, nil
	}

	encoded, err := json.Marshal(notification)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.sink.Deliver(ctx, p.UserID, encoded); err != nil {
		return Notification{}, err
	}

	n.logger.Info("notification sent", "user_id", p.UserID, "type", p.Type)
	return notification, nil
}
