package services

import (
	"context"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"
)

const testMessage = "<b>AERO GUARDIAN</b>\nTest notification. Alerts will be delivered to this chat."

// MessageSender sends a plain text notification
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// NotifyResult reports a delivered test message
type NotifyResult struct {
	Sent   bool      `json:"sent"`
	SentAt time.Time `json:"sent_at"`
}

// NotifyService lets the operator check the alert channel
type NotifyService struct {
	sender MessageSender
	Mounts []MountPoint
}

// NewNotifyService creates the service; sender is nil when notifications are off
func NewNotifyService(sender MessageSender) *NotifyService {
	return &NotifyService{sender: sender}
}

// Test sends a test message through the configured channel
func (s *NotifyService) Test(ctx context.Context) (*NotifyResult, error) {
	if s.sender == nil {
		return nil, goa.PermanentError(ErrNameUnavailable, "notifications are not configured")
	}
	if err := s.sender.SendMessage(ctx, testMessage); err != nil {
		return nil, goa.NewServiceError(err, ErrNameUnavailable, false, true, false)
	}
	return &NotifyResult{Sent: true, SentAt: time.Now().UTC()}, nil
}

// Mount registers the notification routes
func (s *NotifyService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "test_notification", http.MethodPost, "/api/notify/test", func(w http.ResponseWriter, r *http.Request) {
			res, err := s.Test(r.Context())
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			writeJSON(r.Context(), w, http.StatusOK, res)
		}),
	)
}
