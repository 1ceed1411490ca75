package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lostfound-sync/internal/application/grouping"
	"github.com/lostfound-sync/internal/application/item"
	"github.com/lostfound-sync/internal/application/notification"
	"github.com/lostfound-sync/internal/application/visibility"
	"github.com/lostfound-sync/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// Frame types pushed down a screen socket.
const (
	frameNotifications = "notifications"
	frameItems         = "items"
	frameAck           = "ack"
	frameError         = "error"
)

// NotificationsFrame is one projection of the notifications screen.
type NotificationsFrame struct {
	Type     string                 `json:"type"`
	Version  uint64                 `json:"version"`
	Loaded   bool                   `json:"loaded"`
	Unread   int                    `json:"unread"`
	Pending  int                    `json:"pending"`
	Sections []grouping.SectionView `json:"sections"`
	Error    string                 `json:"error,omitempty"`
	Notice   string                 `json:"notice,omitempty"`
}

func notificationsFrame(s *notification.Snapshot) NotificationsFrame {
	f := NotificationsFrame{
		Type:     frameNotifications,
		Version:  s.Version,
		Loaded:   s.Loaded,
		Unread:   s.Unread,
		Pending:  s.Pending,
		Sections: s.Sections,
	}
	if f.Sections == nil {
		f.Sections = []grouping.SectionView{}
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	if s.Notice != nil {
		f.Notice = s.Notice.Error()
	}
	return f
}

// ItemsFrame is one projection of the items screen.
type ItemsFrame struct {
	Type    string             `json:"type"`
	Version uint64             `json:"version"`
	Loaded  bool               `json:"loaded"`
	Items   []visibility.Entry `json:"items"`
	Error   string             `json:"error,omitempty"`
}

func itemsFrame(s *item.Snapshot) ItemsFrame {
	f := ItemsFrame{Type: frameItems, Version: s.Version, Loaded: s.Loaded, Items: s.Items}
	if f.Items == nil {
		f.Items = []visibility.Entry{}
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	return f
}

// AckFrame answers a client command.
type AckFrame struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

func ack(action string, err error) AckFrame {
	if err == nil {
		return AckFrame{Type: frameAck, Action: action}
	}
	return AckFrame{Type: frameError, Action: action, Error: err.Error(), ErrorCode: statusFor(err)}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func httpError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, MessageEnvelope{Error: err.Error(), ErrorCode: status})
}

// statusFor maps domain sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrMutation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
