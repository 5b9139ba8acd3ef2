package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/npezzotti/go-fireside/internal/message"
)

func TestShouldPersist(t *testing.T) {
	tcases := []struct {
		name    string
		msg     message.Message
		persist bool
	}{
		{
			name:    "leave",
			msg:     message.Message{Type: message.TypeLeave, Payload: map[string]any{"id": "p1"}},
			persist: true,
		},
		{
			name:    "announce",
			msg:     message.Message{Type: message.TypeAnnounce, Payload: map[string]any{"peer": map[string]any{}}},
			persist: true,
		},
		{
			name:    "join",
			msg:     message.Message{Type: message.TypeJoin, Payload: map[string]any{"members": []any{}}},
			persist: false,
		},
		{
			name:    "signalling",
			msg:     message.Message{Type: message.TypeSignalling, Payload: map[string]any{"to": "p2", "sdp": "offer"}},
			persist: false,
		},
		{
			name:    "action",
			msg:     message.Message{Type: message.TypeAction, Payload: map[string]any{"type": ActionStartRecording}},
			persist: false,
		},
		{
			name:    "generic event",
			msg:     message.Message{Type: message.TypeEvent, Payload: map[string]any{"type": "chat_message"}},
			persist: true,
		},
		{
			name:    "update_recording event",
			msg:     message.Message{Type: message.TypeEvent, Payload: map[string]any{"type": EventUpdateRecording}},
			persist: false,
		},
		{
			name:    "update_meter event",
			msg:     message.Message{Type: message.TypeEvent, Payload: map[string]any{"type": EventUpdateMeter}},
			persist: false,
		},
		{
			name:    "update_upload_progress event",
			msg:     message.Message{Type: message.TypeEvent, Payload: map[string]any{"type": EventUpdateUploadProgress}},
			persist: false,
		},
		{
			name: "update_status with disk_usage",
			msg: message.Message{Type: message.TypeEvent, Payload: map[string]any{
				"type": EventUpdateStatus,
				"data": map[string]any{"disk_usage": float64(1024)},
			}},
			persist: false,
		},
		{
			name: "update_status with resources",
			msg: message.Message{Type: message.TypeEvent, Payload: map[string]any{
				"type": EventUpdateStatus,
				"data": map[string]any{"resources": map[string]any{"cpu": 0.5}},
			}},
			persist: false,
		},
		{
			name: "update_status with recorder_status",
			msg: message.Message{Type: message.TypeEvent, Payload: map[string]any{
				"type": EventUpdateStatus,
				"data": map[string]any{"recorder_status": "recording"},
			}},
			persist: true,
		},
		{
			name: "update_status without data",
			msg: message.Message{Type: message.TypeEvent, Payload: map[string]any{
				"type": EventUpdateStatus,
			}},
			persist: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.persist, ShouldPersist(tc.msg), "unexpected persistence decision for %s", tc.name)
		})
	}
}
