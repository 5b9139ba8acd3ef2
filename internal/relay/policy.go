package relay

import (
	"github.com/npezzotti/go-fireside/internal/message"
)

// Event subtypes with built-in behavior.
const (
	EventUpdateStatus          = "update_status"
	EventStopRecording         = "stop_recording"
	EventStartRecording        = "start_recording"
	EventRequestStartRecording = "request_start_recording"
	EventRequestStopRecording  = "request_stop_recording"
	EventUpdateConfig          = "update_config"
	EventSignallingError       = "signalling_error"
	EventInvalidMessage        = "invalid_message"

	EventUpdateRecording      = "update_recording"
	EventUpdateMeter          = "update_meter"
	EventUpdateUploadProgress = "update_upload_progress"
)

// Action names accepted by the action message type.
const (
	ActionStartRecording = "start_recording"
	ActionStopRecording  = "stop_recording"
	ActionUpdateConfig   = "update_config"
	ActionKick           = "kick"
)

// ShouldPersist decides whether a message is written to durable
// history. It is a pure function of the message type and, for events,
// of the event subtype and payload keys: leave and announce always
// persist, join/signalling/action never do, and events persist except
// for the high-frequency progress subtypes and status updates that
// only carry per-peer resource data.
func ShouldPersist(msg message.Message) bool {
	switch msg.Type {
	case message.TypeLeave, message.TypeAnnounce:
		return true
	case message.TypeJoin, message.TypeSignalling, message.TypeAction:
		return false
	case message.TypeEvent:
		subtype, _ := msg.Payload["type"].(string)
		switch subtype {
		case EventUpdateRecording, EventUpdateMeter, EventUpdateUploadProgress:
			return false
		case EventUpdateStatus:
			if data, ok := msg.Payload["data"].(map[string]any); ok {
				if _, ok := data["disk_usage"]; ok {
					return false
				}
				if _, ok := data["resources"]; ok {
					return false
				}
			}
		}
		return true
	}
	return false
}
