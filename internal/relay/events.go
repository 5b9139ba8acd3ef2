package relay

import (
	"time"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/types"
)

// EventHandler reacts to an event message before it is broadcast.
// Handlers mutate the presence registry or durable records; the event
// itself is broadcast by the caller regardless.
type EventHandler func(rl *Relay, room types.Room, event map[string]any, msg message.Message) error

// EventHandlers maps event subtypes to handlers. The table is built
// at startup and passed to the relay; there is no global registry.
type EventHandlers map[string]EventHandler

// DefaultEventHandlers returns the built-in handler table.
func DefaultEventHandlers() EventHandlers {
	return EventHandlers{
		EventUpdateStatus:  handleUpdateStatus,
		EventStopRecording: handleStopRecording,
	}
}

// handleUpdateStatus merges peer-reported status into the sender's
// attribute bag. An onboarding_complete flag additionally flips the
// durable membership record.
func handleUpdateStatus(rl *Relay, room types.Room, event map[string]any, msg message.Message) error {
	data, ok := event["data"].(map[string]any)
	if !ok {
		return nil
	}

	if usage, ok := data["disk_usage"]; ok {
		if err := rl.presence.SetAttribute(room.Id, msg.PeerId, "disk_usage", usage); err != nil {
			return err
		}
	} else if resources, ok := data["resources"]; ok {
		if err := rl.presence.SetAttribute(room.Id, msg.PeerId, "resources", resources); err != nil {
			return err
		}
	} else if status, ok := data["recorder_status"]; ok {
		if err := rl.presence.SetAttribute(room.Id, msg.PeerId, "recorder_status", status); err != nil {
			return err
		}
	}

	if complete, ok := data["onboarding_complete"].(bool); ok {
		if err := rl.db.SetMembershipOnboarded(room.Id, msg.ParticipantId, complete); err != nil {
			return err
		}
	}

	return nil
}

// handleStopRecording applies a partial recording update reported by
// the recording peer. Invalid updates and updates against recordings
// the sender does not own are dropped without signaling the sender;
// only a log line records the fact.
func handleStopRecording(rl *Relay, room types.Room, event map[string]any, msg message.Message) error {
	data, ok := event["data"].(map[string]any)
	if !ok {
		rl.log.Printf("stop_recording event without data in room %q", room.Id)
		return nil
	}

	update, recordingId, ok := parseRecordingUpdate(data)
	if !ok {
		rl.log.Printf("dropping invalid stop_recording update in room %q", room.Id)
		return nil
	}

	if !rl.db.RecordingBelongsTo(recordingId, msg.ParticipantId) {
		rl.log.Printf("dropping stop_recording update for recording %q: not owned by participant %d",
			recordingId, msg.ParticipantId)
		return nil
	}

	return rl.db.UpdateRecording(recordingId, update)
}

// parseRecordingUpdate validates the event data against the partial
// recording update shape: a required id plus any of type, filesize,
// started and ended (ms-epoch). A wrongly typed field invalidates the
// whole update.
func parseRecordingUpdate(data map[string]any) (database.UpdateRecordingParams, string, bool) {
	var params database.UpdateRecordingParams

	recordingId, ok := data["id"].(string)
	if !ok || recordingId == "" {
		return params, "", false
	}

	for key, value := range data {
		switch key {
		case "id":
		case "type":
			s, ok := value.(string)
			if !ok {
				return params, "", false
			}
			params.Type = &s
		case "filesize":
			n, ok := value.(float64)
			if !ok || n < 0 {
				return params, "", false
			}
			size := int64(n)
			params.Filesize = &size
		case "started":
			t, ok := parseMilliTimestamp(value)
			if !ok {
				return params, "", false
			}
			params.Started = &t
		case "ended":
			t, ok := parseMilliTimestamp(value)
			if !ok {
				return params, "", false
			}
			params.Ended = &t
		default:
			// unknown fields are ignored, matching partial updates
		}
	}

	return params, recordingId, true
}

func parseMilliTimestamp(value any) (time.Time, bool) {
	ms, ok := value.(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
