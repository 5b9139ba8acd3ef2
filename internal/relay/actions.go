package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/types"
)

// receiveAction routes an action message. Actions are admin-only;
// authorization is the caller's responsibility, checked before the
// message reaches the relay.
func (rl *Relay) receiveAction(room types.Room, msg message.Message) error {
	name, _ := msg.Payload["type"].(string)
	data, _ := msg.Payload["data"].(map[string]any)

	switch name {
	case ActionStartRecording, ActionStopRecording:
		target, _ := data["peer_id"].(string)
		return rl.sendRecordingRequest(room, name, target, msg.PeerId, msg.ParticipantId, nil)
	case ActionUpdateConfig:
		patch, ok := configPatchFromMap(data)
		if !ok {
			return ErrInvalidMessage
		}
		_, err := rl.UpdateConfig(room.Id, msg.PeerId, msg.ParticipantId, patch)
		return err
	case ActionKick:
		return rl.Kick(room.Id, "", msg.PeerId)
	}
	return ErrInvalidMessage
}

// sendRecordingRequest broadcasts a targeted recording event. The
// target must be a live peer; unlike signalling, a missing target is
// an error to the administrative caller.
func (rl *Relay) sendRecordingRequest(room types.Room, action, targetPeerId, fromPeerId string,
	fromParticipantId int, extra map[string]any) error {
	if _, err := rl.presence.Get(room.Id, targetPeerId); err != nil {
		return err
	}

	data := map[string]any{"target": targetPeerId}
	for k, v := range extra {
		data[k] = v
	}

	subtype := EventRequestStartRecording
	if action == ActionStopRecording {
		subtype = EventRequestStopRecording
	}

	return rl.send(room, message.Message{
		Type: message.TypeEvent,
		Payload: map[string]any{
			"type": subtype,
			"data": data,
		},
		Timestamp:     message.Now(),
		ParticipantId: fromParticipantId,
		PeerId:        fromPeerId,
	}, "")
}

// StartRecording asks the target peer to begin recording.
func (rl *Relay) StartRecording(roomId, targetPeerId, fromPeerId string, fromParticipantId int) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}
	return rl.sendRecordingRequest(room, ActionStartRecording, targetPeerId, fromPeerId, fromParticipantId, nil)
}

// StopRecording asks the target peer to stop recording.
func (rl *Relay) StopRecording(roomId, targetPeerId, fromPeerId string, fromParticipantId int) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}
	return rl.sendRecordingRequest(room, ActionStopRecording, targetPeerId, fromPeerId, fromParticipantId, nil)
}

// Kick is not implemented.
func (rl *Relay) Kick(roomId, targetPeerId, fromPeerId string) error {
	return fmt.Errorf("kick: %w", ErrNotImplemented)
}

// ConfigPatch carries the fields of an update_config action. Only the
// fields present in the action are applied; video_bitrate may be set
// to null explicitly.
type ConfigPatch struct {
	Mode              *string
	DebugMode         *bool
	VideoBitrate      *int
	ClearVideoBitrate bool
	UploadMode        *string
}

func configPatchFromMap(data map[string]any) (ConfigPatch, bool) {
	var patch ConfigPatch

	for key, value := range data {
		switch key {
		case "mode":
			s, ok := value.(string)
			if !ok || (s != types.RoomModeAudio && s != types.RoomModeVideo) {
				return ConfigPatch{}, false
			}
			patch.Mode = &s
		case "debug_mode":
			b, ok := value.(bool)
			if !ok {
				return ConfigPatch{}, false
			}
			patch.DebugMode = &b
		case "video_bitrate":
			if value == nil {
				patch.ClearVideoBitrate = true
				continue
			}
			n, ok := value.(float64)
			if !ok {
				return ConfigPatch{}, false
			}
			bitrate := int(n)
			patch.VideoBitrate = &bitrate
		case "upload_mode":
			s, ok := value.(string)
			if !ok {
				return ConfigPatch{}, false
			}
			patch.UploadMode = &s
		default:
			// unknown config fields invalidate the patch
			return ConfigPatch{}, false
		}
	}
	return patch, true
}

func (p ConfigPatch) apply(cfg types.RoomConfig) types.RoomConfig {
	if p.Mode != nil {
		cfg.Mode = *p.Mode
	}
	if p.DebugMode != nil {
		cfg.DebugMode = *p.DebugMode
	}
	if p.ClearVideoBitrate {
		cfg.VideoBitrate = nil
	} else if p.VideoBitrate != nil {
		cfg.VideoBitrate = p.VideoBitrate
	}
	if p.UploadMode != nil {
		cfg.UploadMode = *p.UploadMode
	}
	return cfg
}

// UpdateConfig merges the patch into the room's config, persists it
// and broadcasts an update_config event carrying the new config.
func (rl *Relay) UpdateConfig(roomId, fromPeerId string, fromParticipantId int, patch ConfigPatch) (types.RoomConfig, error) {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return types.RoomConfig{}, err
	}

	cfg := patch.apply(room.Config)
	raw, err := json.Marshal(cfg)
	if err != nil {
		return types.RoomConfig{}, fmt.Errorf("encode config: %w", err)
	}
	if err := rl.db.SaveRoomConfig(room.Id, raw); err != nil {
		return types.RoomConfig{}, fmt.Errorf("save config: %w", err)
	}
	room.Config = cfg

	err = rl.send(room, message.Message{
		Type: message.TypeEvent,
		Payload: map[string]any{
			"type": EventUpdateConfig,
			"data": cfg,
		},
		Timestamp:     message.Now(),
		ParticipantId: fromParticipantId,
		PeerId:        fromPeerId,
	}, "")
	if err != nil {
		return types.RoomConfig{}, err
	}
	return cfg, nil
}

func newRecordingId() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// CreateRecording creates the durable recording and broadcasts a
// start_recording event with its serialized form.
func (rl *Relay) CreateRecording(roomId string, participantId int, recType string, started *time.Time) (types.Recording, error) {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return types.Recording{}, err
	}

	rec, err := rl.db.CreateRecording(database.CreateRecordingParams{
		Id:            newRecordingId(),
		ParticipantId: participantId,
		RoomId:        room.Id,
		Type:          recType,
		Started:       started,
	})
	if err != nil {
		return types.Recording{}, fmt.Errorf("create recording: %w", err)
	}
	view := recordingView(rec)

	var peerId string
	if peer, err := rl.presence.ForParticipant(room.Id, participantId); err == nil && peer != nil {
		peerId = peer.Id
	}

	err = rl.send(room, message.Message{
		Type: message.TypeEvent,
		Payload: map[string]any{
			"type": EventStartRecording,
			"data": recordingPayload(view),
		},
		Timestamp:     message.Now(),
		ParticipantId: participantId,
		PeerId:        peerId,
	}, "")
	if err != nil {
		return types.Recording{}, err
	}
	return view, nil
}
