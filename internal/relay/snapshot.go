package relay

import (
	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/types"
)

// PeerInfo is the public view of a member: durable identity plus, for
// connected members, the live attribute bag.
type PeerInfo struct {
	Recordings         []types.Recording `json:"recordings"`
	CurrentRecordingId *string           `json:"current_recording_id"`
	Role               types.Role        `json:"role"`
	Name               string            `json:"name"`
	DiskUsage          any               `json:"disk_usage,omitempty"`
	Resources          any               `json:"resources,omitempty"`
	RecorderStatus     any               `json:"recorder_status,omitempty"`
}

// MemberSnapshot augments a durable membership with the member's live
// peer, when one exists.
type MemberSnapshot struct {
	PeerId        *string  `json:"peer_id"`
	ParticipantId int      `json:"uid"`
	Info          PeerInfo `json:"info"`
	Status        int      `json:"status"`
}

// InitialRoomData seeds a newly joined client's view of the room:
// every membership, connected or not, plus the room config.
type InitialRoomData struct {
	Members []MemberSnapshot `json:"members"`
	Config  types.RoomConfig `json:"config"`
}

func displayName(mem database.Membership) string {
	if mem.Name != "" {
		return mem.Name
	}
	if mem.ParticipantName != "" {
		return mem.ParticipantName
	}
	return "anonymous"
}

// memberSnapshot builds the snapshot for one membership. peerId is
// empty for disconnected members, whose live-only fields are omitted.
func (rl *Relay) memberSnapshot(room types.Room, mem database.Membership, peerId string) (MemberSnapshot, error) {
	role, ok := types.RoleFromCode(mem.Role)
	if !ok {
		role = types.RoleGuest
	}

	recordings, err := rl.db.ListRecordings(room.Id, mem.ParticipantId)
	if err != nil {
		return MemberSnapshot{}, err
	}

	info := PeerInfo{
		Recordings: make([]types.Recording, 0, len(recordings)),
		Role:       role,
		Name:       displayName(mem),
	}
	for _, rec := range recordings {
		info.Recordings = append(info.Recordings, recordingView(rec))
	}

	latest, err := rl.db.LatestRecording(room.Id, mem.ParticipantId)
	if err != nil {
		return MemberSnapshot{}, err
	}
	if latest != nil {
		id := latest.Id
		info.CurrentRecordingId = &id
	}

	snapshot := MemberSnapshot{
		ParticipantId: mem.ParticipantId,
		Info:          info,
		Status:        types.StatusDisconnected,
	}

	if peerId == "" {
		return snapshot, nil
	}

	snapshot.PeerId = &peerId
	snapshot.Status = types.StatusConnected

	attrs, err := rl.presence.Attributes(room.Id, peerId)
	if err != nil {
		return MemberSnapshot{}, err
	}
	snapshot.Info.DiskUsage = attrs["disk_usage"]
	snapshot.Info.Resources = attrs["resources"]
	snapshot.Info.RecorderStatus = attrs["recorder_status"]

	return snapshot, nil
}

// InitialData returns the full member list with live peer ids and the
// current room config.
func (rl *Relay) InitialData(roomId string) (InitialRoomData, error) {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return InitialRoomData{}, err
	}

	memberships, err := rl.db.ListMemberships(room.Id)
	if err != nil {
		return InitialRoomData{}, err
	}

	peers, err := rl.presence.PeersByParticipant(room.Id)
	if err != nil {
		return InitialRoomData{}, err
	}

	data := InitialRoomData{
		Members: make([]MemberSnapshot, 0, len(memberships)),
		Config:  room.Config,
	}
	for _, mem := range memberships {
		snapshot, err := rl.memberSnapshot(room, mem, peers[mem.ParticipantId])
		if err != nil {
			return InitialRoomData{}, err
		}
		data.Members = append(data.Members, snapshot)
	}

	return data, nil
}

func recordingView(rec database.Recording) types.Recording {
	view := types.Recording{
		Id:            rec.Id,
		ParticipantId: rec.ParticipantId,
		RoomId:        rec.RoomId,
		Type:          rec.Type,
		Filesize:      rec.Filesize,
	}
	if rec.Started.Valid {
		t := rec.Started.Time
		view.Started = &t
	}
	if rec.Ended.Valid {
		t := rec.Ended.Time
		view.Ended = &t
	}
	return view
}

// recordingPayload is the recording's event payload form.
func recordingPayload(rec types.Recording) map[string]any {
	payload := map[string]any{
		"id":             rec.Id,
		"participant_id": rec.ParticipantId,
		"room_id":        rec.RoomId,
		"type":           rec.Type,
		"filesize":       rec.Filesize,
		"duration":       rec.Duration(),
	}
	if rec.Started != nil {
		payload["started"] = rec.Started.UnixMilli()
	}
	if rec.Ended != nil {
		payload["ended"] = rec.Ended.UnixMilli()
	}
	return payload
}
