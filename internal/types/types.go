package types

import (
	"time"
)

// Role is a participant's role within a room.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
)

var roleCodes = map[Role]string{
	RoleOwner: "o",
	RoleGuest: "g",
}

var rolesByCode = map[string]Role{
	"o": RoleOwner,
	"g": RoleGuest,
}

// Code returns the single character form stored in the database.
func (r Role) Code() string {
	return roleCodes[r]
}

func RoleFromCode(code string) (Role, bool) {
	role, ok := rolesByCode[code]
	return role, ok
}

// Connection status of a member, as exposed to clients.
const (
	StatusDisconnected = 0
	StatusConnected    = 1
)

// Participant is a durable identity usable across rooms and
// reconnects. It is linked either to an account or to an anonymous
// session key.
type Participant struct {
	Id         int    `json:"id"`
	AccountId  int    `json:"account_id,omitempty"`
	SessionKey string `json:"-"`
	Name       string `json:"name,omitempty"`
}

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// RoomConfig is the mutable per-room configuration blob. It only
// changes through the update_config action, and every change is
// followed by a broadcast event.
type RoomConfig struct {
	Mode              string   `json:"mode"`
	DebugMode         bool     `json:"debug_mode"`
	VideoBitrate      *int     `json:"video_bitrate"`
	UploadMode        string   `json:"upload_mode"`
	UploadModeChoices []string `json:"upload_mode_choices"`
}

const (
	RoomModeAudio = "audio"
	RoomModeVideo = "video"

	UploadModeFile = "file"
	UploadModeHTTP = "http"
)

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		Mode:              RoomModeAudio,
		UploadMode:        UploadModeFile,
		UploadModeChoices: []string{UploadModeFile, UploadModeHTTP},
	}
}

type Room struct {
	Id        string     `json:"id"`
	OwnerId   int        `json:"owner_id"`
	Config    RoomConfig `json:"config"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

// Membership is the durable join record binding a participant to a
// room, one per (room, participant) pair.
type Membership struct {
	Id                 int       `json:"id"`
	RoomId             string    `json:"room_id"`
	ParticipantId      int       `json:"participant_id"`
	Name               string    `json:"name,omitempty"`
	Role               Role      `json:"role"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	Joined             time.Time `json:"joined"`
}

// DisplayName prefers the per-room name override over the
// participant's own name.
func (m Membership) DisplayName(p Participant) string {
	if m.Name != "" {
		return m.Name
	}
	if p.Name != "" {
		return p.Name
	}
	return "anonymous"
}

type Recording struct {
	Id            string     `json:"id"`
	ParticipantId int        `json:"participant_id"`
	RoomId        string     `json:"room_id"`
	Type          string     `json:"type"`
	Filesize      int64      `json:"filesize"`
	Started       *time.Time `json:"started"`
	Ended         *time.Time `json:"ended"`
}

// Duration reports the recording length in seconds, zero while the
// recording is still running.
func (r Recording) Duration() float64 {
	if r.Started == nil || r.Ended == nil {
		return 0
	}
	return r.Ended.Sub(*r.Started).Seconds()
}
