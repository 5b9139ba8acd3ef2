package database

import (
	"database/sql"
	"time"
)

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Participant is the durable identity used across rooms and
// reconnects. AccountId is zero for anonymous participants, which are
// keyed by SessionKey instead.
type Participant struct {
	Id         int
	AccountId  int
	SessionKey string
	Name       string
}

type Room struct {
	Id        string
	OwnerId   int
	Config    []byte
	CreatedAt time.Time
}

type Membership struct {
	Id                 int
	RoomId             string
	ParticipantId      int
	Name               string
	Role               string
	OnboardingComplete bool
	JoinedAt           time.Time
	// ParticipantName is joined in on reads for display-name
	// resolution; it is not a column of the memberships table.
	ParticipantName string
}

type Message struct {
	Id            int
	RoomId        string
	ParticipantId int
	PeerId        string
	Type          string
	Payload       []byte
	CreatedAt     time.Time
}

type Recording struct {
	Id            string
	ParticipantId int
	RoomId        string
	Type          string
	Filesize      int64
	Started       sql.NullTime
	Ended         sql.NullTime
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Id        string
	OwnerId   int
	OwnerName string
	Config    []byte
}

type CreateRecordingParams struct {
	Id            string
	ParticipantId int
	RoomId        string
	Type          string
	Filesize      int64
	Started       *time.Time
}

// UpdateRecordingParams is a partial update; nil fields are left
// untouched.
type UpdateRecordingParams struct {
	Type     *string
	Filesize *int64
	Started  *time.Time
	Ended    *time.Time
}
