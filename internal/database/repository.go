package database

import (
	"errors"
	"time"
)

// ErrDuplicateMembership is returned when a (room, participant) pair
// is joined twice. Surfaced to the join caller as a conflict.
var ErrDuplicateMembership = errors.New("membership already exists")

type FiresideRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)

	// EnsureParticipant* lazily materialize the participant record at
	// the point of lookup.
	EnsureParticipantForAccount(accountId int, name string) (Participant, error)
	EnsureParticipantForSession(sessionKey string) (Participant, error)
	GetParticipant(participantId int) (Participant, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(roomId string) (Room, error)
	SaveRoomConfig(roomId string, config []byte) error

	CreateMembership(roomId string, participantId int, role, name string) (Membership, error)
	GetMembership(roomId string, participantId int) (Membership, error)
	ListMemberships(roomId string) ([]Membership, error)
	SetMembershipOnboarded(roomId string, participantId int, complete bool) error

	CreateMessage(msg Message) (int, error)
	ListMessages(roomId string, before time.Time, limit int) ([]Message, error)
	CountMessages(roomId string) (int, error)

	CreateRecording(params CreateRecordingParams) (Recording, error)
	GetRecording(recordingId string) (Recording, error)
	ListRecordings(roomId string, participantId int) ([]Recording, error)
	LatestRecording(roomId string, participantId int) (*Recording, error)
	UpdateRecording(recordingId string, params UpdateRecordingParams) error
	RecordingBelongsTo(recordingId string, participantId int) bool
}
