package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockFiresideRepository struct {
	mock.Mock
}

func (m *MockFiresideRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockFiresideRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockFiresideRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockFiresideRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockFiresideRepository) EnsureParticipantForAccount(accountId int, name string) (Participant, error) {
	args := m.Called(accountId, name)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockFiresideRepository) EnsureParticipantForSession(sessionKey string) (Participant, error) {
	args := m.Called(sessionKey)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockFiresideRepository) GetParticipant(participantId int) (Participant, error) {
	args := m.Called(participantId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockFiresideRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockFiresideRepository) GetRoom(roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockFiresideRepository) SaveRoomConfig(roomId string, config []byte) error {
	args := m.Called(roomId, config)
	return args.Error(0)
}
func (m *MockFiresideRepository) CreateMembership(roomId string, participantId int, role, name string) (Membership, error) {
	args := m.Called(roomId, participantId, role, name)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockFiresideRepository) GetMembership(roomId string, participantId int) (Membership, error) {
	args := m.Called(roomId, participantId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockFiresideRepository) ListMemberships(roomId string) ([]Membership, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockFiresideRepository) SetMembershipOnboarded(roomId string, participantId int, complete bool) error {
	args := m.Called(roomId, participantId, complete)
	return args.Error(0)
}
func (m *MockFiresideRepository) CreateMessage(msg Message) (int, error) {
	args := m.Called(msg)
	return args.Int(0), args.Error(1)
}
func (m *MockFiresideRepository) ListMessages(roomId string, before time.Time, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockFiresideRepository) CountMessages(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockFiresideRepository) CreateRecording(params CreateRecordingParams) (Recording, error) {
	args := m.Called(params)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockFiresideRepository) GetRecording(recordingId string) (Recording, error) {
	args := m.Called(recordingId)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockFiresideRepository) ListRecordings(roomId string, participantId int) ([]Recording, error) {
	args := m.Called(roomId, participantId)
	return args.Get(0).([]Recording), args.Error(1)
}
func (m *MockFiresideRepository) LatestRecording(roomId string, participantId int) (*Recording, error) {
	args := m.Called(roomId, participantId)
	if rec, ok := args.Get(0).(*Recording); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockFiresideRepository) UpdateRecording(recordingId string, params UpdateRecordingParams) error {
	args := m.Called(recordingId, params)
	return args.Error(0)
}
func (m *MockFiresideRepository) RecordingBelongsTo(recordingId string, participantId int) bool {
	args := m.Called(recordingId, participantId)
	return args.Bool(0)
}
