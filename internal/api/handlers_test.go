package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/types"
)

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func asParticipant(req *http.Request, p types.Participant) *http.Request {
	return req.WithContext(WithParticipant(req.Context(), p))
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockFiresideRepository{}
			db.On("Ping").Return(tc.mockErr).Once()
			app := newTestApp(t, db)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
			db.AssertExpectations(t)
		})
	}
}

func TestCreateRoomHandler(t *testing.T) {
	db := &database.MockFiresideRepository{}
	db.On("CreateRoom", mock.MatchedBy(func(params database.CreateRoomParams) bool {
		return params.Id == "abc123" && params.OwnerId == 10 && params.OwnerName == "alice"
	})).Return(database.Room{Id: "abc123", OwnerId: 10, CreatedAt: time.Now().UTC()}, nil)

	app := newTestApp(t, db)
	app.generateRoomId = func() string { return "abc123" }

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader("{}"))
	app.createRoom(rr, asParticipant(req, types.Participant{Id: 10, Name: "alice"}))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var room types.Room
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room))
	assert.Equal(t, "abc123", room.Id)
	assert.Equal(t, 10, room.OwnerId)
	assert.Equal(t, types.RoomModeAudio, room.Config.Mode, "expected the default config")

	db.AssertExpectations(t)
}

func TestGetRoomHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		config, err := json.Marshal(types.RoomConfig{Mode: types.RoomModeVideo, UploadMode: types.UploadModeHTTP})
		require.NoError(t, err)

		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 10, Config: config}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=abc123", nil)
		app.getRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusOK, rr.Code)

		var room types.Room
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room))
		assert.Equal(t, types.RoomModeVideo, room.Config.Mode, "expected the stored config")
	})
	t.Run("not found", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "zzzzzz").Return(database.Room{}, sql.ErrNoRows)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms?id=zzzzzz", nil)
		app.getRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
	t.Run("missing id", func(t *testing.T) {
		app := newTestApp(t, &database.MockFiresideRepository{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		app.getRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinRoomHandler(t *testing.T) {
	t.Run("successful join", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 1}, nil)
		db.On("CreateMembership", "abc123", 10, "g", "Bob").Return(database.Membership{
			Id:            5,
			RoomId:        "abc123",
			ParticipantId: 10,
			Name:          "Bob",
			Role:          "g",
			JoinedAt:      time.Now().UTC(),
		}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join?id=abc123", strings.NewReader(`{"name":"Bob"}`))
		app.joinRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var mem types.Membership
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mem))
		assert.Equal(t, types.RoleGuest, mem.Role)
		assert.Equal(t, "Bob", mem.Name)

		db.AssertExpectations(t)
	})
	t.Run("duplicate membership", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 1}, nil)
		db.On("CreateMembership", "abc123", 10, "g", "").
			Return(database.Membership{}, database.ErrDuplicateMembership)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join?id=abc123", strings.NewReader("{}"))
		app.joinRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusConflict, rr.Code, "expected a second join to conflict")
	})
	t.Run("room not found", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "zzzzzz").Return(database.Room{}, sql.ErrNoRows)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/join?id=zzzzzz", strings.NewReader("{}"))
		app.joinRoom(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"id": "peer-1"})
	require.NoError(t, err)

	createdAt := time.Now().UTC().Truncate(time.Millisecond)

	db := &database.MockFiresideRepository{}
	db.On("GetMembership", "abc123", 10).Return(database.Membership{RoomId: "abc123", ParticipantId: 10, Role: "g"}, nil)
	db.On("ListMessages", "abc123", mock.Anything, 50).Return([]database.Message{
		{
			Id:            1,
			RoomId:        "abc123",
			ParticipantId: 10,
			PeerId:        "peer-1",
			Type:          "l",
			Payload:       payload,
			CreatedAt:     createdAt,
		},
	}, nil)
	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=abc123&limit=50", nil)
	app.getMessages(rr, asParticipant(req, types.Participant{Id: 10}))

	assert.Equal(t, http.StatusOK, rr.Code)

	var messages []MessageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "l", messages[0].Type)
	assert.Equal(t, "peer-1", messages[0].PeerId)
	assert.Equal(t, createdAt.UnixMilli(), messages[0].Timestamp)

	t.Run("not a member", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetMembership", "abc123", 11).Return(database.Membership{}, sql.ErrNoRows)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id=abc123", nil)
		app.getMessages(rr, asParticipant(req, types.Participant{Id: 11}))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestCreateRecordingHandler(t *testing.T) {
	db := &database.MockFiresideRepository{}
	db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 1}, nil)
	db.On("GetMembership", "abc123", 10).Return(database.Membership{RoomId: "abc123", ParticipantId: 10, Role: "g"}, nil)
	db.On("CreateRecording", mock.MatchedBy(func(params database.CreateRecordingParams) bool {
		return params.RoomId == "abc123" && params.ParticipantId == 10 &&
			params.Type == "audio" && params.Id != ""
	})).Return(database.Recording{
		Id:            "rec-1",
		ParticipantId: 10,
		RoomId:        "abc123",
		Type:          "audio",
	}, nil)
	app := newTestApp(t, db)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/recordings",
		strings.NewReader(`{"room_id":"abc123","type":"audio"}`))
	app.createRecording(rr, asParticipant(req, types.Participant{Id: 10}))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var rec types.Recording
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "rec-1", rec.Id)

	db.AssertExpectations(t)
}

func TestRoomActionHandler(t *testing.T) {
	ownerMembership := database.Membership{RoomId: "abc123", ParticipantId: 10, Role: "o"}

	t.Run("guest is forbidden", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetMembership", "abc123", 11).Return(database.Membership{RoomId: "abc123", ParticipantId: 11, Role: "g"}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/actions?id=abc123",
			strings.NewReader(`{"type":"start_recording","data":{"peer_id":"peer-2"}}`))
		app.roomAction(rr, asParticipant(req, types.Participant{Id: 11}))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
	t.Run("unknown target peer", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 10}, nil)
		db.On("GetMembership", "abc123", 10).Return(ownerMembership, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/actions?id=abc123",
			strings.NewReader(`{"type":"start_recording","data":{"peer_id":"nonexistent"}}`))
		app.roomAction(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
	t.Run("kick is not implemented", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetMembership", "abc123", 10).Return(ownerMembership, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/actions?id=abc123",
			strings.NewReader(`{"type":"kick","data":{"peer_id":"peer-2"}}`))
		app.roomAction(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusNotImplemented, rr.Code)
	})
	t.Run("unknown action", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetMembership", "abc123", 10).Return(ownerMembership, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/actions?id=abc123",
			strings.NewReader(`{"type":"shutdown"}`))
		app.roomAction(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUpdateConfigHandler(t *testing.T) {
	t.Run("owner updates config", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetRoom", "abc123").Return(database.Room{Id: "abc123", OwnerId: 10}, nil)
		db.On("GetMembership", "abc123", 10).Return(database.Membership{RoomId: "abc123", ParticipantId: 10, Role: "o"}, nil)
		db.On("SaveRoomConfig", "abc123", mock.Anything).Return(nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/rooms/config?id=abc123",
			strings.NewReader(`{"mode":"video","video_bitrate":2500}`))
		app.updateConfig(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusOK, rr.Code)

		var cfg types.RoomConfig
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
		assert.Equal(t, types.RoomModeVideo, cfg.Mode)
		require.NotNil(t, cfg.VideoBitrate)
		assert.Equal(t, 2500, *cfg.VideoBitrate)

		db.AssertCalled(t, "SaveRoomConfig", "abc123", mock.Anything)
	})
	t.Run("invalid mode", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetMembership", "abc123", 10).Return(database.Membership{RoomId: "abc123", ParticipantId: 10, Role: "o"}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/rooms/config?id=abc123",
			strings.NewReader(`{"mode":"hologram"}`))
		app.updateConfig(rr, asParticipant(req, types.Participant{Id: 10}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password123")
	require.NoError(t, err)

	t.Run("successful login", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetAccountByEmail", "alice@example.com").Return(database.Account{
			Id:           1,
			Username:     "alice",
			EmailAddress: "alice@example.com",
			PasswordHash: pwdHash,
		}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected a token cookie to be set")
		assert.NotEmpty(t, cookie.Value)

		var u types.User
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
		assert.Equal(t, "alice", u.Username)
	})
	t.Run("wrong password", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetAccountByEmail", "alice@example.com").Return(database.Account{
			Id:           1,
			EmailAddress: "alice@example.com",
			PasswordHash: pwdHash,
		}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
	t.Run("unknown email", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("GetAccountByEmail", "nobody@example.com").Return(database.Account{}, sql.ErrNoRows)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"password123"}`))
		app.login(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCreateAccountHandler(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		db := &database.MockFiresideRepository{}
		db.On("CreateAccount", mock.MatchedBy(func(params database.CreateAccountParams) bool {
			return params.Username == "bob" && params.EmailAddress == "bob@example.com" &&
				params.PasswordHash != "" && params.PasswordHash != "password123"
		})).Return(database.Account{Id: 2, Username: "bob", EmailAddress: "bob@example.com"}, nil)
		app := newTestApp(t, db)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
			strings.NewReader(`{"email":"bob@example.com","username":"bob","password":"password123"}`))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var u types.User
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
		assert.Equal(t, 2, u.Id)
		assert.Equal(t, "bob", u.Username)

		db.AssertExpectations(t)
	})
	t.Run("missing fields", func(t *testing.T) {
		app := newTestApp(t, &database.MockFiresideRepository{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
			strings.NewReader(`{"email":"bob@example.com"}`))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, &database.MockFiresideRepository{})

	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected the token cookie to be overwritten")
	assert.Empty(t, cookie.Value, "expected the token cookie to be cleared")
}
