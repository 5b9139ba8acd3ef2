package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/relay"
	"github.com/npezzotti/go-fireside/internal/types"
)

type JoinRoomRequest struct {
	Name string `json:"name"`
}

type CreateRecordingRequest struct {
	RoomId  string `json:"room_id"`
	Type    string `json:"type"`
	Started *int64 `json:"started"`
}

type RoomActionRequest struct {
	Type string `json:"type"`
	Data struct {
		PeerId string `json:"peer_id"`
	} `json:"data"`
}

type UpdateConfigRequest struct {
	Mode              *string `json:"mode"`
	DebugMode         *bool   `json:"debug_mode"`
	VideoBitrate      *int    `json:"video_bitrate"`
	ClearVideoBitrate bool    `json:"clear_video_bitrate"`
	UploadMode        *string `json:"upload_mode"`
}

type MessageResponse struct {
	Id            int             `json:"id"`
	RoomId        string          `json:"room_id"`
	ParticipantId int             `json:"participant_id,omitempty"`
	PeerId        string          `json:"peer_id,omitempty"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     int64           `json:"timestamp"`
}

func (s *FiresideApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *FiresideApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func roomResponse(dbRoom database.Room) (types.Room, error) {
	room := types.Room{
		Id:        dbRoom.Id,
		OwnerId:   dbRoom.OwnerId,
		Config:    types.DefaultRoomConfig(),
		CreatedAt: dbRoom.CreatedAt,
	}
	if len(dbRoom.Config) > 0 {
		if err := json.Unmarshal(dbRoom.Config, &room.Config); err != nil {
			return types.Room{}, err
		}
	}
	return room, nil
}

func (s *FiresideApp) createRoom(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	config, err := json.Marshal(types.DefaultRoomConfig())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Id:        s.generateRoomId(),
		OwnerId:   participant.Id,
		OwnerName: participant.Name,
		Config:    config,
	})
	if err != nil {
		s.log.Printf("create room: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := roomResponse(newRoom)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *FiresideApp) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRoom, err := s.db.GetRoom(roomId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := roomResponse(dbRoom)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *FiresideApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetRoom(roomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	mem, err := s.db.CreateMembership(roomId, participant.Id, types.RoleGuest.Code(), req.Name)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicateMembership) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, ok := types.RoleFromCode(mem.Role)
	if !ok {
		role = types.RoleGuest
	}

	s.writeJson(w, http.StatusCreated, types.Membership{
		Id:                 mem.Id,
		RoomId:             mem.RoomId,
		ParticipantId:      mem.ParticipantId,
		Name:               mem.Name,
		Role:               role,
		OnboardingComplete: mem.OnboardingComplete,
		Joined:             mem.JoinedAt,
	})
}

// requireMembership loads the caller's membership or maps its absence
// to a 403.
func (s *FiresideApp) requireMembership(roomId string, participantId int) (database.Membership, *ApiError) {
	mem, err := s.db.GetMembership(roomId, participantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Membership{}, NewForbiddenError()
		}
		return database.Membership{}, NewInternalServerError(err)
	}
	return mem, nil
}

func (s *FiresideApp) getMessages(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, apiErr := s.requireMembership(roomId, participant.Id); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		ms, err := strconv.ParseInt(beforeStr, 10, 64)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		before = time.UnixMilli(ms).UTC()
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.ListMessages(roomId, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, MessageResponse{
			Id:            msg.Id,
			RoomId:        msg.RoomId,
			ParticipantId: msg.ParticipantId,
			PeerId:        msg.PeerId,
			Type:          msg.Type,
			Payload:       msg.Payload,
			Timestamp:     msg.CreatedAt.UnixMilli(),
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *FiresideApp) listRecordings(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, apiErr := s.requireMembership(roomId, participant.Id); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	recordings, err := s.db.ListRecordings(roomId, participant.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Recording, 0, len(recordings))
	for _, rec := range recordings {
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
		resp = append(resp, view)
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *FiresideApp) createRecording(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.Type == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, apiErr := s.requireMembership(req.RoomId, participant.Id); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var started *time.Time
	if req.Started != nil {
		t := time.UnixMilli(*req.Started).UTC()
		started = &t
	}

	rec, err := s.relay.CreateRecording(req.RoomId, participant.Id, req.Type, started)
	if err != nil {
		s.log.Printf("create recording: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, rec)
}

// requireOwner checks that the participant holds the owner membership
// of the room.
func (s *FiresideApp) requireOwner(roomId string, participantId int) *ApiError {
	mem, apiErr := s.requireMembership(roomId, participantId)
	if apiErr != nil {
		return apiErr
	}

	if role, _ := types.RoleFromCode(mem.Role); role != types.RoleOwner {
		return NewForbiddenError()
	}
	return nil
}

// callerPeerId resolves the caller's live peer in the room, if any.
func (s *FiresideApp) callerPeerId(roomId string, participantId int) string {
	peer, err := s.relay.Presence().ForParticipant(roomId, participantId)
	if err != nil || peer == nil {
		return ""
	}
	return peer.Id
}

func (s *FiresideApp) roomAction(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if apiErr := s.requireOwner(roomId, participant.Id); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var req RoomActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fromPeerId := s.callerPeerId(roomId, participant.Id)

	var err error
	switch req.Type {
	case relay.ActionStartRecording:
		err = s.relay.StartRecording(roomId, req.Data.PeerId, fromPeerId, participant.Id)
	case relay.ActionStopRecording:
		err = s.relay.StopRecording(roomId, req.Data.PeerId, fromPeerId, participant.Id)
	case relay.ActionKick:
		err = s.relay.Kick(roomId, req.Data.PeerId, fromPeerId)
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, relay.ErrPeerNotFound):
			errResp = NewNotFoundError()
		case errors.Is(err, relay.ErrNotImplemented):
			errResp = &ApiError{
				StatusCode: http.StatusNotImplemented,
				Message:    lower(http.StatusText(http.StatusNotImplemented)),
			}
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *FiresideApp) updateConfig(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if apiErr := s.requireOwner(roomId, participant.Id); apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Mode != nil && *req.Mode != types.RoomModeAudio && *req.Mode != types.RoomModeVideo {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	cfg, err := s.relay.UpdateConfig(roomId, s.callerPeerId(roomId, participant.Id), participant.Id, relay.ConfigPatch{
		Mode:              req.Mode,
		DebugMode:         req.DebugMode,
		VideoBitrate:      req.VideoBitrate,
		ClearVideoBitrate: req.ClearVideoBitrate,
		UploadMode:        req.UploadMode,
	})
	if err != nil {
		s.log.Printf("update config: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, cfg)
}

func (s *FiresideApp) serveWs(w http.ResponseWriter, r *http.Request) {
	participant, ok := ParticipantFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := relay.NewClient(s.relay, s.broker, roomId, participant, conn, s.log, s.stats)
	if err := client.Start(); err != nil {
		s.log.Printf("start client for room %q: %v", roomId, err)
		code := websocket.ClosePolicyViolation
		if !errors.Is(err, relay.ErrNotAMember) {
			code = websocket.CloseInternalServerErr
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
