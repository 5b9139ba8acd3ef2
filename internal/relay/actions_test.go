package relay

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/types"
)

func TestReceive_action(t *testing.T) {
	t.Run("start recording request", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
		rl, broker := newTestRelay(t, db)

		adminPeer, _ := joinPeer(t, rl, broker, 1)
		targetPeer, targetRecv := joinPeer(t, rl, broker, 2)

		raw, err := json.Marshal(map[string]any{
			"t": "A",
			"p": map[string]any{
				"type": ActionStartRecording,
				"data": map[string]any{"peer_id": targetPeer},
			},
		})
		require.NoError(t, err)

		err = rl.Receive(testRoomId, raw, 1, adminPeer)
		assert.NoError(t, err, "expected the action to be accepted")

		msgs := targetRecv.messages(t)
		require.Len(t, msgs, 1, "expected a recording request broadcast")
		assert.Equal(t, message.TypeEvent, msgs[0].Type)
		assert.Equal(t, EventRequestStartRecording, msgs[0].Payload["type"])

		data, ok := msgs[0].Payload["data"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, targetPeer, data["target"], "expected the target peer in the event data")

		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})
	t.Run("stop recording request", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
		rl, broker := newTestRelay(t, db)

		adminPeer, _ := joinPeer(t, rl, broker, 1)
		targetPeer, targetRecv := joinPeer(t, rl, broker, 2)

		err := rl.StopRecording(testRoomId, targetPeer, adminPeer, 1)
		assert.NoError(t, err)

		msgs := targetRecv.messages(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, EventRequestStopRecording, msgs[0].Payload["type"])
	})
	t.Run("recording request for unknown peer fails", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
		rl, broker := newTestRelay(t, db)

		adminPeer, _ := joinPeer(t, rl, broker, 1)

		err := rl.StartRecording(testRoomId, "nonexistent", adminPeer, 1)
		assert.ErrorIs(t, err, ErrPeerNotFound, "expected a missing target to fail the action")
	})
	t.Run("kick is not implemented", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
		rl, broker := newTestRelay(t, db)

		adminPeer, _ := joinPeer(t, rl, broker, 1)

		raw, err := json.Marshal(map[string]any{
			"t": "A",
			"p": map[string]any{"type": ActionKick, "data": map[string]any{"peer_id": "p2"}},
		})
		require.NoError(t, err)

		err = rl.Receive(testRoomId, raw, 1, adminPeer)
		assert.ErrorIs(t, err, ErrNotImplemented)
	})
	t.Run("unknown action is invalid", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
		rl, broker := newTestRelay(t, db)

		adminPeer, _ := joinPeer(t, rl, broker, 1)

		raw, err := json.Marshal(map[string]any{
			"t": "A",
			"p": map[string]any{"type": "shutdown"},
		})
		require.NoError(t, err)

		err = rl.Receive(testRoomId, raw, 1, adminPeer)
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestUpdateConfig(t *testing.T) {
	db := newRoomRepo(t)
	db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
	db.On("SaveRoomConfig", testRoomId, mock.Anything).Return(nil)
	rl, broker := newTestRelay(t, db)

	adminPeer, recv := joinPeer(t, rl, broker, 1)

	mode := types.RoomModeVideo
	bitrate := 2500
	cfg, err := rl.UpdateConfig(testRoomId, adminPeer, 1, ConfigPatch{Mode: &mode, VideoBitrate: &bitrate})
	assert.NoError(t, err, "expected the config update to succeed")

	assert.Equal(t, types.RoomModeVideo, cfg.Mode, "expected the mode to be updated")
	require.NotNil(t, cfg.VideoBitrate)
	assert.Equal(t, 2500, *cfg.VideoBitrate)
	assert.Equal(t, types.UploadModeFile, cfg.UploadMode, "expected untouched fields to keep their values")

	db.AssertCalled(t, "SaveRoomConfig", testRoomId, mock.Anything)

	msgs := recv.messages(t)
	require.Len(t, msgs, 1, "expected an update_config broadcast")
	assert.Equal(t, message.TypeEvent, msgs[0].Type)
	assert.Equal(t, EventUpdateConfig, msgs[0].Payload["type"])

	data, ok := msgs[0].Payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, types.RoomModeVideo, data["mode"], "expected the new config in the event data")
}

func Test_configPatchFromMap(t *testing.T) {
	tcases := []struct {
		name  string
		data  map[string]any
		valid bool
	}{
		{
			name:  "mode",
			data:  map[string]any{"mode": "video"},
			valid: true,
		},
		{
			name:  "invalid mode",
			data:  map[string]any{"mode": "hologram"},
			valid: false,
		},
		{
			name:  "debug mode",
			data:  map[string]any{"debug_mode": true},
			valid: true,
		},
		{
			name:  "wrongly typed debug mode",
			data:  map[string]any{"debug_mode": "yes"},
			valid: false,
		},
		{
			name:  "bitrate",
			data:  map[string]any{"video_bitrate": float64(1500)},
			valid: true,
		},
		{
			name:  "null bitrate clears",
			data:  map[string]any{"video_bitrate": nil},
			valid: true,
		},
		{
			name:  "unknown field",
			data:  map[string]any{"max_peers": float64(10)},
			valid: false,
		},
		{
			name:  "empty patch",
			data:  map[string]any{},
			valid: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			patch, ok := configPatchFromMap(tc.data)
			assert.Equal(t, tc.valid, ok, "unexpected validity for %s", tc.name)
			if !tc.valid {
				return
			}

			if _, present := tc.data["mode"]; present {
				require.NotNil(t, patch.Mode)
				assert.Equal(t, tc.data["mode"], *patch.Mode)
			}
			if raw, present := tc.data["video_bitrate"]; present {
				if raw == nil {
					assert.True(t, patch.ClearVideoBitrate, "expected a null bitrate to clear the field")
				} else {
					require.NotNil(t, patch.VideoBitrate)
					assert.Equal(t, 1500, *patch.VideoBitrate)
				}
			}
		})
	}
}

func Test_configPatchApply(t *testing.T) {
	bitrate := 2000
	cfg := types.DefaultRoomConfig()
	cfg.VideoBitrate = &bitrate

	t.Run("empty patch changes nothing", func(t *testing.T) {
		assert.Equal(t, cfg, ConfigPatch{}.apply(cfg))
	})
	t.Run("clear bitrate", func(t *testing.T) {
		updated := ConfigPatch{ClearVideoBitrate: true}.apply(cfg)
		assert.Nil(t, updated.VideoBitrate, "expected the bitrate to be cleared")
	})
	t.Run("set fields", func(t *testing.T) {
		mode := types.RoomModeVideo
		debug := true
		updated := ConfigPatch{Mode: &mode, DebugMode: &debug}.apply(cfg)
		assert.Equal(t, types.RoomModeVideo, updated.Mode)
		assert.True(t, updated.DebugMode)
		assert.Equal(t, &bitrate, updated.VideoBitrate, "expected untouched fields to survive")
	})
}

func TestCreateRecording(t *testing.T) {
	started := message.Now()

	db := newRoomRepo(t)
	db.On("GetMembership", testRoomId, mock.Anything).Return(testMembership(1), nil)
	db.On("CreateRecording", mock.Anything).Return(database.Recording{
		Id:            "rec-1",
		ParticipantId: 1,
		RoomId:        testRoomId,
		Type:          "audio",
		Started:       sql.NullTime{Time: started, Valid: true},
	}, nil)
	rl, broker := newTestRelay(t, db)

	peerId, recv := joinPeer(t, rl, broker, 1)

	rec, err := rl.CreateRecording(testRoomId, 1, "audio", &started)
	assert.NoError(t, err, "expected the recording to be created")
	assert.Equal(t, "rec-1", rec.Id)
	require.NotNil(t, rec.Started)
	assert.True(t, rec.Started.Equal(started))

	msgs := recv.messages(t)
	require.Len(t, msgs, 1, "expected a start_recording broadcast")
	assert.Equal(t, message.TypeEvent, msgs[0].Type)
	assert.Equal(t, EventStartRecording, msgs[0].Payload["type"])
	assert.Equal(t, peerId, msgs[0].PeerId, "expected the recording peer on the envelope")

	data, ok := msgs[0].Payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rec-1", data["id"], "expected the recording id in the event data")
	assert.Equal(t, float64(started.UnixMilli()), data["started"], "expected the start time in ms")
}
