package relay

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/stats"
	"github.com/npezzotti/go-fireside/internal/testutil"
	"github.com/npezzotti/go-fireside/internal/types"
)

func Test_Queue(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}

		res := c.Queue([]byte(`{}`))
		assert.True(t, res, "expected Queue to return true when channel is not full")

		select {
		case payload := <-c.send:
			assert.NotNil(t, payload, "expected a payload to be queued")
		default:
			t.Error("expected a payload to be queued, but none was")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}

		c.send <- []byte(`{}`)
		res := c.Queue([]byte(`{}`))
		assert.False(t, res, "expected Queue to return false when channel is full")
	})
	t.Run("stopped client", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			stop: make(chan struct{}),
			log:  testutil.TestLogger(t),
		}
		close(c.stop)

		res := c.Queue([]byte(`{}`))
		assert.False(t, res, "expected Queue to return false after the client stopped")
	})
}

func newTestClient(t *testing.T, db database.FiresideRepository, su stats.StatsProvider) *Client {
	t.Helper()
	rl, broker := newTestRelay(t, db)
	return NewClient(rl, broker, testRoomId, types.Participant{Id: 1, Name: "alice"},
		nil, testutil.TestLogger(t), su)
}

func TestClient_Start(t *testing.T) {
	t.Run("joins the room", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, 1).Return(testMembership(1), nil)
		db.On("ListMemberships", testRoomId).Return([]database.Membership{testMembership(1)}, nil)
		db.On("ListRecordings", testRoomId, 1).Return([]database.Recording{}, nil)
		db.On("LatestRecording", testRoomId, 1).Return(nil, nil)
		db.On("CreateMessage", mock.Anything).Return(1, nil)

		su := &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything)

		c := newTestClient(t, db, su)
		err := c.Start()
		assert.NoError(t, err, "expected the client to join")
		assert.Equal(t, StateJoined, c.State(), "expected the client to reach the joined state")
		assert.NotEmpty(t, c.PeerId(), "expected a peer id to be assigned")

		su.AssertCalled(t, "Incr", StatActiveConnections)

		// the client receives its own announce followed by the room seed
		var msgs []message.Message
		for len(c.send) > 0 {
			msg, err := message.Decode(<-c.send)
			require.NoError(t, err)
			msgs = append(msgs, msg)
		}
		require.Len(t, msgs, 2, "expected the announce and the initial data")
		assert.Equal(t, message.TypeAnnounce, msgs[0].Type)
		assert.Equal(t, message.TypeJoin, msgs[1].Type)
	})
	t.Run("rejected without membership", func(t *testing.T) {
		db := newRoomRepo(t)
		db.On("GetMembership", testRoomId, 1).Return(database.Membership{}, sql.ErrNoRows)

		su := &stats.MockStatsUpdater{}
		c := newTestClient(t, db, su)

		err := c.Start()
		assert.ErrorIs(t, err, ErrNotAMember, "expected the join to be rejected")
		assert.Equal(t, StateDisconnected, c.State(), "expected the client to stay disconnected")
		su.AssertNotCalled(t, "Incr", mock.Anything)
	})
}

func TestClient_cleanup(t *testing.T) {
	db := newRoomRepo(t)
	db.On("GetMembership", testRoomId, 1).Return(testMembership(1), nil)
	db.On("ListMemberships", testRoomId).Return([]database.Membership{testMembership(1)}, nil)
	db.On("ListRecordings", testRoomId, 1).Return([]database.Recording{}, nil)
	db.On("LatestRecording", testRoomId, 1).Return(nil, nil)
	db.On("CreateMessage", mock.Anything).Return(1, nil)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)

	c := newTestClient(t, db, su)
	require.NoError(t, c.Start())
	peerId := c.PeerId()

	c.cleanup()

	assert.Equal(t, StateDisconnected, c.State(), "expected the client to be disconnected")
	su.AssertCalled(t, "Decr", StatActiveConnections)

	_, err := c.relay.Presence().Get(testRoomId, peerId)
	assert.ErrorIs(t, err, ErrPeerNotFound, "expected the peer to be removed from presence")

	select {
	case <-c.stop:
		// closed as expected
	default:
		t.Error("expected the stop channel to be closed")
	}

	// a second cleanup is a no-op
	c.cleanup()
}
