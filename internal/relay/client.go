package relay

import (
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-fireside/internal/pubsub"
	"github.com/npezzotti/go-fireside/internal/stats"
	"github.com/npezzotti/go-fireside/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ConnState is the lifecycle of one connection. A reconnect is a
// fresh client starting over from StateConnecting.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateJoined
)

// Client pumps one websocket connection through the relay. Each
// client runs independently; all cross-connection coordination goes
// through the presence registry and the delivery channel.
type Client struct {
	conn        *websocket.Conn
	relay       *Relay
	broker      *pubsub.Broker
	log         *log.Logger
	stats       stats.StatsProvider
	roomId      string
	participant types.Participant
	channel     string
	peerId      string

	stateMx sync.Mutex
	state   ConnState

	send      chan []byte
	stop      chan struct{}
	closeOnce sync.Once
}

func newChannelName() string {
	id := uuid.New()
	return "conn." + hex.EncodeToString(id[:])
}

func NewClient(rl *Relay, broker *pubsub.Broker, roomId string, participant types.Participant,
	conn *websocket.Conn, logger *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		conn:        conn,
		relay:       rl,
		broker:      broker,
		log:         logger,
		stats:       sp,
		roomId:      roomId,
		participant: participant,
		channel:     newChannelName(),
		send:        make(chan []byte, 256),
		stop:        make(chan struct{}),
	}
}

func (c *Client) State() ConnState {
	c.stateMx.Lock()
	defer c.stateMx.Unlock()
	return c.state
}

func (c *Client) setState(s ConnState) {
	c.stateMx.Lock()
	c.state = s
	c.stateMx.Unlock()
}

func (c *Client) PeerId() string {
	return c.peerId
}

// Start joins the room: it registers the connection, allocates (or
// reuses) a peer, announces the member and seeds the client with the
// room's initial data. On failure the connection is left unregistered
// and the caller closes it.
func (c *Client) Start() error {
	c.setState(StateConnecting)

	c.broker.Register(c.channel, c)

	peerId, err := c.relay.Connect(c.roomId, c.participant.Id, c.channel)
	if err != nil {
		c.broker.Unregister(c.channel)
		c.setState(StateDisconnected)
		return err
	}
	c.peerId = peerId

	c.relay.delivery.Subscribe(c.roomId, c.channel)
	c.setState(StateJoined)
	c.stats.Incr(StatActiveConnections)

	if err := c.relay.Announce(c.roomId, c.peerId, c.participant.Id); err != nil {
		c.log.Printf("announce peer %s: %v", c.peerId, err)
	}
	if err := c.relay.SendInitialData(c.roomId, c.peerId); err != nil {
		c.log.Printf("send initial data to peer %s: %v", c.peerId, err)
	}

	return nil
}

// Queue implements pubsub.Receiver. Payloads for a slow connection
// are dropped rather than blocking the sender.
func (c *Client) Queue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.stop:
		return false
	default:
		c.log.Printf("send buffer full for peer %s, dropping message", c.peerId)
		return false
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.writeMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Printf("ws read: %v", err)
			}
			break
		}

		if err := c.relay.Receive(c.roomId, raw, c.participant.Id, c.peerId); err != nil {
			if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrNotImplemented) {
				c.log.Printf("rejecting message from peer %s: %v", c.peerId, err)
				c.relay.NotifyInvalidMessage(c.roomId, c.peerId)
				continue
			}
			// store or delivery failure; the message is lost but the
			// connection survives
			c.log.Printf("receive from peer %s: %v", c.peerId, err)
		}
	}
}

func (c *Client) writeMessage(msgType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
			c.log.Printf("ws write: %v", err)
		}
		return false
	}
	return true
}

// cleanup runs once when the read pump exits, normally or not: the
// peer leaves the room and the connection is deregistered.
func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		if c.State() == StateJoined {
			if err := c.relay.Leave(c.roomId, c.peerId, c.participant.Id); err != nil {
				c.log.Printf("leave room %q: %v", c.roomId, err)
			}
			c.stats.Decr(StatActiveConnections)
		}
		c.broker.Unregister(c.channel)
		c.setState(StateDisconnected)
		close(c.stop)
	})
}
