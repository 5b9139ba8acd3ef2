// Package relay implements the signaling core: it tracks which
// participants have a live connection, routes typed messages between
// them, persists a subset of those messages and dispatches
// application events. Transport and HTTP concerns live outside; the
// relay is driven through Connect, Announce, Receive, Leave and the
// action entry points.
package relay

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/delivery"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/presence"
	"github.com/npezzotti/go-fireside/internal/stats"
	"github.com/npezzotti/go-fireside/internal/types"
)

// Metric names registered by the relay.
const (
	StatActiveConnections = "ActiveConnections"
	StatActiveRooms       = "ActiveRooms"
	StatMessagesRelayed   = "MessagesRelayed"
	StatMessagesPersisted = "MessagesPersisted"
)

type Relay struct {
	log      *log.Logger
	db       database.FiresideRepository
	presence *presence.Registry
	delivery *delivery.Channel
	handlers EventHandlers
	stats    stats.StatsProvider
}

func NewRelay(logger *log.Logger, db database.FiresideRepository, reg *presence.Registry,
	ch *delivery.Channel, handlers EventHandlers, sp stats.StatsProvider) *Relay {
	return &Relay{
		log:      logger,
		db:       db,
		presence: reg,
		delivery: ch,
		handlers: handlers,
		stats:    sp,
	}
}

func (rl *Relay) Presence() *presence.Registry {
	return rl.presence
}

// getRoom loads the room and decodes its config blob.
func (rl *Relay) getRoom(roomId string) (types.Room, error) {
	dbRoom, err := rl.db.GetRoom(roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("get room %q: %w", roomId, err)
	}
	return roomView(dbRoom)
}

func roomView(dbRoom database.Room) (types.Room, error) {
	room := types.Room{
		Id:        dbRoom.Id,
		OwnerId:   dbRoom.OwnerId,
		Config:    types.DefaultRoomConfig(),
		CreatedAt: dbRoom.CreatedAt,
	}
	if len(dbRoom.Config) > 0 {
		if err := json.Unmarshal(dbRoom.Config, &room.Config); err != nil {
			return types.Room{}, fmt.Errorf("decode config for room %q: %w", dbRoom.Id, err)
		}
	}
	return room, nil
}

// send encodes the message and delivers it: to one peer when toPeer
// is set, otherwise to the whole room. Broadcasts are written to
// durable history first when the persistence policy says so; direct
// sends never persist.
func (rl *Relay) send(room types.Room, msg message.Message, toPeer string) error {
	if toPeer == "" && ShouldPersist(msg) {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}

		id, err := rl.db.CreateMessage(database.Message{
			RoomId:        room.Id,
			ParticipantId: msg.ParticipantId,
			PeerId:        msg.PeerId,
			Type:          msg.Type.Code(),
			Payload:       payload,
			CreatedAt:     msg.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
		msg.Id = id
		rl.stats.Incr(StatMessagesPersisted)
	}

	raw, err := message.Encode(msg)
	if err != nil {
		return err
	}

	rl.stats.Incr(StatMessagesRelayed)
	if toPeer == "" {
		rl.delivery.SendToRoom(room.Id, raw)
		return nil
	}
	return rl.delivery.SendToPeer(room.Id, toPeer, raw)
}

// Connect registers a live peer for the participant. The participant
// must already hold a membership; without one the connection is
// rejected with ErrNotAMember. Reconnecting while a peer is still
// live re-points the peer at the new connection and returns the
// existing peer id instead of creating a duplicate.
func (rl *Relay) Connect(roomId string, participantId int, channel string) (string, error) {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return "", err
	}

	if _, err := rl.db.GetMembership(room.Id, participantId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotAMember
		}
		return "", fmt.Errorf("get membership: %w", err)
	}

	if existing, err := rl.presence.ForParticipant(room.Id, participantId); err != nil {
		return "", err
	} else if existing != nil {
		rl.log.Printf("participant %d already connected to room %q as peer %s",
			participantId, room.Id, existing.Id)
		// keep the peer, move it onto the new connection
		if err := rl.presence.SetChannel(room.Id, existing.Id, channel); err != nil {
			return "", err
		}
		return existing.Id, nil
	}

	peer, err := rl.presence.Connect(room.Id, participantId, channel)
	if err != nil {
		return "", err
	}

	if ids, err := rl.presence.Ids(room.Id); err == nil && len(ids) == 1 {
		rl.stats.Incr(StatActiveRooms)
	}
	return peer.Id, nil
}

// Announce broadcasts the participant's membership snapshot to the
// room. The announce is persisted.
func (rl *Relay) Announce(roomId string, peerId string, participantId int) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}

	mem, err := rl.db.GetMembership(room.Id, participantId)
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}

	snapshot, err := rl.memberSnapshot(room, mem, peerId)
	if err != nil {
		return err
	}

	return rl.send(room, message.Message{
		Type:          message.TypeAnnounce,
		Payload:       map[string]any{"peer": snapshot},
		Timestamp:     message.Now(),
		ParticipantId: participantId,
		PeerId:        peerId,
	}, "")
}

// SendInitialData delivers the room seed directly to a newly joined
// peer as a join message.
func (rl *Relay) SendInitialData(roomId string, peerId string) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}

	data, err := rl.InitialData(room.Id)
	if err != nil {
		return err
	}

	return rl.send(room, message.Message{
		Type: message.TypeJoin,
		Payload: map[string]any{
			"members": data.Members,
			"config":  data.Config,
		},
		Timestamp: message.Now(),
		PeerId:    peerId,
	}, peerId)
}

// Leave removes the peer from the presence registry and broadcasts a
// persisted leave message carrying its id.
func (rl *Relay) Leave(roomId string, peerId string, participantId int) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}

	if err := rl.presence.Disconnect(room.Id, peerId); err != nil {
		return err
	}

	if ids, err := rl.presence.Ids(room.Id); err == nil && len(ids) == 0 {
		rl.stats.Decr(StatActiveRooms)
	}

	return rl.send(room, message.Message{
		Type:          message.TypeLeave,
		Payload:       map[string]any{"id": peerId},
		Timestamp:     message.Now(),
		ParticipantId: participantId,
		PeerId:        peerId,
	}, "")
}

// Receive handles one raw envelope from a connection. Malformed input
// fails only the single message; routing failures for signalling are
// converted into an error event back to the sender. Store failures
// propagate to the caller.
func (rl *Relay) Receive(roomId string, raw []byte, participantId int, peerId string) error {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return err
	}

	msg, err := message.Decode(raw)
	if err != nil {
		return err
	}

	msg.ParticipantId = participantId
	msg.PeerId = peerId
	msg.Timestamp = message.Now()

	switch msg.Type {
	case message.TypeEvent:
		return rl.receiveEvent(room, msg)
	case message.TypeSignalling:
		return rl.receiveSignalling(room, msg)
	case message.TypeAction:
		return rl.receiveAction(room, msg)
	case message.TypeJoin, message.TypeAnnounce, message.TypeLeave:
		// server-generated types; clients may not send them
		return ErrInvalidMessage
	}
	return ErrInvalidMessage
}

// receiveEvent runs the handler registered for the event subtype,
// then broadcasts the event. Unknown subtypes have no handler and no
// error; the event is still broadcast.
func (rl *Relay) receiveEvent(room types.Room, msg message.Message) error {
	subtype, _ := msg.Payload["type"].(string)
	if handler, ok := rl.handlers[subtype]; ok {
		if err := handler(rl, room, msg.Payload, msg); err != nil {
			return fmt.Errorf("event handler %s: %w", subtype, err)
		}
	}

	return rl.send(room, msg, "")
}

// receiveSignalling delivers the message directly to the peer named
// in the payload. Signalling is never broadcast: an absent target is
// rejected outright, an unknown one becomes a signalling_error event
// back to the sender rather than an error.
func (rl *Relay) receiveSignalling(room types.Room, msg message.Message) error {
	to, _ := msg.Payload["to"].(string)
	if to == "" {
		return fmt.Errorf("%w: signalling requires a target peer", ErrInvalidMessage)
	}

	err := rl.send(room, msg, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrPeerNotFound) {
		return err
	}

	rl.log.Printf("signalling to unknown peer %q in room %q", to, room.Id)
	return rl.sendErrorEvent(room, msg.PeerId, EventSignallingError, map[string]any{"to": to})
}

// sendErrorEvent delivers a synthetic event directly to one peer.
func (rl *Relay) sendErrorEvent(room types.Room, peerId, subtype string, data map[string]any) error {
	return rl.send(room, message.Message{
		Type: message.TypeEvent,
		Payload: map[string]any{
			"type": subtype,
			"data": data,
		},
		Timestamp: message.Now(),
	}, peerId)
}

// NotifyInvalidMessage reports a rejected envelope back to its
// sender. The connection stays open.
func (rl *Relay) NotifyInvalidMessage(roomId, peerId string) {
	room, err := rl.getRoom(roomId)
	if err != nil {
		return
	}
	if err := rl.sendErrorEvent(room, peerId, EventInvalidMessage, nil); err != nil {
		rl.log.Printf("notify invalid message: %v", err)
	}
}
