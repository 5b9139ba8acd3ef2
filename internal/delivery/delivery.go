// Package delivery routes encoded envelopes to a single peer or to
// every connection subscribed to a room's broadcast group.
package delivery

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-fireside/internal/presence"
	"github.com/npezzotti/go-fireside/internal/pubsub"
)

// PeerResolver resolves a live peer to its connection reference. The
// presence registry implements it.
type PeerResolver interface {
	ChannelFor(roomId, peerId string) (string, error)
}

// Broker is the fan-out primitive, satisfied by pubsub.Broker.
type Broker interface {
	Send(channel string, payload []byte) error
	GroupSend(group string, payload []byte)
	GroupSubscribe(group, channel string)
	GroupUnsubscribe(group, channel string)
}

type Channel struct {
	broker Broker
	peers  PeerResolver
}

func NewChannel(broker Broker, peers PeerResolver) *Channel {
	return &Channel{broker: broker, peers: peers}
}

// GroupName is the broadcast group for a room.
func GroupName(roomId string) string {
	return "room." + roomId
}

func (c *Channel) Subscribe(roomId, channel string) {
	c.broker.GroupSubscribe(GroupName(roomId), channel)
}

func (c *Channel) Unsubscribe(roomId, channel string) {
	c.broker.GroupUnsubscribe(GroupName(roomId), channel)
}

// SendToRoom fans the envelope out to every connection currently in
// the room's group, at least once each. Connections that drop mid
// fan-out may or may not receive it.
func (c *Channel) SendToRoom(roomId string, envelope []byte) {
	c.broker.GroupSend(GroupName(roomId), envelope)
}

// SendToPeer delivers directly to one peer's connection.
func (c *Channel) SendToPeer(roomId, peerId string, envelope []byte) error {
	channel, err := c.peers.ChannelFor(roomId, peerId)
	if err != nil {
		return err
	}

	if err := c.broker.Send(channel, envelope); err != nil {
		if errors.Is(err, pubsub.ErrChannelNotFound) {
			return presence.ErrPeerNotFound
		}
		return fmt.Errorf("send to peer %s: %w", peerId, err)
	}
	return nil
}
