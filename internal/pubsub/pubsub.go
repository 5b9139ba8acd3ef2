// Package pubsub provides the fan-out primitive the delivery channel
// is built on: named connections which can be addressed directly or
// subscribed to broadcast groups.
package pubsub

import (
	"errors"
	"sync"
)

var ErrChannelNotFound = errors.New("channel not found")

// Receiver consumes encoded envelopes for a single connection. Queue
// reports whether the payload was accepted; a full or closed
// connection drops it.
type Receiver interface {
	Queue(payload []byte) bool
}

// Broker tracks live connections and their group subscriptions. All
// methods are safe for concurrent use.
type Broker struct {
	mx     sync.RWMutex
	conns  map[string]Receiver
	groups map[string]map[string]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		conns:  make(map[string]Receiver),
		groups: make(map[string]map[string]struct{}),
	}
}

func (b *Broker) Register(channel string, r Receiver) {
	b.mx.Lock()
	defer b.mx.Unlock()

	b.conns[channel] = r
}

// Unregister removes the connection and drops it from every group.
func (b *Broker) Unregister(channel string) {
	b.mx.Lock()
	defer b.mx.Unlock()

	delete(b.conns, channel)
	for name, members := range b.groups {
		delete(members, channel)
		if len(members) == 0 {
			delete(b.groups, name)
		}
	}
}

func (b *Broker) Send(channel string, payload []byte) error {
	b.mx.RLock()
	r, ok := b.conns[channel]
	b.mx.RUnlock()

	if !ok {
		return ErrChannelNotFound
	}
	r.Queue(payload)
	return nil
}

func (b *Broker) GroupSubscribe(group, channel string) {
	b.mx.Lock()
	defer b.mx.Unlock()

	members, ok := b.groups[group]
	if !ok {
		members = make(map[string]struct{})
		b.groups[group] = members
	}
	members[channel] = struct{}{}
}

func (b *Broker) GroupUnsubscribe(group, channel string) {
	b.mx.Lock()
	defer b.mx.Unlock()

	if members, ok := b.groups[group]; ok {
		delete(members, channel)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
}

// GroupSend fans the payload out to every connection currently
// subscribed to the group. Connections that unregister mid fan-out
// are skipped; there is no transactional guarantee.
func (b *Broker) GroupSend(group string, payload []byte) {
	b.mx.RLock()
	receivers := make([]Receiver, 0, len(b.groups[group]))
	for channel := range b.groups[group] {
		if r, ok := b.conns[channel]; ok {
			receivers = append(receivers, r)
		}
	}
	b.mx.RUnlock()

	for _, r := range receivers {
		r.Queue(payload)
	}
}
