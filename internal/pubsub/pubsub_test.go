package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	payloads [][]byte
}

func (f *fakeReceiver) Queue(payload []byte) bool {
	f.payloads = append(f.payloads, payload)
	return true
}

func TestSendDirect(t *testing.T) {
	b := NewBroker()
	r := &fakeReceiver{}
	b.Register("conn-1", r)

	require.NoError(t, b.Send("conn-1", []byte("hello")))
	require.Len(t, r.payloads, 1)
	assert.Equal(t, []byte("hello"), r.payloads[0])

	assert.ErrorIs(t, b.Send("conn-2", []byte("x")), ErrChannelNotFound)
}

func TestGroupSend(t *testing.T) {
	b := NewBroker()
	r1, r2, r3 := &fakeReceiver{}, &fakeReceiver{}, &fakeReceiver{}
	b.Register("c1", r1)
	b.Register("c2", r2)
	b.Register("c3", r3)

	b.GroupSubscribe("room.abc", "c1")
	b.GroupSubscribe("room.abc", "c2")

	b.GroupSend("room.abc", []byte("fanout"))

	assert.Len(t, r1.payloads, 1)
	assert.Len(t, r2.payloads, 1)
	assert.Empty(t, r3.payloads, "unsubscribed connection must not receive")
}

func TestGroupUnsubscribe(t *testing.T) {
	b := NewBroker()
	r1, r2 := &fakeReceiver{}, &fakeReceiver{}
	b.Register("c1", r1)
	b.Register("c2", r2)
	b.GroupSubscribe("g", "c1")
	b.GroupSubscribe("g", "c2")

	b.GroupUnsubscribe("g", "c1")
	b.GroupSend("g", []byte("x"))

	assert.Empty(t, r1.payloads)
	assert.Len(t, r2.payloads, 1)
}

func TestUnregisterDropsGroupMembership(t *testing.T) {
	b := NewBroker()
	r := &fakeReceiver{}
	b.Register("c1", r)
	b.GroupSubscribe("g", "c1")

	b.Unregister("c1")
	b.GroupSend("g", []byte("x"))

	assert.Empty(t, r.payloads)
	assert.ErrorIs(t, b.Send("c1", []byte("x")), ErrChannelNotFound)
}

func TestGroupSendPerConnectionOrder(t *testing.T) {
	b := NewBroker()
	r := &fakeReceiver{}
	b.Register("c1", r)
	b.GroupSubscribe("g", "c1")

	b.GroupSend("g", []byte("1"))
	b.GroupSend("g", []byte("2"))
	b.GroupSend("g", []byte("3"))

	require.Len(t, r.payloads, 3)
	assert.Equal(t, []byte("1"), r.payloads[0])
	assert.Equal(t, []byte("2"), r.payloads[1])
	assert.Equal(t, []byte("3"), r.payloads[2])
}
