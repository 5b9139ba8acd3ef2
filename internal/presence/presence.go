// Package presence tracks which peers are currently live in each
// room. All state lives in the shared key-value store; nothing here
// is ever persisted durably and no durable record stores a peer id.
package presence

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/npezzotti/go-fireside/internal/kv"
)

var ErrPeerNotFound = errors.New("peer not found")

// channelAttr holds the peer's connection reference. It is plumbing,
// not application data, so Attributes filters it out.
const channelAttr = "channel"

// Peer is the ephemeral identity of one live connection.
type Peer struct {
	Id            string
	ParticipantId int
	Channel       string
}

// Registry maps participants to peers and peers to their connection
// and attribute bag. Each operation is a single key-level access
// against the store; no cross-key atomicity is provided.
type Registry struct {
	store kv.Store
}

func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) peersKey(roomId string) string {
	return fmt.Sprintf("rooms:%s:peers", roomId)
}

func (r *Registry) attrsKey(roomId, peerId string) string {
	return fmt.Sprintf("rooms:%s:peers:%s", roomId, peerId)
}

func (r *Registry) participantKey(roomId string, participantId int) string {
	return fmt.Sprintf("rooms:%s:participants:%d:peer_id", roomId, participantId)
}

func newPeerId() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Connect registers a fresh peer for the participant and returns it.
// The participant mapping is written conditionally, so two racing
// connects for the same participant converge on a single peer: the
// loser returns the winner's peer.
func (r *Registry) Connect(roomId string, participantId int, channel string) (Peer, error) {
	peerId := newPeerId()

	won, err := r.store.SetNX(r.participantKey(roomId, participantId), peerId)
	if err != nil {
		return Peer{}, fmt.Errorf("register participant: %w", err)
	}
	if !won {
		existing, err := r.ForParticipant(roomId, participantId)
		if err != nil {
			return Peer{}, err
		}
		if existing != nil {
			return *existing, nil
		}
		// mapping vanished between the two reads; take it over
		if err := r.store.Set(r.participantKey(roomId, participantId), peerId); err != nil {
			return Peer{}, fmt.Errorf("register participant: %w", err)
		}
	}

	if err := r.store.HashSet(r.peersKey(roomId), peerId, strconv.Itoa(participantId)); err != nil {
		return Peer{}, fmt.Errorf("register peer: %w", err)
	}
	if err := r.SetAttribute(roomId, peerId, channelAttr, channel); err != nil {
		return Peer{}, err
	}

	return Peer{Id: peerId, ParticipantId: participantId, Channel: channel}, nil
}

// SetChannel re-points the peer at a new connection reference. A
// reconnect keeps the peer id but arrives on a fresh connection.
func (r *Registry) SetChannel(roomId, peerId, channel string) error {
	return r.SetAttribute(roomId, peerId, channelAttr, channel)
}

// ForParticipant returns the participant's live peer, or nil when the
// participant has no connection.
func (r *Registry) ForParticipant(roomId string, participantId int) (*Peer, error) {
	peerId, ok, err := r.store.Get(r.participantKey(roomId, participantId))
	if err != nil {
		return nil, fmt.Errorf("lookup participant peer: %w", err)
	}
	if !ok {
		return nil, nil
	}

	peer, err := r.Get(roomId, peerId)
	if err != nil {
		if errors.Is(err, ErrPeerNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &peer, nil
}

// Get resolves a peer id to its live peer.
func (r *Registry) Get(roomId, peerId string) (Peer, error) {
	pidStr, ok, err := r.store.HashGet(r.peersKey(roomId), peerId)
	if err != nil {
		return Peer{}, fmt.Errorf("lookup peer: %w", err)
	}
	if !ok {
		return Peer{}, ErrPeerNotFound
	}

	participantId, err := strconv.Atoi(pidStr)
	if err != nil {
		return Peer{}, fmt.Errorf("corrupt participant id for peer %s: %w", peerId, err)
	}

	peer := Peer{Id: peerId, ParticipantId: participantId}
	if channel, ok, err := r.GetAttribute(roomId, peerId, channelAttr); err == nil && ok {
		if name, isStr := channel.(string); isStr {
			peer.Channel = name
		}
	}
	return peer, nil
}

// ChannelFor resolves the connection reference for a peer.
func (r *Registry) ChannelFor(roomId, peerId string) (string, error) {
	peer, err := r.Get(roomId, peerId)
	if err != nil {
		return "", err
	}
	if peer.Channel == "" {
		return "", ErrPeerNotFound
	}
	return peer.Channel, nil
}

// Disconnect removes all mappings for the peer. Disconnecting a peer
// that is already gone is a no-op.
func (r *Registry) Disconnect(roomId, peerId string) error {
	pidStr, ok, err := r.store.HashGet(r.peersKey(roomId), peerId)
	if err != nil {
		return fmt.Errorf("lookup peer: %w", err)
	}

	if err := r.store.HashDelete(r.peersKey(roomId), peerId); err != nil {
		return fmt.Errorf("remove peer: %w", err)
	}
	if err := r.store.Delete(r.attrsKey(roomId, peerId)); err != nil {
		return fmt.Errorf("remove peer attributes: %w", err)
	}

	if !ok {
		return nil
	}

	participantId, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil
	}
	// only clear the participant mapping if it still points at this
	// peer; a reconnect may have replaced it already
	key := r.participantKey(roomId, participantId)
	if current, found, _ := r.store.Get(key); found && current == peerId {
		if err := r.store.Delete(key); err != nil {
			return fmt.Errorf("remove participant mapping: %w", err)
		}
	}
	return nil
}

func (r *Registry) SetAttribute(roomId, peerId, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode attribute %s: %w", key, err)
	}
	if err := r.store.HashSet(r.attrsKey(roomId, peerId), key, string(raw)); err != nil {
		return fmt.Errorf("set attribute %s: %w", key, err)
	}
	return nil
}

func (r *Registry) GetAttribute(roomId, peerId, key string) (any, bool, error) {
	raw, ok, err := r.store.HashGet(r.attrsKey(roomId, peerId), key)
	if err != nil {
		return nil, false, fmt.Errorf("get attribute %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("decode attribute %s: %w", key, err)
	}
	return value, true, nil
}

// Attributes returns the peer's full attribute bag, minus the
// connection reference.
func (r *Registry) Attributes(roomId, peerId string) (map[string]any, error) {
	raw, err := r.store.HashGetAll(r.attrsKey(roomId, peerId))
	if err != nil {
		return nil, fmt.Errorf("get attributes: %w", err)
	}

	attrs := make(map[string]any, len(raw))
	for key, encoded := range raw {
		if key == channelAttr {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return nil, fmt.Errorf("decode attribute %s: %w", key, err)
		}
		attrs[key] = value
	}
	return attrs, nil
}

// Ids enumerates all live peer ids in the room.
func (r *Registry) Ids(roomId string) ([]string, error) {
	peers, err := r.store.HashGetAll(r.peersKey(roomId))
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	ids := make([]string, 0, len(peers))
	for peerId := range peers {
		ids = append(ids, peerId)
	}
	return ids, nil
}

// ParticipantIds enumerates the participants with a live peer in the
// room.
func (r *Registry) ParticipantIds(roomId string) ([]int, error) {
	peers, err := r.store.HashGetAll(r.peersKey(roomId))
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	ids := make([]int, 0, len(peers))
	for _, pidStr := range peers {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		ids = append(ids, pid)
	}
	return ids, nil
}

// PeersByParticipant maps each connected participant to its peer id.
func (r *Registry) PeersByParticipant(roomId string) (map[int]string, error) {
	peers, err := r.store.HashGetAll(r.peersKey(roomId))
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	out := make(map[int]string, len(peers))
	for peerId, pidStr := range peers {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		out[pid] = peerId
	}
	return out, nil
}
