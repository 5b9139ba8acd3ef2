package relay

import (
	"errors"

	"github.com/npezzotti/go-fireside/internal/database"
	"github.com/npezzotti/go-fireside/internal/message"
	"github.com/npezzotti/go-fireside/internal/presence"
)

var (
	// ErrNotAMember is returned when a participant without a
	// membership attempts to connect. Callers reject before the
	// socket reaches the relay.
	ErrNotAMember = errors.New("not a room member")

	// ErrNotImplemented is returned by the kick action. Fatal to the
	// calling action, never retried.
	ErrNotImplemented = errors.New("not implemented")

	ErrInvalidMessage      = message.ErrInvalidMessage
	ErrPeerNotFound        = presence.ErrPeerNotFound
	ErrDuplicateMembership = database.ErrDuplicateMembership
)
