package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/go-fireside/internal/types"
)

func (s *FiresideApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid account token. Used for the
// account-only surface.
func (s *FiresideApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.extractUserIdFromToken(r)
		if err != nil {
			s.log.Printf("failed to extract user id from token: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// participantMiddleware resolves the caller to a durable participant.
// Logged-in accounts map through their account id; everyone else gets
// an anonymous participant keyed by a session cookie, minted here on
// first contact.
func (s *FiresideApp) participantMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, err := s.resolveParticipant(w, r)
		if err != nil {
			s.log.Printf("resolve participant: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithParticipant(r.Context(), participant)
		if participant.AccountId != 0 {
			ctx = WithUserId(ctx, participant.AccountId)
		}
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

func (s *FiresideApp) resolveParticipant(w http.ResponseWriter, r *http.Request) (types.Participant, error) {
	if userId, err := s.extractUserIdFromToken(r); err == nil {
		account, err := s.db.GetAccountById(userId)
		if err != nil {
			return types.Participant{}, fmt.Errorf("get account %d: %w", userId, err)
		}

		p, err := s.db.EnsureParticipantForAccount(account.Id, account.Username)
		if err != nil {
			return types.Participant{}, fmt.Errorf("ensure participant: %w", err)
		}
		return types.Participant{Id: p.Id, AccountId: p.AccountId, Name: p.Name}, nil
	}

	sessionKey := ""
	if cookie, err := r.Cookie(sessionCookieKey); err == nil && cookie.Value != "" {
		sessionKey = cookie.Value
	} else {
		key, err := s.generateSessionKey()
		if err != nil {
			return types.Participant{}, fmt.Errorf("generate session key: %w", err)
		}
		sessionKey = key
		http.SetCookie(w, createSessionCookie(sessionKey))
	}

	p, err := s.db.EnsureParticipantForSession(sessionKey)
	if err != nil {
		return types.Participant{}, fmt.Errorf("ensure participant: %w", err)
	}
	return types.Participant{Id: p.Id, SessionKey: p.SessionKey, Name: p.Name}, nil
}
