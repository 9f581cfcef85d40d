package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/backend"
	"github.com/raine/hotpotato/internal/model"
)

// AuthStatus is where the session is in its auth flow.
type AuthStatus int

const (
	AuthUnknown AuthStatus = iota
	AuthChecking
	AuthSignedOut
	AuthSigningIn
	AuthSignedIn
)

func (s AuthStatus) String() string {
	switch s {
	case AuthChecking:
		return "Checking"
	case AuthSignedOut:
		return "SignedOut"
	case AuthSigningIn:
		return "SigningIn"
	case AuthSignedIn:
		return "SignedIn"
	default:
		return "Unknown"
	}
}

// SessionSnapshot is an immutable view of Session.
type SessionSnapshot struct {
	User            *model.Identity
	IsAuthenticated bool
	IsLoading       bool
	Status          AuthStatus
	Error           string
}

// Session owns the current identity. No other component mutates it.
type Session struct {
	auth backend.Auth

	mu    sync.Mutex
	state SessionSnapshot

	subs Observers[SessionSnapshot]
}

func NewSession(auth backend.Auth) *Session {
	return &Session{auth: auth, state: SessionSnapshot{Status: AuthUnknown}}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Current returns the signed-in identity, if any.
func (s *Session) Current() (*model.Identity, bool) {
	snap := s.Snapshot()
	return snap.User, snap.IsAuthenticated && snap.User != nil
}

// Subscribe registers fn to be called after every change. The returned
// function unsubscribes.
func (s *Session) Subscribe(fn func(SessionSnapshot)) func() {
	return s.subs.Subscribe(fn)
}

func (s *Session) copyLocked() SessionSnapshot {
	snap := s.state
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}

func (s *Session) update(fn func(st *SessionSnapshot)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.copyLocked()
	s.mu.Unlock()
	s.subs.Notify(snap)
}

func (s *Session) signedIn(user *model.Identity) {
	s.update(func(st *SessionSnapshot) {
		u := *user
		st.User = &u
		st.IsAuthenticated = true
		st.IsLoading = false
		st.Status = AuthSignedIn
		st.Error = ""
	})
}

func (s *Session) failed(err error, status AuthStatus) {
	s.update(func(st *SessionSnapshot) {
		st.IsLoading = false
		st.Status = status
		st.Error = apperr.Message(err)
		if status == AuthSignedOut {
			st.User = nil
			st.IsAuthenticated = false
		}
	})
}

func (s *Session) begin(status AuthStatus) {
	s.update(func(st *SessionSnapshot) {
		st.IsLoading = true
		st.Status = status
		st.Error = ""
	})
}

// SignIn authenticates and, on success, stores the identity.
func (s *Session) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	return s.authenticate(ctx, "signin", email, password, s.auth.SignIn)
}

// SignUp registers and, on success, stores the identity.
func (s *Session) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	return s.authenticate(ctx, "signup", email, password, s.auth.SignUp)
}

func (s *Session) authenticate(
	ctx context.Context,
	op, email, password string,
	call func(ctx context.Context, email, password string) (*model.Identity, error),
) (*model.Identity, error) {
	if email == "" || password == "" {
		err := apperr.Validation("Please enter email and password")
		s.failed(err, s.Snapshot().Status)
		return nil, err
	}

	prev := s.Snapshot()
	s.begin(AuthSigningIn)

	user, err := call(ctx, email, password)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("authentication failed")
		status := AuthSignedOut
		if prev.IsAuthenticated {
			status = AuthSignedIn
		}
		s.failed(err, status)
		return nil, err
	}

	s.signedIn(user)
	return user, nil
}

// SignOut always clears the identity and the authenticated flag, even when
// the remote call fails. The remote error is recorded and returned.
func (s *Session) SignOut(ctx context.Context) error {
	s.begin(s.Snapshot().Status)

	err := s.auth.SignOut(ctx)

	s.update(func(st *SessionSnapshot) {
		st.User = nil
		st.IsAuthenticated = false
		st.IsLoading = false
		st.Status = AuthSignedOut
		st.Error = apperr.Message(err)
	})
	if err != nil {
		log.Warn().Err(err).Msg("sign-out failed remotely, local session cleared")
	}
	return err
}

// CheckAuth asks the backend for the current user. Any failure clears the
// identity; "no session" is not recorded as an error.
func (s *Session) CheckAuth(ctx context.Context) (*model.Identity, error) {
	s.begin(AuthChecking)

	user, err := s.auth.GetCurrentUser(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthenticated) {
			s.update(func(st *SessionSnapshot) {
				st.User = nil
				st.IsAuthenticated = false
				st.IsLoading = false
				st.Status = AuthSignedOut
				st.Error = ""
			})
		} else {
			s.failed(err, AuthSignedOut)
		}
		return nil, err
	}

	s.signedIn(user)
	return user, nil
}

// ClearError drops the last error message.
func (s *Session) ClearError() {
	s.update(func(st *SessionSnapshot) {
		st.Error = ""
	})
}
