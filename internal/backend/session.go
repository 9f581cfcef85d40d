package backend

import (
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/storage"
)

// profile keys persisted sessions by backend URL.
func (c *Client) profile() string {
	return c.baseURL
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.tokens.AccessToken
}

func (c *Client) refreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.tokens.RefreshToken
}

func (c *Client) currentUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.user.ID
}

func (c *Client) setSession(s *session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.persist(s)
}

func (c *Client) updateUser(user model.Identity) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	next := *c.session
	next.user = user
	c.session = &next
	c.mu.Unlock()
	c.persist(&next)
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.DeleteSession(c.profile()); err != nil {
		log.Warn().Err(err).Msg("failed to delete stored session")
	}
}

func (c *Client) persist(s *session) {
	if c.store == nil {
		return
	}
	err := c.store.SaveSession(&storage.StoredSession{
		Profile: c.profile(),
		UserID:  s.user.ID,
		Email:   s.user.Email,
		Tokens:  s.tokens,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
}

// restoreSession loads a persisted session. The tokens are trusted until
// the backend rejects them.
func (c *Client) restoreSession() {
	if c.store == nil {
		return
	}
	stored, err := c.store.LoadSession(c.profile())
	if err != nil {
		log.Warn().Err(err).Msg("failed to load stored session")
		return
	}
	if stored == nil || stored.Tokens.AccessToken == "" {
		return
	}

	c.mu.Lock()
	c.session = &session{
		tokens: stored.Tokens,
		user:   model.Identity{ID: stored.UserID, Email: stored.Email},
	}
	c.mu.Unlock()
	log.Debug().Str("userId", stored.UserID).Msg("restored session")
}
