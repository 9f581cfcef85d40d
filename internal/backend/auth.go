package backend

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/storage"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse covers both shapes GoTrue returns: a session with a nested
// user, or (sign-up awaiting email confirmation) the bare user.
type authResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         *model.Identity `json:"user"`

	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *authResponse) identity() *model.Identity {
	if r.User != nil && r.User.ID != "" {
		return r.User
	}
	if r.ID != "" {
		return &model.Identity{ID: r.ID, Email: r.Email, CreatedAt: r.CreatedAt}
	}
	return nil
}

func (r *authResponse) tokens(now time.Time) storage.TokenPair {
	pair := storage.TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	switch {
	case r.ExpiresAt > 0:
		pair.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		pair.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return pair
}

// SignUp registers a new account. When the backend requires email
// confirmation the identity is returned without an active session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	result := &authResponse{}
	_, err := handleError(c.req(ctx, result).
		SetBody(credentials{Email: email, Password: password}).
		Post("/auth/v1/signup"))
	if err != nil {
		return nil, err
	}
	return c.acceptAuth(result, "signup")
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	result := &authResponse{}
	_, err := handleError(c.req(ctx, result).
		SetQueryParam("grant_type", "password").
		SetBody(credentials{Email: email, Password: password}).
		Post("/auth/v1/token"))
	if err != nil {
		return nil, err
	}
	return c.acceptAuth(result, "signin")
}

func (c *Client) acceptAuth(result *authResponse, op string) (*model.Identity, error) {
	user := result.identity()
	if user == nil {
		return nil, apperr.Remote(MsgNoUserData)
	}
	if result.AccessToken == "" {
		log.Info().Str("op", op).Str("userId", user.ID).Msg("no session returned, email confirmation may be required")
		return user, nil
	}
	c.setSession(&session{tokens: result.tokens(c.now()), user: *user})
	log.Info().Str("op", op).Str("userId", user.ID).Msg("session established")
	return user, nil
}

// SignOut ends the session. The local session is cleared even when the
// remote call fails; the remote error is still returned.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.accessToken()
	c.clearSession()
	if token == "" {
		return nil
	}

	_, err := handleError(c.req(ctx, nil).
		SetAuthToken(token).
		Post("/auth/v1/logout"))
	if err != nil {
		log.Warn().Err(err).Msg("remote sign-out failed")
		return err
	}
	return nil
}

// GetCurrentUser verifies the session with the backend and returns its user.
// An expired access token is refreshed once. A session the backend no longer
// accepts is cleared.
func (c *Client) GetCurrentUser(ctx context.Context) (*model.Identity, error) {
	if c.accessToken() == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, MsgNoAuthenticatedUser)
	}

	user := &model.Identity{}
	res, err := c.withRefresh(ctx, func() (*resty.Response, error) {
		return handleError(c.authedReq(ctx, user).Get("/auth/v1/user"))
	})
	if err != nil {
		if res != nil && res.StatusCode() == 401 {
			c.clearSession()
			return nil, apperr.Wrap(apperr.KindUnauthenticated, err, MsgNoAuthenticatedUser)
		}
		return nil, err
	}
	if user.ID == "" {
		return nil, apperr.Remote(MsgNoUserData)
	}

	c.updateUser(*user)
	return user, nil
}

// CurrentSession returns the cached identity without a remote call.
func (c *Client) CurrentSession() (*model.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, false
	}
	user := c.session.user
	return &user, true
}

func (c *Client) refresh(ctx context.Context) error {
	result := &authResponse{}
	_, err := handleError(c.req(ctx, result).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": c.refreshToken()}).
		Post("/auth/v1/token"))
	if err != nil {
		return err
	}
	if result.AccessToken == "" {
		return apperr.Remote("No session returned")
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return apperr.New(apperr.KindUnauthenticated, MsgNoAuthenticatedUser)
	}
	next := &session{tokens: result.tokens(c.now()), user: c.session.user}
	if u := result.identity(); u != nil {
		next.user = *u
	}
	c.mu.Unlock()

	c.setSession(next)
	log.Debug().Str("userId", next.user.ID).Msg("session refreshed")
	return nil
}
