// Package backend is the client for the Supabase-style backend: GoTrue auth,
// object storage for listing photos and the PostgREST listings table.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/imagecodec"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/storage"
)

const DefaultBucket = "listings"

const (
	MsgNotConfigured       = "Supabase credentials are not configured"
	MsgNoUserData          = "No user data returned"
	MsgNoAuthenticatedUser = "No authenticated user"
	MsgUploadRequiresAuth  = "User must be authenticated to upload images"
	MsgNoListingReturned   = "No listing data returned"
)

// SessionStore persists the session between process runs.
type SessionStore interface {
	LoadSession(profile string) (*storage.StoredSession, error)
	SaveSession(session *storage.StoredSession) error
	DeleteSession(profile string) error
}

type Options struct {
	URL     string
	AnonKey string
	Encoder imagecodec.Encoder
	// Store is optional. Without it the session lives only in memory.
	Store SessionStore
}

type session struct {
	tokens storage.TokenPair
	user   model.Identity
}

// Client implements Service.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	encoder    imagecodec.Encoder
	store      SessionStore

	mu      sync.RWMutex
	session *session

	now func() time.Time
}

var _ Service = (*Client)(nil)

// New creates a backend client and restores a persisted session if a store
// is configured.
func New(opts Options) (*Client, error) {
	if opts.URL == "" || opts.AnonKey == "" {
		return nil, apperr.Config(MsgNotConfigured)
	}
	if opts.Encoder == nil {
		return nil, apperr.Config("image encoder is not configured")
	}

	baseURL := strings.TrimRight(opts.URL, "/")
	c := &Client{
		baseURL: baseURL,
		encoder: opts.Encoder,
		store:   opts.Store,
		now:     time.Now,
	}
	c.httpClient = resty.New().
		SetBaseURL(baseURL).
		SetHeaders(map[string]string{
			"apikey": opts.AnonKey,
			"Accept": "application/json",
		}).
		SetAuthToken(opts.AnonKey)

	c.restoreSession()
	return c, nil
}

func (c *Client) req(ctx context.Context, result any) *resty.Request {
	request := c.httpClient.
		NewRequest().
		SetContext(ctx)

	if result != nil {
		request.SetResult(result)
	}

	return request
}

// authedReq is req with the session access token as bearer.
func (c *Client) authedReq(ctx context.Context, result any) *resty.Request {
	request := c.req(ctx, result)
	if token := c.accessToken(); token != "" {
		request.SetAuthToken(token)
	}
	return request
}

// withRefresh runs call and, if it was rejected with 401 and a refresh token
// is available, refreshes the session once and runs call again.
func (c *Client) withRefresh(ctx context.Context, call func() (*resty.Response, error)) (*resty.Response, error) {
	res, err := call()
	if err == nil || res == nil || res.StatusCode() != 401 || c.refreshToken() == "" {
		return res, err
	}

	log.Debug().Msg("access token rejected, refreshing session")
	if rerr := c.refresh(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("session refresh failed")
		return res, err
	}
	return call()
}

// remoteError is the union of GoTrue, Storage and PostgREST error bodies.
type remoteError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
}

func (e remoteError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// handleError maps resty results onto the error taxonomy. Without this,
// failing responses (>399 status code) would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		if res != nil && res.RawResponse != nil && !res.IsError() {
			return res, apperr.Wrap(apperr.KindParse, err, "Unexpected response from backend")
		}
		return res, apperr.Network(err)
	}
	if res.IsError() {
		var body remoteError
		msg := ""
		if jerr := json.Unmarshal(res.Body(), &body); jerr == nil {
			msg = body.text()
		}
		if msg == "" {
			msg = fmt.Sprintf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
		}
		return res, &apperr.Error{
			Kind:    apperr.KindRemote,
			Message: msg,
			Err:     fmt.Errorf("status %d", res.StatusCode()),
		}
	}
	return res, nil
}

