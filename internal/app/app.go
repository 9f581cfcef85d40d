// Package app builds the process-wide object graph from configuration:
// clients, local store, state stores and the listing pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/backend"
	"github.com/raine/hotpotato/internal/config"
	"github.com/raine/hotpotato/internal/imagecodec"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/pipeline"
	"github.com/raine/hotpotato/internal/state"
	"github.com/raine/hotpotato/internal/storage"
	"github.com/raine/hotpotato/internal/vision"
)

type App struct {
	Config   *config.Config
	Store    *storage.SQLiteStore
	Backend  *backend.Client
	Vision   *vision.Client
	Session  *state.Session
	Listings *state.Listings
	Pipeline *pipeline.Pipeline
}

// New validates cfg and wires every component. Missing credentials fail
// here, before any command runs.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encoder, err := imagecodec.New(imagecodec.Mode(cfg.ImageSource), imagecodec.Options{BaseURL: cfg.ImageBaseURL})
	if err != nil {
		return nil, err
	}

	var key []byte
	if cfg.PersistSessions() {
		key, err = storage.DeriveKey(cfg.TokenKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, err, "invalid HOTPOTATO_TOKEN_KEY")
		}
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath, key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	log.Debug().Str("dbPath", cfg.DBPath).Bool("persistSessions", cfg.PersistSessions()).Msg("store initialized")

	a, err := build(ctx, cfg, encoder, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, encoder imagecodec.Encoder, store *storage.SQLiteStore) (*App, error) {
	opts := backend.Options{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Encoder: encoder,
	}
	if cfg.PersistSessions() {
		opts.Store = store
	}
	backendClient, err := backend.New(opts)
	if err != nil {
		return nil, err
	}

	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	visionClient, err := vision.NewClient(provider, encoder)
	if err != nil {
		return nil, err
	}
	visionClient.WithCache(store)

	var runLog *pipeline.RunLog
	if cfg.RunLogDir != "" {
		runLog, err = pipeline.NewRunLog(cfg.RunLogDir)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize run log")
			runLog = nil
		}
	}

	session := state.NewSession(backendClient)
	listings := state.NewListings(backendClient)
	p, err := pipeline.New(pipeline.Deps{
		Vision:   visionClient,
		Uploader: backendClient,
		Listings: listings,
		Session:  session,
		Bucket:   cfg.Bucket,
		RunLog:   runLog,
		Recorder: store,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Backend:  backendClient,
		Vision:   visionClient,
		Session:  session,
		Listings: listings,
		Pipeline: p,
	}, nil
}

// NewProvider returns the completion provider selected by VISION_PROVIDER.
func NewProvider(ctx context.Context, cfg *config.Config) (vision.Provider, error) {
	switch cfg.VisionProvider {
	case config.ProviderGemini:
		return vision.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderOpenAI:
		return vision.NewOpenAI(vision.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	case config.ProviderOpenRouter, "":
		return vision.NewOpenRouter(vision.OpenRouterOptions{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.OpenRouterModel,
			BaseURL: cfg.OpenRouterURL,
		})
	default:
		return nil, apperr.Config(fmt.Sprintf("unknown vision provider %q", cfg.VisionProvider))
	}
}

// Restore checks a stored session and, when signed in, loads the user's
// listings. It returns nil identity when nobody is signed in.
func (a *App) Restore(ctx context.Context) (*model.Identity, error) {
	user, err := a.Session.CheckAuth(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthenticated) {
			return nil, nil
		}
		return nil, err
	}
	if err := a.Listings.Fetch(ctx, user.ID); err != nil {
		return user, err
	}
	return user, nil
}

// RequireUser restores the session and fails when nobody is signed in.
func (a *App) RequireUser(ctx context.Context) (*model.Identity, error) {
	user, err := a.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "Not signed in. Run `hotpotato login` first.")
	}
	return user, nil
}

// SignOut ends the session and drops every piece of user state.
func (a *App) SignOut(ctx context.Context) error {
	err := a.Session.SignOut(ctx)
	a.Listings.Reset()
	a.Pipeline.Reset()
	return err
}

func (a *App) Close() error {
	return a.Store.Close()
}
