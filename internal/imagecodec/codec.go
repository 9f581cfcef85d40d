// Package imagecodec turns an image reference into the base64 payload the
// remote services expect. Which implementation is used depends on where
// images come from in the running environment and is decided once at
// startup.
package imagecodec

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
)

// DataURLPrefix is prepended to the base64 payload sent to the vision API.
const DataURLPrefix = "data:image/jpeg;base64,"

// Encoder converts an image reference into base64 or a data URL.
type Encoder interface {
	// Base64 returns the standard base64 encoding of the referenced image.
	Base64(ctx context.Context, ref string) (string, error)
	// DataURL returns "data:image/jpeg;base64,<payload>".
	DataURL(ctx context.Context, ref string) (string, error)
}

// Mode selects the Encoder implementation.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeFile  Mode = "file"
	ModeFetch Mode = "fetch"
)

// Options configures New.
type Options struct {
	// BaseURL resolves relative references in fetch mode. When set and the
	// mode is auto, fetch mode is used.
	BaseURL string
}

// New returns the Encoder for mode.
func New(mode Mode, opts Options) (Encoder, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeFile:
		return NewFileEncoder(), nil
	case ModeFetch:
		return NewFetchEncoder(opts.BaseURL), nil
	case ModeAuto, "":
		if opts.BaseURL != "" {
			log.Debug().Str("baseURL", opts.BaseURL).Msg("image source: fetch")
			return NewFetchEncoder(opts.BaseURL), nil
		}
		log.Debug().Msg("image source: file")
		return NewFileEncoder(), nil
	default:
		return nil, apperr.Config(fmt.Sprintf("unknown image source %q", mode))
	}
}

// toDataURL builds the vision data URL from a base64 payload.
func toDataURL(b64 string) string {
	return DataURLPrefix + b64
}

// stripDataURL returns everything after the first comma of a data URL.
func stripDataURL(dataURL string) (string, error) {
	i := strings.IndexByte(dataURL, ',')
	if !strings.HasPrefix(dataURL, "data:") || i < 0 {
		return "", fmt.Errorf("not a data URL")
	}
	return dataURL[i+1:], nil
}
