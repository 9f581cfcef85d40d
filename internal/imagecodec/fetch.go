package imagecodec

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
)

const (
	// DefaultFetchTimeout bounds a single image download.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxImageSize is the largest image accepted (10MB).
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// FetchEncoder retrieves images over HTTP. Relative references are resolved
// against baseURL.
type FetchEncoder struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	maxSize int64
}

var _ Encoder = (*FetchEncoder)(nil)

func NewFetchEncoder(baseURL string) *FetchEncoder {
	return &FetchEncoder{
		client: &http.Client{
			Timeout: DefaultFetchTimeout,
		},
		baseURL: baseURL,
		timeout: DefaultFetchTimeout,
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (e *FetchEncoder) WithTimeout(timeout time.Duration) *FetchEncoder {
	e.timeout = timeout
	e.client.Timeout = timeout
	return e
}

// WithMaxSize sets a custom maximum image size.
func (e *FetchEncoder) WithMaxSize(maxSize int64) *FetchEncoder {
	e.maxSize = maxSize
	return e
}

// Base64 downloads the full resource, wraps it in a data URL carrying the
// served media type and returns the part after the first comma.
func (e *FetchEncoder) Base64(ctx context.Context, ref string) (string, error) {
	target, err := e.resolve(ref)
	if err != nil {
		return "", apperr.Codec(err, "Failed to convert image to base64")
	}

	data, mediaType, err := e.fetch(ctx, target)
	if err != nil {
		log.Error().Err(err).Str("ref", ref).Msg("image fetch failed")
		return "", apperr.Codec(err, "Failed to convert image to base64")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
	b64, err := stripDataURL(dataURL)
	if err != nil {
		return "", apperr.Codec(err, "Failed to convert image to base64")
	}
	return b64, nil
}

func (e *FetchEncoder) DataURL(ctx context.Context, ref string) (string, error) {
	b64, err := e.Base64(ctx, ref)
	if err != nil {
		return "", err
	}
	return toDataURL(b64), nil
}

func (e *FetchEncoder) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty image reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if e.baseURL == "" {
		return "", fmt.Errorf("relative image reference %q without base URL", ref)
	}
	base, err := url.Parse(e.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

// fetch downloads target, enforcing the timeout and size limit.
func (e *FetchEncoder) fetch(ctx context.Context, target string) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if resp.ContentLength > e.maxSize {
		return nil, "", fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", resp.ContentLength, e.maxSize)
	}

	// LimitReader also covers a missing or wrong Content-Length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > e.maxSize {
		return nil, "", fmt.Errorf("image too large: exceeds limit of %d bytes", e.maxSize)
	}

	return data, mediaTypeOf(resp.Header.Get("Content-Type"), data), nil
}

func mediaTypeOf(contentType string, data []byte) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			return mt
		}
	}
	return strings.SplitN(http.DetectContentType(data), ";", 2)[0]
}
