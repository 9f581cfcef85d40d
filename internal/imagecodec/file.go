package imagecodec

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/raine/hotpotato/internal/apperr"
)

// FileEncoder reads images from the local filesystem.
type FileEncoder struct{}

var _ Encoder = (*FileEncoder)(nil)

func NewFileEncoder() *FileEncoder {
	return &FileEncoder{}
}

// Base64 reads the whole file and encodes it. A "file://" scheme is
// accepted and stripped.
func (e *FileEncoder) Base64(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Codec(err, "Failed to read image")
	}
	path := strings.TrimPrefix(ref, "file://")
	if path == "" {
		return "", apperr.Codec(nil, "No image selected")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Codec(err, "Failed to read image")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (e *FileEncoder) DataURL(ctx context.Context, ref string) (string, error) {
	b64, err := e.Base64(ctx, ref)
	if err != nil {
		return "", err
	}
	return toDataURL(b64), nil
}
