package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/model"
)

// UploadImage stores the referenced image under {userId}/{unixMillis}.jpg
// in bucket and returns its public URL. Existing objects are never
// overwritten.
func (c *Client) UploadImage(ctx context.Context, imageRef, bucket string) (string, error) {
	userID := c.currentUserID()
	if userID == "" {
		return "", apperr.New(apperr.KindUnauthenticated, MsgUploadRequiresAuth)
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	b64, err := c.encoder.Base64(ctx, imageRef)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", apperr.Codec(err, "Failed to decode image")
	}

	objectPath := fmt.Sprintf("%s/%d.jpg", userID, c.now().UnixMilli())

	_, err = c.withRefresh(ctx, func() (*resty.Response, error) {
		return handleError(c.authedReq(ctx, nil).
			SetHeader("Content-Type", "image/jpeg").
			SetHeader("x-upsert", "false").
			SetHeader("Cache-Control", "max-age=3600").
			SetBody(data).
			SetRawPathParams(map[string]string{
				"bucket": bucket,
				"path":   objectPath,
			}).
			Post("/storage/v1/object/{bucket}/{path}"))
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("path", objectPath).Msg("image upload failed")
		return "", err
	}

	publicURL := c.publicURL(bucket, objectPath)
	log.Info().Str("bucket", bucket).Str("path", objectPath).Int("bytes", len(data)).Msg("image uploaded")
	return publicURL, nil
}

func (c *Client) publicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, url.PathEscape(bucket), objectPath)
}

// CreateListing inserts one row and returns it as stored by the backend.
func (c *Client) CreateListing(ctx context.Context, draft model.NewListing) (*model.Listing, error) {
	var rows []model.Listing
	_, err := c.withRefresh(ctx, func() (*resty.Response, error) {
		return handleError(c.authedReq(ctx, &rows).
			SetHeader("Prefer", "return=representation").
			SetBody(draft).
			Post("/rest/v1/listings"))
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.Parse(MsgNoListingReturned)
	}

	listing := rows[0]
	log.Info().Str("listingId", listing.ID).Str("userId", listing.UserID).Msg("listing created")
	return &listing, nil
}

// GetListings returns the listings owned by userID, newest first.
func (c *Client) GetListings(ctx context.Context, userID string) ([]model.Listing, error) {
	var rows []model.Listing
	_, err := c.withRefresh(ctx, func() (*resty.Response, error) {
		return handleError(c.authedReq(ctx, &rows).
			SetQueryParams(map[string]string{
				"select":  "*",
				"user_id": "eq." + userID,
				"order":   "created_at.desc",
			}).
			Get("/rest/v1/listings"))
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.Listing{}
	}
	return rows, nil
}

// DeleteListing removes a listing by id. Ownership is enforced by the
// backend's row-level security, not here.
func (c *Client) DeleteListing(ctx context.Context, listingID string) error {
	_, err := c.withRefresh(ctx, func() (*resty.Response, error) {
		return handleError(c.authedReq(ctx, nil).
			SetQueryParam("id", "eq."+listingID).
			Delete("/rest/v1/listings"))
	})
	if err != nil {
		return err
	}
	log.Info().Str("listingId", listingID).Msg("listing deleted")
	return nil
}
