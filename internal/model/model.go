// Package model holds the records shared between the backend client, the
// client-side stores and the listing pipeline.
package model

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/raine/hotpotato/internal/apperr"
)

// Identity is an authenticated backend user.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Listing is a persisted marketplace listing. ID and CreatedAt are assigned
// by the backend.
type Listing struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	ImageURL     string    `json:"image_url"`
	DetectedItem string    `json:"detected_item"`
	Confidence   *int      `json:"confidence,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewListing is the insert payload for a listing that has no backend id yet.
type NewListing struct {
	UserID       string  `json:"user_id" validate:"required"`
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Price        float64 `json:"price" validate:"gt=0"`
	ImageURL     string  `json:"image_url"`
	DetectedItem string  `json:"detected_item"`
	Confidence   *int    `json:"confidence,omitempty"`
}

const (
	MsgEnterTitle       = "Please enter a title"
	MsgEnterDescription = "Please enter a description"
	MsgEnterValidPrice  = "Please enter a valid price"
	MsgMissingOwner     = "Listing has no owner"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Normalized returns a copy with surrounding whitespace removed from the
// text fields.
func (n NewListing) Normalized() NewListing {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	n.DetectedItem = strings.TrimSpace(n.DetectedItem)
	return n
}

// Validate checks the local constraints a listing must satisfy before it is
// sent to the backend. Whitespace-only title or description is rejected.
// The returned error is a ValidationError carrying the first failed rule.
func (n NewListing) Validate() error {
	if err := validate.Struct(n.Normalized()); err != nil {
		return validationError(err)
	}
	return nil
}

// fieldOrder keeps reported messages in form order.
var fieldOrder = []string{"title", "description", "price", "user_id"}

func validationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Wrap(apperr.KindValidation, err, "validation failed")
	}
	failed := map[string]bool{}
	for _, fe := range errs {
		failed[fe.Field()] = true
	}
	for _, field := range fieldOrder {
		if failed[field] {
			return apperr.Validation(fieldMessage(field))
		}
	}
	return apperr.Validation("validation failed")
}

func fieldMessage(field string) string {
	switch field {
	case "title":
		return MsgEnterTitle
	case "description":
		return MsgEnterDescription
	case "price":
		return MsgEnterValidPrice
	case "user_id":
		return MsgMissingOwner
	}
	return "validation failed"
}

// FormatPrice renders a price without trailing zeros, e.g. 150 or 19.9.
func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).String()
}

// ShareText renders the listing the way it is copied to other marketplaces.
func (l Listing) ShareText() string {
	return fmt.Sprintf("%s\n\nPrice: $%s\n\n%s", l.Title, FormatPrice(l.Price), l.Description)
}

// ConfidenceBand buckets a 0-100 detection confidence.
type ConfidenceBand string

const (
	ConfidenceHigh   ConfidenceBand = "high"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceLow    ConfidenceBand = "low"
)

func BandFor(confidence int) ConfidenceBand {
	switch {
	case confidence >= 70:
		return ConfidenceHigh
	case confidence >= 40:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
