package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raine/hotpotato/internal/apperr"
)

func validListing() NewListing {
	return NewListing{
		UserID:       "u1",
		Title:        "Rustic Oak Dining Chair",
		Description:  "Solid oak, lightly used.",
		Price:        150,
		ImageURL:     "https://cdn.example.com/u1/1.jpg",
		DetectedItem: "Oak Dining Chair",
	}
}

func TestNewListingValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*NewListing)
		wantMsg string
	}{
		{"valid", func(*NewListing) {}, ""},
		{"empty title", func(n *NewListing) { n.Title = "" }, MsgEnterTitle},
		{"whitespace title", func(n *NewListing) { n.Title = "   \t" }, MsgEnterTitle},
		{"whitespace description", func(n *NewListing) { n.Description = "\n " }, MsgEnterDescription},
		{"zero price", func(n *NewListing) { n.Price = 0 }, MsgEnterValidPrice},
		{"negative price", func(n *NewListing) { n.Price = -5 }, MsgEnterValidPrice},
		{"title reported before price", func(n *NewListing) { n.Title = ""; n.Price = 0 }, MsgEnterTitle},
		{"missing owner", func(n *NewListing) { n.UserID = "" }, MsgMissingOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validListing()
			tt.modify(&n)
			err := n.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.Message(err))
		})
	}
}

func TestNormalized(t *testing.T) {
	n := NewListing{Title: "  Chair ", Description: " Nice\n", DetectedItem: " chair"}.Normalized()
	assert.Equal(t, "Chair", n.Title)
	assert.Equal(t, "Nice", n.Description)
	assert.Equal(t, "chair", n.DetectedItem)
}

func TestShareText(t *testing.T) {
	l := Listing{Title: "Red Bicycle", Price: 120, Description: "Barely ridden."}
	assert.Equal(t, "Red Bicycle\n\nPrice: $120\n\nBarely ridden.", l.ShareText())

	l.Price = 19.5
	assert.Equal(t, "Red Bicycle\n\nPrice: $19.5\n\nBarely ridden.", l.ShareText())
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, BandFor(92))
	assert.Equal(t, ConfidenceHigh, BandFor(70))
	assert.Equal(t, ConfidenceMedium, BandFor(65))
	assert.Equal(t, ConfidenceMedium, BandFor(40))
	assert.Equal(t, ConfidenceLow, BandFor(39))
}
