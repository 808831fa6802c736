package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinReviewRating        = 1
	MaxReviewRating        = 5
	MinReviewCommentLength = 10
)

// Review — отзыв покупателя о товаре.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// ValidateInvariants проверяет отзыв перед сохранением.
func (r *Review) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(r.ProductID) == "" {
		errs = append(errs, ErrItemProductRequired)
	}
	if strings.TrimSpace(r.UserID) == "" {
		errs = append(errs, ErrUserRequired)
	}
	if r.Rating < MinReviewRating || r.Rating > MaxReviewRating {
		errs = append(errs, ErrReviewRatingInvalid)
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.Comment)) < MinReviewCommentLength {
		errs = append(errs, ErrReviewCommentTooShort)
	}

	return errs
}
