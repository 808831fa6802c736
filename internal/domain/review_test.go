package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestReview_ValidateInvariants(t *testing.T) {
	tests := []struct {
		name   string
		review Review
		want   []error
	}{
		{
			name:   "valid",
			review: Review{ProductID: "p-1", UserID: "u-1", Rating: 5, Comment: "works great for me"},
		},
		{
			name:   "rating out of range",
			review: Review{ProductID: "p-1", UserID: "u-1", Rating: 6, Comment: "works great for me"},
			want:   []error{ErrReviewRatingInvalid},
		},
		{
			name:   "comment counted after trim",
			review: Review{ProductID: "p-1", UserID: "u-1", Rating: 3, Comment: "   short    "},
			want:   []error{ErrReviewCommentTooShort},
		},
		{
			name:   "cyrillic comment counted in runes",
			review: Review{ProductID: "p-1", UserID: "u-1", Rating: 4, Comment: strings.Repeat("ю", MinReviewCommentLength)},
		},
		{
			name:   "missing references",
			review: Review{Rating: 0},
			want:   []error{ErrItemProductRequired, ErrUserRequired, ErrReviewRatingInvalid, ErrReviewCommentTooShort},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.review.ValidateInvariants()
			if len(errs) != len(tt.want) {
				t.Fatalf("expected %d errors, got %v", len(tt.want), errs)
			}
			for _, want := range tt.want {
				if !errors.Is(errors.Join(errs...), want) {
					t.Errorf("missing %v", want)
				}
			}
		})
	}
}
