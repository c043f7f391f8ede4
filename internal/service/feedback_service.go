package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/pkg/timeutil"
)

type FeedbackService struct {
	interactions IInteractionRepo
	feedback     IFeedbackRepo
}

func NewFeedbackService(interactions IInteractionRepo, feedback IFeedbackRepo) *FeedbackService {
	return &FeedbackService{interactions: interactions, feedback: feedback}
}

type FeedbackRequest struct {
	InteractionID  string
	StudentID      string
	Rating         *int
	Helpful        *bool
	AccuracyRating *int
	FeedbackText   string
}

func (s *FeedbackService) Submit(ctx context.Context, req FeedbackRequest) (*model.Feedback, error) {
	if req.InteractionID == "" {
		return nil, fmt.Errorf("interaction_id is required: %w", appErr.ErrInvalid)
	}
	if err := checkRating("rating", req.Rating); err != nil {
		return nil, err
	}
	if err := checkRating("accuracy_rating", req.AccuracyRating); err != nil {
		return nil, err
	}
	if _, err := s.interactions.GetByID(ctx, req.InteractionID); err != nil {
		return nil, err
	}
	fb := &model.Feedback{
		ID:             newID(),
		InteractionID:  req.InteractionID,
		StudentID:      req.StudentID,
		Rating:         req.Rating,
		Helpful:        req.Helpful,
		AccuracyRating: req.AccuracyRating,
		FeedbackText:   req.FeedbackText,
		Ctime:          timeutil.NowUnixMilli(),
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func checkRating(field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 1 || *v > 5 {
		return fmt.Errorf("%s must be in [1, 5]: %w", field, appErr.ErrInvalid)
	}
	return nil
}
