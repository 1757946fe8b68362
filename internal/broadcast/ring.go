package broadcast

import (
	"session-service/internal/apperrors"
	"session-service/internal/models"
)

// AppendConfusion adds a signal to the session's confusion buffer, evicting
// the oldest entries once capacity is exceeded.
func AppendConfusion(s *models.Session, ts models.ConfusionTS, capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	s.Confusion = append(s.Confusion, ts)
	if over := len(s.Confusion) - capacity; over > 0 {
		kept := make([]models.ConfusionTS, capacity)
		copy(kept, s.Confusion[over:])
		s.Confusion = kept
	}
}

func AppendFeedback(s *models.Session, fb models.Feedback) {
	s.Feedbacks = append(s.Feedbacks, fb)
}

// DeleteFeedback reports whether the feedback existed. Deleting an unknown id
// is not an error.
func DeleteFeedback(s *models.Session, id string) bool {
	for i, fb := range s.Feedbacks {
		if fb.ID == id {
			s.Feedbacks = append(s.Feedbacks[:i], s.Feedbacks[i+1:]...)
			return true
		}
	}
	return false
}

// UpvoteFeedback moves the vote count of a feedback item by one in either
// direction. Votes never drop below zero.
func UpvoteFeedback(s *models.Session, id string, delta int) (*models.Feedback, error) {
	if delta != 1 && delta != -1 {
		return nil, apperrors.Validation("vote delta must be 1 or -1")
	}
	for i := range s.Feedbacks {
		if s.Feedbacks[i].ID != id {
			continue
		}
		fb := &s.Feedbacks[i]
		fb.Votes += delta
		if fb.Votes < 0 {
			fb.Votes = 0
		}
		return fb, nil
	}
	return nil, apperrors.NotFound("feedback %s not found", id)
}
