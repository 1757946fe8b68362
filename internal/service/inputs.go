package service

import (
	"errors"
	"fmt"
	"strings"

	"session-service/internal/apperrors"
	"session-service/internal/constants"
	"session-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CreateSessionInput struct {
	Name     string                `json:"name" validate:"required,max=200"`
	Blocks   []BlockInput          `json:"blocks" validate:"required,min=1,dive"`
	Settings *models.SettingsPatch `json:"settings"`
}

type ModifySessionInput struct {
	Name   string       `json:"name" validate:"required,max=200"`
	Blocks []BlockInput `json:"blocks" validate:"required,min=1,dive"`
}

type BlockInput struct {
	TimeLimitSec int             `json:"time_limit_sec" validate:"gte=0"`
	Questions    []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// QuestionInput is the inline question content a block is built from.
type QuestionInput struct {
	QuestionID string               `json:"question_id"`
	Version    int                  `json:"version" validate:"gte=0"`
	Type       string               `json:"type" validate:"required,oneof=SC MC FREE FREE_RANGE"`
	Content    string               `json:"content" validate:"required,max=2000"`
	Options    []OptionInput        `json:"options" validate:"dive"`
	Range      *models.NumericRange `json:"range"`
}

type OptionInput struct {
	Key     string `json:"key" validate:"required,max=16"`
	Label   string `json:"label" validate:"max=500"`
	Correct bool   `json:"correct"`
}

func (s *SessionService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return apperrors.Validation("invalid input: %s", strings.Join(fields, ", "))
	}
	return apperrors.Validation("invalid input: %v", err)
}

func validateSettings(st models.Settings) error {
	switch st.Anonymity {
	case constants.AnonymityFull, constants.AnonymityPartial:
		return nil
	}
	return apperrors.Validation("unknown anonymity %q", st.Anonymity)
}

// materialize turns block inputs into PLANNED blocks with fresh instances and
// empty aggregates.
func materialize(inputs []BlockInput) ([]*models.QuestionBlock, error) {
	blocks := make([]*models.QuestionBlock, 0, len(inputs))
	for bi, in := range inputs {
		if len(in.Questions) == 0 {
			return nil, apperrors.Validation("block %d has no questions", bi)
		}
		block := &models.QuestionBlock{
			ID:           uuid.NewString(),
			Status:       constants.BlockStatusPlanned,
			TimeLimitSec: in.TimeLimitSec,
			Instances:    make([]*models.QuestionInstance, 0, len(in.Questions)),
		}
		for qi, qin := range in.Questions {
			q, err := buildQuestion(qin)
			if err != nil {
				return nil, apperrors.Validation("block %d question %d: %v", bi, qi, err)
			}
			results, err := models.NewResults(q)
			if err != nil {
				return nil, apperrors.Validation("block %d question %d: %v", bi, qi, err)
			}
			questionID := qin.QuestionID
			if questionID == "" {
				questionID = uuid.NewString()
			}
			block.Instances = append(block.Instances, &models.QuestionInstance{
				ID:         uuid.NewString(),
				QuestionID: questionID,
				Version:    qin.Version,
				Question:   q,
				Responses:  map[string]models.Response{},
				Results:    results,
			})
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func buildQuestion(in QuestionInput) (models.Question, error) {
	q := models.Question{
		Type:    in.Type,
		Content: strings.TrimSpace(in.Content),
	}
	switch in.Type {
	case constants.QuestionTypeSingleChoice, constants.QuestionTypeMultipleChoice:
		if len(in.Options) < 2 {
			return q, errors.New("choice questions need at least two options")
		}
		seen := make(map[string]bool, len(in.Options))
		for _, o := range in.Options {
			key := strings.TrimSpace(o.Key)
			if key == "" || seen[key] {
				return q, fmt.Errorf("option key %q is empty or repeated", o.Key)
			}
			seen[key] = true
			q.Options = append(q.Options, models.Option{Key: key, Label: o.Label, Correct: o.Correct})
		}
	case constants.QuestionTypeFreeRange:
		if r := in.Range; r != nil {
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				return q, errors.New("range minimum exceeds maximum")
			}
			q.Range = r
		}
	}
	return q, nil
}
