// Package aggregator admits participant responses and keeps per-instance
// aggregates up to date incrementally.
package aggregator

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"session-service/internal/apperrors"
	"session-service/internal/constants"
	"session-service/internal/models"
	"session-service/internal/sequencer"

	"github.com/google/uuid"
)

// Submit stores the participant's response for an instance of the active
// block, replacing any earlier response from the same fingerprint.
func Submit(s *models.Session, instanceID, fingerprint string, payload models.ResponsePayload, now time.Time) (*models.Response, error) {
	if s.Status != constants.SessionStatusRunning {
		return nil, apperrors.NotAccepting("session %s is %s", s.ID, s.Status)
	}
	inst, _ := sequencer.FindInstance(s, instanceID)
	if inst == nil {
		return nil, apperrors.NotFound("question instance %s not found", instanceID)
	}
	if !sequencer.InstanceIsActive(s, instanceID) {
		return nil, apperrors.NotAccepting("question instance %s is not active", instanceID)
	}

	normalized, err := normalize(inst.Question, payload)
	if err != nil {
		return nil, err
	}

	ensureResults(inst)
	if inst.Responses == nil {
		inst.Responses = map[string]models.Response{}
	}
	if prev, ok := inst.Responses[fingerprint]; ok {
		apply(inst.Results, prev, -1)
	}

	resp := models.Response{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Payload:     normalized,
		SubmittedAt: now,
	}
	inst.Responses[fingerprint] = resp
	apply(inst.Results, resp, +1)
	return &resp, nil
}

// Remove deletes the participant's response. It reports whether anything was
// removed; a missing response is not an error.
func Remove(inst *models.QuestionInstance, fingerprint string) bool {
	prev, ok := inst.Responses[fingerprint]
	if !ok {
		return false
	}
	ensureResults(inst)
	delete(inst.Responses, fingerprint)
	apply(inst.Results, prev, -1)
	return true
}

func RemoveByResponseID(inst *models.QuestionInstance, responseID string) bool {
	for fp, r := range inst.Responses {
		if r.ID == responseID {
			return Remove(inst, fp)
		}
	}
	return false
}

// Snapshot returns a copy of the current aggregate.
func Snapshot(inst *models.QuestionInstance) models.Results {
	ensureResults(inst)
	return inst.Results.Clone()
}

// Rebuild recomputes the aggregate from the stored responses.
func Rebuild(inst *models.QuestionInstance) {
	res, err := models.NewResults(inst.Question)
	if err != nil {
		return
	}
	inst.Results = res

	ordered := make([]models.Response, 0, len(inst.Responses))
	for _, r := range inst.Responses {
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubmittedAt.Before(ordered[j].SubmittedAt)
	})
	for _, r := range ordered {
		apply(inst.Results, r, +1)
	}
}

// Finalize recomputes every aggregate from its responses and closes the
// instances.
func Finalize(s *models.Session, now time.Time) {
	for _, block := range s.Blocks {
		for _, inst := range block.Instances {
			Rebuild(inst)
			if inst.ClosedAt == nil {
				closed := now
				inst.ClosedAt = &closed
			}
		}
	}
}

func ensureResults(inst *models.QuestionInstance) {
	if inst.Results == nil {
		Rebuild(inst)
	}
}

func apply(results models.Results, r models.Response, delta int) {
	switch res := results.(type) {
	case *models.ChoiceResults:
		if res.Counts == nil {
			res.Counts = map[string]int{}
		}
		for _, key := range r.Payload.Choices {
			res.Counts[key] += delta
			if res.Counts[key] < 0 {
				res.Counts[key] = 0
			}
		}
		res.Responses += delta
		if res.Responses < 0 {
			res.Responses = 0
		}
	case *models.FreeTextResults:
		if delta > 0 {
			res.Entries = append(res.Entries, models.FreeTextEntry{
				ResponseID:  r.ID,
				Text:        r.Payload.Text,
				SubmittedAt: r.SubmittedAt,
			})
			return
		}
		for i, e := range res.Entries {
			if e.ResponseID == r.ID {
				res.Entries = append(res.Entries[:i], res.Entries[i+1:]...)
				return
			}
		}
	}
}

func normalize(q models.Question, p models.ResponsePayload) (models.ResponsePayload, error) {
	switch q.Type {
	case constants.QuestionTypeSingleChoice, constants.QuestionTypeMultipleChoice:
		seen := make(map[string]bool, len(p.Choices))
		choices := make([]string, 0, len(p.Choices))
		for _, c := range p.Choices {
			c = strings.TrimSpace(c)
			if !q.HasOption(c) {
				return models.ResponsePayload{}, apperrors.Validation("unknown choice %q", c)
			}
			if seen[c] {
				continue
			}
			seen[c] = true
			choices = append(choices, c)
		}
		if len(choices) == 0 {
			return models.ResponsePayload{}, apperrors.Validation("at least one choice is required")
		}
		if q.Type == constants.QuestionTypeSingleChoice && len(choices) != 1 {
			return models.ResponsePayload{}, apperrors.Validation("exactly one choice is required")
		}
		return models.ResponsePayload{Choices: choices}, nil

	case constants.QuestionTypeFree:
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return models.ResponsePayload{}, apperrors.Validation("response text is required")
		}
		if utf8.RuneCountInString(text) > constants.MaxFreeTextLength {
			return models.ResponsePayload{}, apperrors.Validation("response text exceeds %d characters", constants.MaxFreeTextLength)
		}
		return models.ResponsePayload{Text: text}, nil

	case constants.QuestionTypeFreeRange:
		text := strings.TrimSpace(p.Text)
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return models.ResponsePayload{}, apperrors.Validation("response must be a number")
		}
		if q.Range != nil {
			if q.Range.Min != nil && value < *q.Range.Min {
				return models.ResponsePayload{}, apperrors.Validation("response is below the allowed minimum")
			}
			if q.Range.Max != nil && value > *q.Range.Max {
				return models.ResponsePayload{}, apperrors.Validation("response is above the allowed maximum")
			}
		}
		return models.ResponsePayload{Text: strconv.FormatFloat(value, 'f', -1, 64)}, nil
	}
	return models.ResponsePayload{}, apperrors.Validation("unsupported question type %q", q.Type)
}
