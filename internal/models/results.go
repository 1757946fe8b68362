package models

import (
	"encoding/json"
	"fmt"
	"time"

	"session-service/internal/constants"
)

// Results is the live aggregate of a question instance. The concrete type is
// fixed when the instance is created: *ChoiceResults for choice questions and
// *FreeTextResults for free-form questions.
type Results interface {
	Kind() string
	Total() int
	Clone() Results
}

type ChoiceResults struct {
	Counts    map[string]int
	Responses int
}

func (r *ChoiceResults) Kind() string { return constants.ResultsKindChoices }
func (r *ChoiceResults) Total() int   { return r.Responses }

func (r *ChoiceResults) Clone() Results {
	counts := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		counts[k] = v
	}
	return &ChoiceResults{Counts: counts, Responses: r.Responses}
}

func (r *ChoiceResults) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultsEnvelope{
		Kind:   constants.ResultsKindChoices,
		Total:  r.Responses,
		Counts: r.Counts,
	})
}

type FreeTextEntry struct {
	ResponseID  string    `json:"response_id"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type FreeTextResults struct {
	Entries []FreeTextEntry
}

func (r *FreeTextResults) Kind() string { return constants.ResultsKindFreeText }
func (r *FreeTextResults) Total() int   { return len(r.Entries) }

func (r *FreeTextResults) Clone() Results {
	return &FreeTextResults{Entries: append([]FreeTextEntry(nil), r.Entries...)}
}

func (r *FreeTextResults) MarshalJSON() ([]byte, error) {
	entries := r.Entries
	if entries == nil {
		entries = []FreeTextEntry{}
	}
	return json.Marshal(resultsEnvelope{
		Kind:    constants.ResultsKindFreeText,
		Total:   len(r.Entries),
		Entries: entries,
	})
}

type resultsEnvelope struct {
	Kind    string          `json:"kind"`
	Total   int             `json:"total"`
	Counts  map[string]int  `json:"counts,omitempty"`
	Entries []FreeTextEntry `json:"entries,omitempty"`
}

// NewResults returns the empty aggregate shape for a question.
func NewResults(q Question) (Results, error) {
	switch q.Type {
	case constants.QuestionTypeSingleChoice, constants.QuestionTypeMultipleChoice:
		counts := make(map[string]int, len(q.Options))
		for _, o := range q.Options {
			counts[o.Key] = 0
		}
		return &ChoiceResults{Counts: counts}, nil
	case constants.QuestionTypeFree, constants.QuestionTypeFreeRange:
		return &FreeTextResults{}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", q.Type)
	}
}

// DecodeResults restores a persisted aggregate. A missing value yields nil.
func DecodeResults(raw json.RawMessage) (Results, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env resultsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	switch env.Kind {
	case constants.ResultsKindChoices:
		counts := env.Counts
		if counts == nil {
			counts = map[string]int{}
		}
		return &ChoiceResults{Counts: counts, Responses: env.Total}, nil
	case constants.ResultsKindFreeText:
		return &FreeTextResults{Entries: env.Entries}, nil
	default:
		return nil, fmt.Errorf("unknown results kind %q", env.Kind)
	}
}

func (q *QuestionInstance) UnmarshalJSON(data []byte) error {
	type alias QuestionInstance
	aux := struct {
		*alias
		Results json.RawMessage `json:"results"`
	}{alias: (*alias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	results, err := DecodeResults(aux.Results)
	if err != nil {
		return err
	}
	q.Results = results
	if q.Responses == nil {
		q.Responses = map[string]Response{}
	}
	return nil
}
