package models

import (
	"encoding/json"
	"testing"
	"time"

	"session-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion() Question {
	return Question{
		Type:    constants.QuestionTypeSingleChoice,
		Content: "2+2?",
		Options: []Option{{Key: "A", Label: "4", Correct: true}, {Key: "B", Label: "5"}},
	}
}

func TestNewResultsShapeFollowsQuestionType(t *testing.T) {
	res, err := NewResults(choiceQuestion())
	require.NoError(t, err)
	choices, ok := res.(*ChoiceResults)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"A": 0, "B": 0}, choices.Counts)

	res, err = NewResults(Question{Type: constants.QuestionTypeFreeRange})
	require.NoError(t, err)
	assert.IsType(t, &FreeTextResults{}, res)

	_, err = NewResults(Question{Type: "ESSAY"})
	assert.Error(t, err)
}

func TestQuestionInstanceKeepsResultsShapeThroughDocument(t *testing.T) {
	inst := &QuestionInstance{
		ID:       "i1",
		Question: Question{Type: constants.QuestionTypeFree, Content: "why?"},
		Responses: map[string]Response{
			"fp1": {ID: "r1", Fingerprint: "fp1", Payload: ResponsePayload{Text: "because"}},
		},
		Results: &FreeTextResults{Entries: []FreeTextEntry{{ResponseID: "r1", Text: "because", SubmittedAt: time.Unix(10, 0).UTC()}}},
	}

	raw, err := json.Marshal(inst)
	require.NoError(t, err)

	var decoded QuestionInstance
	require.NoError(t, json.Unmarshal(raw, &decoded))

	free, ok := decoded.Results.(*FreeTextResults)
	require.True(t, ok, "results kind must survive persistence")
	require.Len(t, free.Entries, 1)
	assert.Equal(t, "because", free.Entries[0].Text)
	assert.Equal(t, "fp1", decoded.Responses["fp1"].Fingerprint)
}

func TestDecodeResultsRejectsUnknownKind(t *testing.T) {
	_, err := DecodeResults(json.RawMessage(`{"kind":"HISTOGRAM"}`))
	assert.Error(t, err)

	res, err := DecodeResults(json.RawMessage(`null`))
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestSettingsApplyOnlyTouchesProvidedFields(t *testing.T) {
	s := DefaultSettings()
	on := true
	s.Apply(SettingsPatch{IsProjectorMode: &on})

	assert.True(t, s.IsProjectorMode)
	assert.True(t, s.IsConfusionBarometerActive)
	assert.Equal(t, constants.AnonymityFull, s.Anonymity)
}

func TestPublicHidesSolutionsAndPrivateFeedback(t *testing.T) {
	active := 0
	res, _ := NewResults(choiceQuestion())
	s := &Session{
		ID:          "s1",
		Status:      constants.SessionStatusRunning,
		Settings:    DefaultSettings(),
		ActiveBlock: &active,
		Blocks: []*QuestionBlock{{
			ID:        "b1",
			Status:    constants.BlockStatusActive,
			Instances: []*QuestionInstance{{ID: "i1", Question: choiceQuestion(), Results: res}},
		}},
		Feedbacks: []Feedback{{ID: "f1", Fingerprint: "secret", Content: "slow down"}},
	}

	pub := s.Public()
	require.NotNil(t, pub.ActiveBlock)
	assert.False(t, pub.ActiveBlock.Instances[0].Question.Options[0].Correct)
	assert.Nil(t, pub.ActiveBlock.Instances[0].Results)
	assert.Empty(t, pub.Feedbacks)

	s.Settings.IsEvaluationPublic = true
	s.Settings.IsFeedbackChannelPublic = true
	pub = s.Public()
	assert.True(t, pub.ActiveBlock.Instances[0].Question.Options[0].Correct)
	assert.NotNil(t, pub.ActiveBlock.Instances[0].Results)
	require.Len(t, pub.Feedbacks, 1)
	assert.Equal(t, "slow down", pub.Feedbacks[0].Content)
}
