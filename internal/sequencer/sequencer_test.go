package sequencer

import (
	"testing"

	"session-service/internal/apperrors"
	"session-service/internal/constants"
	"session-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(blocks int) *models.Session {
	s := &models.Session{ID: "s1"}
	for i := 0; i < blocks; i++ {
		s.Blocks = append(s.Blocks, &models.QuestionBlock{
			ID:        string(rune('a' + i)),
			Status:    constants.BlockStatusPlanned,
			Instances: []*models.QuestionInstance{{ID: "inst-" + string(rune('a'+i))}},
		})
	}
	return s
}

func statuses(s *models.Session) []string {
	out := make([]string, len(s.Blocks))
	for i, b := range s.Blocks {
		out[i] = b.Status
	}
	return out
}

func TestActivateFirstThenAdvanceThroughAllBlocks(t *testing.T) {
	s := newSession(2)

	require.NoError(t, ActivateFirst(s))
	require.NotNil(t, s.ActiveBlock)
	assert.Equal(t, 0, *s.ActiveBlock)
	assert.Equal(t, []string{constants.BlockStatusActive, constants.BlockStatusPlanned}, statuses(s))
	require.NoError(t, CheckInvariant(s))

	require.NoError(t, Advance(s))
	assert.Equal(t, 1, *s.ActiveBlock)
	assert.Equal(t, []string{constants.BlockStatusExecuted, constants.BlockStatusActive}, statuses(s))
	require.NoError(t, CheckInvariant(s))

	err := Advance(s)
	assert.ErrorIs(t, err, apperrors.ErrNoMoreBlocks)
	assert.Equal(t, 1, *s.ActiveBlock, "failed advance must leave the pointer untouched")
	assert.Equal(t, []string{constants.BlockStatusExecuted, constants.BlockStatusActive}, statuses(s))

	Finish(s)
	assert.Nil(t, s.ActiveBlock)
	assert.Equal(t, []string{constants.BlockStatusExecuted, constants.BlockStatusExecuted}, statuses(s))
	require.NoError(t, CheckInvariant(s))
}

func TestActivateFirstIsNoopWhenActive(t *testing.T) {
	s := newSession(3)
	require.NoError(t, ActivateFirst(s))
	require.NoError(t, Advance(s))

	require.NoError(t, ActivateFirst(s))
	assert.Equal(t, 1, *s.ActiveBlock)
}

func TestActivateFirstWithoutBlocks(t *testing.T) {
	assert.ErrorIs(t, ActivateFirst(newSession(0)), apperrors.ErrNoMoreBlocks)
}

func TestFinishEarlyKeepsRemainingPlanned(t *testing.T) {
	s := newSession(3)
	require.NoError(t, ActivateFirst(s))
	Finish(s)

	assert.Equal(t, []string{constants.BlockStatusExecuted, constants.BlockStatusPlanned, constants.BlockStatusPlanned}, statuses(s))
	assert.NoError(t, CheckInvariant(s))
}

func TestInstanceIsActive(t *testing.T) {
	s := newSession(2)
	assert.False(t, InstanceIsActive(s, "inst-a"))

	require.NoError(t, ActivateFirst(s))
	assert.True(t, InstanceIsActive(s, "inst-a"))
	assert.False(t, InstanceIsActive(s, "inst-b"))

	inst, block := FindInstance(s, "inst-b")
	require.NotNil(t, inst)
	assert.Equal(t, 1, block)

	inst, block = FindInstance(s, "missing")
	assert.Nil(t, inst)
	assert.Equal(t, -1, block)
}

func TestCheckInvariantDetectsCorruption(t *testing.T) {
	s := newSession(2)
	s.Blocks[0].Status = constants.BlockStatusActive
	s.Blocks[1].Status = constants.BlockStatusActive
	assert.Error(t, CheckInvariant(s))

	s = newSession(2)
	s.Blocks[1].Status = constants.BlockStatusActive
	assert.Error(t, CheckInvariant(s), "active block without pointer")

	s = newSession(2)
	s.Blocks[1].Status = constants.BlockStatusExecuted
	assert.Error(t, CheckInvariant(s), "executed after planned")
}
