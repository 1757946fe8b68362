// Package sequencer owns block order within a session and the single
// active-block pointer.
//
// Blocks before the active index are EXECUTED, the active block is ACTIVE and
// every following block is PLANNED. Without an active block the sequence is a
// run of EXECUTED blocks followed by PLANNED ones.
package sequencer

import (
	"fmt"

	"session-service/internal/apperrors"
	"session-service/internal/constants"
	"session-service/internal/models"
)

func ActiveBlock(s *models.Session) *models.QuestionBlock {
	if s.ActiveBlock == nil {
		return nil
	}
	idx := *s.ActiveBlock
	if idx < 0 || idx >= len(s.Blocks) {
		return nil
	}
	return s.Blocks[idx]
}

// ActivateFirst activates the first PLANNED block. It is a no-op when a block
// is already active.
func ActivateFirst(s *models.Session) error {
	if s.ActiveBlock != nil {
		return nil
	}
	next := nextPlanned(s, -1)
	if next < 0 {
		return apperrors.ErrNoMoreBlocks
	}
	s.Blocks[next].Status = constants.BlockStatusActive
	s.ActiveBlock = &next
	return nil
}

// Advance closes the active block and activates the next PLANNED one. When no
// PLANNED block is left the session is not modified.
func Advance(s *models.Session) error {
	current := -1
	if s.ActiveBlock != nil {
		current = *s.ActiveBlock
	}
	next := nextPlanned(s, current)
	if next < 0 {
		return apperrors.ErrNoMoreBlocks
	}

	if current >= 0 && current < len(s.Blocks) {
		s.Blocks[current].Status = constants.BlockStatusExecuted
	}
	s.Blocks[next].Status = constants.BlockStatusActive
	s.ActiveBlock = &next
	return nil
}

// Finish marks the active block EXECUTED and clears the pointer.
func Finish(s *models.Session) {
	if block := ActiveBlock(s); block != nil {
		block.Status = constants.BlockStatusExecuted
	}
	s.ActiveBlock = nil
}

func FindInstance(s *models.Session, instanceID string) (*models.QuestionInstance, int) {
	for bi, block := range s.Blocks {
		for _, inst := range block.Instances {
			if inst.ID == instanceID {
				return inst, bi
			}
		}
	}
	return nil, -1
}

// InstanceIsActive reports whether the instance belongs to the active block.
func InstanceIsActive(s *models.Session, instanceID string) bool {
	block := ActiveBlock(s)
	if block == nil || block.Status != constants.BlockStatusActive {
		return false
	}
	for _, inst := range block.Instances {
		if inst.ID == instanceID {
			return true
		}
	}
	return false
}

func CheckInvariant(s *models.Session) error {
	active := 0
	for _, b := range s.Blocks {
		if b.Status == constants.BlockStatusActive {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("session %s has %d active blocks", s.ID, active)
	}
	if (s.ActiveBlock == nil) != (active == 0) {
		return fmt.Errorf("session %s active pointer disagrees with block states", s.ID)
	}

	if s.ActiveBlock != nil {
		idx := *s.ActiveBlock
		if idx < 0 || idx >= len(s.Blocks) {
			return fmt.Errorf("session %s active index %d out of range", s.ID, idx)
		}
		for i, b := range s.Blocks {
			want := constants.BlockStatusPlanned
			switch {
			case i < idx:
				want = constants.BlockStatusExecuted
			case i == idx:
				want = constants.BlockStatusActive
			}
			if b.Status != want {
				return fmt.Errorf("session %s block %d is %s, want %s", s.ID, i, b.Status, want)
			}
		}
		return nil
	}

	seenPlanned := false
	for i, b := range s.Blocks {
		switch b.Status {
		case constants.BlockStatusPlanned:
			seenPlanned = true
		case constants.BlockStatusExecuted:
			if seenPlanned {
				return fmt.Errorf("session %s block %d executed after a planned block", s.ID, i)
			}
		}
	}
	return nil
}

func nextPlanned(s *models.Session, after int) int {
	for i := after + 1; i < len(s.Blocks); i++ {
		if s.Blocks[i].Status == constants.BlockStatusPlanned {
			return i
		}
	}
	return -1
}
