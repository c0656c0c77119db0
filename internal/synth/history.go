package synth

import (
	"fmt"

	"compsynth/internal/model"
)

// GetHistory returns the most recent runs, ordered newest first.
func (s *SynthService) GetHistory(limit int) ([]*model.Run, error) {
	runs, err := s.ledger.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRunDatasets returns the datasets produced by the run with the given UUID.
func (s *SynthService) GetRunDatasets(runUUID string) (*model.Run, []*model.Dataset, error) {
	run, err := s.ledger.FindRunByUUID(runUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding run: %w", err)
	}
	if run == nil {
		return nil, nil, fmt.Errorf("run not found: %s", runUUID)
	}

	datasets, err := s.ledger.ListDatasets(run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing datasets: %w", err)
	}
	return run, datasets, nil
}
