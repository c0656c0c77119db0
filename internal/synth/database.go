package synth

import "compsynth/internal/model"

// Ledger records runs and the datasets they produce.
type Ledger interface {
	// CreateRun opens a run record with status "running".
	CreateRun(uuid, operation, parameters string) (*model.Run, error)

	// FinishRun stamps the finish time and final status of a run.
	FinishRun(id int64, status string) error

	// FindRunByUUID returns the run with the given UUID, or nil if none exists.
	FindRunByUUID(uuid string) (*model.Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*model.Run, error)

	// MaxRunID returns the highest run id, or 0 for an empty ledger.
	MaxRunID() (int64, error)

	// CreateDataset stores a dataset row and fills in its ID.
	CreateDataset(ds *model.Dataset) error

	// ListDatasets returns the datasets of a run in creation order.
	ListDatasets(runID int64) ([]*model.Dataset, error)

	// Close closes the database connection.
	Close() error
}
