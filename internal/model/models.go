package model

import (
	"database/sql"
	"time"
)

// Run is one invocation of a ledger-recorded command.
type Run struct {
	ID         int64  // auto-increment, also the ledger version
	UUID       string // stable identifier shown to users
	Operation  string // e.g. "Generate", "BuildIndex"
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string // "running", "success" or "error"
}

// Dataset is one synthesized dataset produced by a run.
type Dataset struct {
	ID              int64
	RunID           int64   // Foreign key to Run
	PercCompromised float64 // share of records replaced on the injection branch
	ProbCompromised float64 // probability of the untouched branch
	Seed            int64   // seed of this dataset's generator
	CorpusPath      string
	UserListPath    string
	OutputPath      string
	Users           int64
	Written         int64
	Injected        int64
	Omitted         int64
	Encrypted       bool
	ArchiveKey      string // empty when not archived
	CreatedAt       time.Time
}
