package app

// Operation tracks the CLI command being run. Operations are created in
// memory with ID=0; commands that produce files persist them as ledger runs.
type Operation struct {
	ID         int64
	UUID       string
	Name       string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, uuid string) *Operation {
	return &Operation{
		UUID:   uuid,
		Name:   name,
		Status: "success",
	}
}

// Persisted returns true if this operation has been saved to the ledger.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed and returns err unchanged.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
