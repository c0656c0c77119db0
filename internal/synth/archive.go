package synth

import "io"

// Archive is where finished datasets are published.
// All operations stream through io.Reader/io.Writer; datasets can be large.
type Archive interface {
	// PutDataset stores a dataset file under name, replacing any previous copy.
	// size is the number of bytes that will be read from r.
	PutDataset(name string, r io.Reader, size int64) error

	// GetDataset retrieves a dataset file and writes it to w.
	GetDataset(name string, w io.Writer) error

	// PutMetadata stores a named metadata item with a version marker.
	// Known names: "ledger" (SQLite run ledger snapshot).
	PutMetadata(name string, r io.Reader, size int64, version int64) error

	// GetMetadataVersion returns the stored version for name, or 0 if absent.
	GetMetadataVersion(name string) (int64, error)

	// ValidateSetup verifies that the archive is reachable and writable.
	ValidateSetup() error
}

// DatasetKey is the archive-relative key a dataset file is published under.
func DatasetKey(name string) string { return "datasets/" + name }
