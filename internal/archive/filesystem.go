package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"compsynth/internal/synth"
)

// FileSystemArchive publishes datasets into a directory tree:
//
//	<root>/
//	  datasets/
//	    <name>           (dataset files and user lists)
//	  metadata/
//	    <name>           (e.g. the ledger snapshot)
//	    <name>.version
type FileSystemArchive struct {
	name        string
	root        string
	datasetDir  string
	metadataDir string
}

// NewFileSystemArchive creates a filesystem archive rooted at the given path.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	datasetDir := filepath.Join(root, "datasets")
	metadataDir := filepath.Join(root, "metadata")

	if err := os.MkdirAll(datasetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create datasets directory: %w", err)
	}
	if err := os.MkdirAll(metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	return &FileSystemArchive{
		name:        name,
		root:        root,
		datasetDir:  datasetDir,
		metadataDir: metadataDir,
	}, nil
}

// PutDataset stores a dataset file, replacing any earlier copy.
func (a *FileSystemArchive) PutDataset(name string, r io.Reader, size int64) error {
	if err := checkName(name); err != nil {
		return err
	}
	return writeFile(filepath.Join(a.datasetDir, name), r, size)
}

// GetDataset copies a stored dataset file to w.
func (a *FileSystemArchive) GetDataset(name string, w io.Writer) error {
	if err := checkName(name); err != nil {
		return err
	}
	return readFile(filepath.Join(a.datasetDir, name), w, fmt.Sprintf("dataset not found: %s", name))
}

// PutMetadata stores a named metadata item along with a version marker.
// The version file is written after the item, so a reader never sees a
// version newer than the data it describes.
func (a *FileSystemArchive) PutMetadata(name string, r io.Reader, size int64, version int64) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(a.metadataDir, name), r, size); err != nil {
		return err
	}

	data := strconv.FormatInt(version, 10)
	return writeFile(filepath.Join(a.metadataDir, name+".version"), strings.NewReader(data), int64(len(data)))
}

// GetMetadataVersion returns the stored version of a metadata item.
// Returns 0 if no version file exists.
func (a *FileSystemArchive) GetMetadataVersion(name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(a.metadataDir, name+".version"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the archive directories exist and are writable.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}

	for _, dir := range []string{a.datasetDir, a.metadataDir} {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("archive directory not writable: %w", err)
		}
		f.Close()
		os.Remove(f.Name())
	}

	return nil
}

// checkName rejects names that would escape the archive directories.
func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid archive name: %q", name)
	}
	return nil
}

// writeFile writes data from r to destPath using a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func readFile(srcPath string, w io.Writer, notFoundMsg string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

var _ synth.Archive = (*FileSystemArchive)(nil)
