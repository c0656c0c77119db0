package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FetchDataset downloads the archived file name to dst. dst is only created
// once the download completes.
func (s *SynthService) FetchDataset(name, dst string) error {
	if s.archive == nil {
		return errors.New("no archive is configured")
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := s.archive.GetDataset(name, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	s.logger.Info("dataset fetched", "key", DatasetKey(name), "dst", dst)
	return nil
}
