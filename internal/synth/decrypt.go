package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DecryptDataset opens a sealed dataset at src and writes the plaintext
// (still gzip-compressed) to dst. dst is only created once decryption succeeds.
func (s *SynthService) DecryptDataset(passphrase, src, dst string) error {
	if s.encryptor == nil {
		return errors.New("encryption is not configured")
	}

	dc, err := s.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening sealed dataset: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := dc.Decrypt(in, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("decrypting %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	s.logger.Info("dataset decrypted", "src", src, "dst", dst)
	return nil
}
