package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"compsynth/internal/synth"
)

// testHeader marks data sealed by TestEncryptor.
var testHeader = []byte("CSENC\x00\x00\x00")

var errWriteAfterClose = errors.New("write to closed sealed writer")

// TestEncryptor is a deterministic stand-in for age. A sealed stream is the
// plaintext behind testHeader. Until Setup is called any passphrase unlocks;
// afterwards only the one given to Setup does.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
	keyed      bool
}

var _ synth.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passphrase = passphrase
	e.keyed = true
	return nil
}

// Seal returns a writer that emits testHeader before the first byte of
// payload, or on Close for an empty dataset. Close leaves w open.
func (e *TestEncryptor) Seal(w io.Writer) (io.WriteCloser, error) {
	return &sealedWriter{w: w}, nil
}

func (e *TestEncryptor) Unlock(passphrase string) (synth.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.keyed && passphrase != e.passphrase {
		return nil, fmt.Errorf("unlocking test key: %w", ErrBadPassphrase)
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

type sealedWriter struct {
	w      io.Writer
	headed bool
	closed bool
}

func (s *sealedWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errWriteAfterClose
	}
	if err := s.writeHeader(); err != nil {
		return 0, err
	}
	return s.w.Write(p)
}

func (s *sealedWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writeHeader()
}

func (s *sealedWriter) writeHeader() error {
	if s.headed {
		return nil
	}
	if _, err := s.w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	s.headed = true
	return nil
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ synth.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return errors.New("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
