package synth

import "io"

// Encryptor seals dataset files at rest.
// Sealing uses the public key only. Opening a sealed file requires the
// passphrase that protects the private key.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and
	// encrypts the private key with passphrase.
	Setup(passphrase string) error

	// Seal returns a writer whose output, written to w, is encrypted.
	// The returned writer must be closed to finalize the ciphertext.
	Seal(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key and returns a DecryptionContext.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key for the current process only.
type DecryptionContext interface {
	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
