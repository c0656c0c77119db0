package encryption

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"compsynth/internal/config"
	"compsynth/internal/synth"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "compsynth.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "compsynth.key"),
	}
	return NewAgeEncryptor(cfg)
}

// seal runs input through e.Seal and returns the ciphertext.
func seal(t *testing.T, e synth.Encryptor, input []byte) []byte {
	t.Helper()

	var out bytes.Buffer
	w, err := e.Seal(&out)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(input)); err != nil {
		t.Fatalf("writing sealed data: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing sealed writer: %v", err)
	}
	return out.Bytes()
}

func TestAgeEncryptor_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeEncryptor_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeEncryptor_SealDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("0\tNone\tid\thello world\n")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x1f, 0x8b, 0x00, 0xff}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 100000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			passphrase := "test-passphrase"
			e := newTestAgeEncryptor(t)
			if err := e.Setup(passphrase); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			encrypted := seal(t, e, tt.input)
			if len(tt.input) > 0 && bytes.Contains(encrypted, tt.input) {
				t.Error("encrypted output contains the plaintext")
			}

			ctx, err := e.Unlock(passphrase)
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var decrypted bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(encrypted), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}

			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", decrypted.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_UnlockWrongPassphrase(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, err := e.Unlock("wrong-passphrase")
	if !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("Unlock() error = %v, want ErrBadPassphrase", err)
	}
}

func TestAgeEncryptor_Setup_KeyFiles(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	info, err := os.Stat(e.privateKeyPath)
	if err != nil {
		t.Fatalf("stat private key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key mode = %o, want 600", perm)
	}

	pub, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		t.Fatalf("reading public key: %v", err)
	}
	if !strings.HasPrefix(string(pub), "age1") {
		t.Errorf("public key = %q, want age1 prefix", pub)
	}

	priv, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		t.Fatalf("reading private key: %v", err)
	}
	if strings.Contains(string(priv), "AGE-SECRET-KEY") {
		t.Error("private key stored in plaintext")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(e.privateKeyPath), ".key-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp key files left behind: %v", leftovers)
	}
}

func TestAgeEncryptor_SealAfterReload(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// A fresh encryptor reads the recipient from disk.
	reloaded := NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  e.publicKeyPath,
		PrivateKeyPath: e.privateKeyPath,
	})
	input := []byte("1\t0\tbob-id-3\tbob-text-3\n")
	encrypted := seal(t, reloaded, input)

	ctx, err := e.Unlock("test-passphrase")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var decrypted bytes.Buffer
	if err := ctx.Decrypt(bytes.NewReader(encrypted), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), input) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), input)
	}
}

func TestAgeDecryptionContext_RejectsPlaintext(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	ctx, err := e.Unlock("test-passphrase")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var out bytes.Buffer
	if err := ctx.Decrypt(strings.NewReader("0\tNone\ta\tb\n"), &out); err == nil {
		t.Error("Decrypt() of plaintext should return error")
	}
}

func TestAgeEncryptor_SealBeforeSetup(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	var buf bytes.Buffer
	if _, err := e.Seal(&buf); err == nil {
		t.Error("Seal() before Setup should return error")
	}
}

func TestAgeEncryptor_UnlockBeforeSetup(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if _, err := e.Unlock("passphrase"); err == nil {
		t.Error("Unlock() before Setup should return error")
	}
}
