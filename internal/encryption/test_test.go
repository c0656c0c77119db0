package encryption

import (
	"bytes"
	"errors"
	"testing"
)

// closeRecorder is a buffer that notices being closed.
type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestTestEncryptor_SealedWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{name: "single write", writes: []string{"0\tNone\ta\tb\n"}, want: "0\tNone\ta\tb\n"},
		{name: "multiple writes", writes: []string{"0\t", "None\t", "a\tb\n"}, want: "0\tNone\ta\tb\n"},
		{name: "empty writes", writes: []string{"", "x", ""}, want: "x"},
		{name: "no writes", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out closeRecorder
			w, err := NewTestEncryptor().Seal(&out)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			for _, s := range tt.writes {
				if _, err := w.Write([]byte(s)); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			if out.closed {
				t.Error("Close() closed the underlying writer")
			}
			if got := out.String(); got != string(testHeader)+tt.want {
				t.Errorf("sealed = %q, want header + %q", got, tt.want)
			}
			if bytes.Count(out.Bytes(), testHeader) != 1 {
				t.Errorf("sealed = %q, want exactly one header", out.String())
			}

			if _, err := w.Write([]byte("late")); !errors.Is(err, errWriteAfterClose) {
				t.Errorf("Write() after Close error = %v, want errWriteAfterClose", err)
			}
			if err := w.Close(); err != nil {
				t.Errorf("second Close() error = %v", err)
			}
		})
	}
}

func TestTestEncryptor_SealDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "dataset line", input: []byte("3\t7\tfield\ttext\n")},
		{name: "empty", input: []byte{}},
		{name: "gzip magic", input: []byte{0x1f, 0x8b, 0x08, 0x00}},
		{name: "large", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()
			sealed := seal(t, e, tt.input)

			dc, err := e.Unlock("any-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dc.Decrypt(bytes.NewReader(sealed), &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("Decrypt() = %q, want %q", plain.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_UnlockAfterSetup(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}

	if _, err := e.Unlock("correct horse"); err != nil {
		t.Errorf("Unlock(correct) error = %v", err)
	}
	if _, err := e.Unlock("battery staple"); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("Unlock(wrong) error = %v, want ErrBadPassphrase", err)
	}
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "wrong header", input: []byte("NOTENC\x00\x00payload")},
		{name: "truncated header", input: testHeader[:3]},
		{name: "empty", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			if err := (&TestDecryptionContext{}).Decrypt(bytes.NewReader(tt.input), &out); err == nil {
				t.Error("Decrypt() expected error, got nil")
			}
			if out.Len() != 0 {
				t.Errorf("Decrypt() wrote %q on bad input", out.String())
			}
		})
	}
}
