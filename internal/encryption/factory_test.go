package encryption

import (
	"testing"

	"compsynth/internal/config"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantAge bool
		wantErr bool
	}{
		{name: "default is age", typ: "", wantAge: true},
		{name: "age", typ: "age", wantAge: true},
		{name: "test", typ: "test"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Error("NewEncryptorFromConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}

			_, isAge := got.(*AgeEncryptor)
			if isAge != tt.wantAge {
				t.Errorf("NewEncryptorFromConfig() age = %v, want %v", isAge, tt.wantAge)
			}
		})
	}
}
