package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDiscoveryObjectID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"raspberrypi", true},
		{"raspberry-pi_2", true},
		{"HOST42", true},
		{"", false},
		{"fancy host", false},
		{"host/name", false},
		{"host.name", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ValidateDiscoveryObjectID(tt.id); got != tt.want {
				t.Errorf("ValidateDiscoveryObjectID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestSanitizeDiscoveryObjectID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"raspberrypi", "raspberrypi"},
		{"my host.local", "my-host-local"},
		{"", AppName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeDiscoveryObjectID(tt.name); got != tt.want {
				t.Errorf("sanitizeDiscoveryObjectID(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestTrimPasswordNewline(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{"no newline", "secret", "secret"},
		{"unix newline", "secret\n", "secret"},
		{"windows newline", "secret\r\n", "secret"},
		{"only last newline stripped", "secret\n\n", "secret\n"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimPasswordNewline(tt.password); got != tt.want {
				t.Errorf("trimPasswordNewline(%q) = %q, want %q", tt.password, got, tt.want)
			}
		})
	}
}

func TestReadPasswordFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	password, err := readPasswordFile(path)
	if err != nil {
		t.Fatalf("readPasswordFile() error: %v", err)
	}
	if password != "hunter2" {
		t.Errorf("readPasswordFile() = %q, want %q", password, "hunter2")
	}
}

func TestReadPasswordFile_Missing(t *testing.T) {
	if _, err := readPasswordFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("readPasswordFile() should fail for a missing file")
	}
}
