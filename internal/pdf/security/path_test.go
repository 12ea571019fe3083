package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewPathValidator(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name      string
		dir       string
		wantError bool
	}{
		{name: "existing directory", dir: tempDir},
		{name: "empty directory", dir: "", wantError: true},
		{name: "blank directory", dir: "   ", wantError: true},
		{name: "directory created later", dir: filepath.Join(tempDir, "later")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, err := NewPathValidator(tt.dir)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !filepath.IsAbs(validator.Root()) {
				t.Errorf("Root() = %q, want an absolute path", validator.Root())
			}
		})
	}
}

func TestPathValidator_Resolve(t *testing.T) {
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "templates")
	if err := os.MkdirAll(filepath.Join(root, "permits"), 0o755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "permits", "hot-work.pdf"), []byte("%PDF"), 0o600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	validator, err := NewPathValidator(root)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		want      string
		wantError bool
	}{
		{name: "relative id", path: "permits/hot-work.pdf", want: filepath.Join(root, "permits", "hot-work.pdf")},
		{name: "absolute inside", path: filepath.Join(root, "permits", "hot-work.pdf"), want: filepath.Join(root, "permits", "hot-work.pdf")},
		{name: "file not created yet", path: "out/new.pdf", want: filepath.Join(root, "out", "new.pdf")},
		{name: "root itself", path: root, want: root},
		{name: "null bytes removed", path: "permits/hot-work.pdf\x00", want: filepath.Join(root, "permits", "hot-work.pdf")},
		{name: "empty", path: "", wantError: true},
		{name: "parent traversal", path: "../secret.pdf", wantError: true},
		{name: "nested traversal", path: "permits/../../secret.pdf", wantError: true},
		{name: "absolute outside", path: filepath.Join(tempDir, "secret.pdf"), wantError: true},
		{name: "sibling with common prefix", path: root + "-old/x.pdf", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.Resolve(tt.path)
			if tt.wantError {
				if err == nil {
					t.Errorf("Resolve(%q) = %q, expected error", tt.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestPathValidator_SymlinkEscape(t *testing.T) {
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "templates")
	outside := filepath.Join(tempDir, "outside")
	for _, dir := range []string{root, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("%PDF"), 0o600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	validator, err := NewPathValidator(root)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	if _, err := validator.Resolve("link/secret.pdf"); err == nil {
		t.Error("expected a path through a symlink leaving the root to be rejected")
	}
	if _, err := validator.Resolve("link/not-yet.pdf"); err == nil {
		t.Error("expected a new file below an escaping symlink to be rejected")
	}
}

func TestPathValidator_Rel(t *testing.T) {
	validator, err := NewPathValidator(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	got := validator.Rel(filepath.Join(validator.Root(), "permits", "hot-work.pdf"))
	if got != "permits/hot-work.pdf" {
		t.Errorf("Rel() = %q, want %q", got, "permits/hot-work.pdf")
	}
}
