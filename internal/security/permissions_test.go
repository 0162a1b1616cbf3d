package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fullsync.log")

	f, err := OpenAppendFile(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenAppendFile() error = %v", err)
	}
	f.WriteString("one\n")
	f.Close()

	f, err = OpenAppendFile(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenAppendFile() second open error = %v", err)
	}
	f.WriteString("two\n")
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("Expected appended content, got %q", data)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != PermLogFile {
		t.Errorf("Expected permissions %04o, got %04o", PermLogFile, info.Mode().Perm())
	}
}

func TestCreateSecureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := CreateSecureDir(dir, PermDirectory); err != nil {
		t.Fatalf("CreateSecureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("Expected directory to exist: %v", err)
	}
}

func TestIsWorldReadable(t *testing.T) {
	if !IsWorldReadable(0644) {
		t.Error("0644 should be world-readable")
	}
	if IsWorldReadable(0640) {
		t.Error("0640 should not be world-readable")
	}
}

func TestIsWorldWritable(t *testing.T) {
	if !IsWorldWritable(0666) {
		t.Error("0666 should be world-writable")
	}
	if IsWorldWritable(0644) {
		t.Error("0644 should not be world-writable")
	}
}

func TestValidateSecurePermissions(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		perm    os.FileMode
		wantErr bool
	}{
		{"owner only", 0600, false},
		{"group read", 0640, false},
		{"world readable", 0644, true},
		{"world writable", 0602, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte("secret: x"), 0600); err != nil {
				t.Fatalf("Failed to create file: %v", err)
			}
			if err := os.Chmod(path, tt.perm); err != nil {
				t.Fatalf("Failed to chmod: %v", err)
			}

			err := ValidateSecurePermissions(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecurePermissions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSecurePermissions_NonexistentFile(t *testing.T) {
	if err := ValidateSecurePermissions("/nonexistent/fullsync.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}
