package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "exp"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing child", filepath.Join(root, "exp"), false},
		{"new file", filepath.Join(root, "exp", "run.csv"), false},
		{"new nested", filepath.Join(root, "a", "b", "c.csv"), false},
		{"parent", filepath.Join(root, ".."), true},
		{"dotdot escape", filepath.Join(root, "exp", "..", "..", "etc"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, root)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(link, "x.csv"), root); err == nil {
		t.Error("expected symlink escape to be rejected")
	}
}

func TestValidateArchiveEntry(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"best/best_model.json", "best/best_model.json", false},
		{"best/./README.txt", "best/README.txt", false},
		{"best/../best/x.csv", "best/x.csv", false},
		{"../evil", "", true},
		{"best/../../evil", "", true},
		{"/etc/passwd", "", true},
		{`best\..\evil`, "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateArchiveEntry(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateArchiveEntry(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateArchiveEntry(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"iris scan", "iris_scan"},
		{"../../etc", "etc"},
		{"a//b??c", "a_b_c"},
		{"keep-this_1.0", "keep-this_1.0"},
		{"", "unknown"},
		{"???", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
