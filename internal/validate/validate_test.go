// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://example.com", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
		{"with path", "http://example.com/path", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":8080", false},
		{"127.0.0.1:8080", false},
		{"[::1]:8080", false},
		{"8080", true},
		{"localhost:", true},
		{"", true},
	}
	for _, tt := range tests {
		v := New()
		v.ListenAddr("addr", tt.addr)
		if got := !v.IsValid(); got != tt.wantErr {
			t.Errorf("ListenAddr(%q) error = %v, want %v", tt.addr, got, tt.wantErr)
		}
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below min", 0, 1, 10, true},
		{"above max", 11, 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("testRange", tt.value, tt.min, tt.max)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Range(%d, %d, %d) valid = %v", tt.value, tt.min, tt.max, v.IsValid())
			}
		})
	}
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()

	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		mustExist bool
		wantErr   bool
	}{
		{"existing", root, true, false},
		{"created", filepath.Join(root, "new", "dir"), false, false},
		{"missing", filepath.Join(root, "missing"), true, true},
		{"file", file, false, true},
		{"traversal", root + "/../x", false, true},
		{"empty", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Directory("dir", tt.path, tt.mustExist)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Directory(%q) errors = %v", tt.path, v.Errors())
			}
		})
	}

	if _, err := os.Stat(filepath.Join(root, "new", "dir")); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}

func TestValidator_Scalars(t *testing.T) {
	v := New()
	v.NotEmpty("a", "  ")
	v.OneOf("b", "gcs", []string{"s3", "fs"})
	v.Positive("c", 0)
	v.NonNegative("d", -1)
	v.PositiveDuration("e", 0)
	v.MinLength("f", "short", 16)
	v.Custom("g", 3, func(any) error { return errors.New("nope") })

	if got := len(v.Errors()); got != 7 {
		t.Fatalf("got %d errors, want 7: %v", got, v.Errors())
	}

	ok := New()
	ok.NotEmpty("a", "x")
	ok.OneOf("b", "fs", []string{"s3", "fs"})
	ok.Positive("c", 1)
	ok.NonNegative("d", 0)
	ok.PositiveDuration("e", time.Second)
	ok.MinLength("f", "0123456789abcdef", 16)
	if !ok.IsValid() {
		t.Fatalf("unexpected errors: %v", ok.Errors())
	}
}

func TestValidationError_CollectsAll(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("empty validator must return nil error")
	}
	v.AddError("a", "bad", 1)
	v.AddError("b", "worse", 2)

	err := v.Err()
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error %T is not a ValidationError", err)
	}
	if len(ve.Errors()) != 2 {
		t.Fatalf("got %d errors, want 2", len(ve.Errors()))
	}
	if !strings.Contains(err.Error(), "a: bad") || !strings.Contains(err.Error(), "b: worse") {
		t.Errorf("message %q misses a field", err.Error())
	}

	// later additions do not leak into an already returned error
	v.AddError("c", "late", 3)
	if len(ve.Errors()) != 2 {
		t.Error("returned error was mutated")
	}
}
