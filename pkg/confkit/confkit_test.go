package confkit_test

import (
	"os"
	"path/filepath"
	"testing"

	"rotor-api/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		file     string
		expected string
		setupEnv map[string]string
	}{
		{
			name:     "absolute path",
			base:     "/srv/rotor",
			file:     "/etc/rotor/rotation.yaml",
			expected: "/etc/rotor/rotation.yaml",
		},
		{
			name:     "relative path",
			base:     "/srv/rotor",
			file:     "etc/rotation.yaml",
			expected: "/srv/rotor/etc/rotation.yaml",
		},
		{
			name:     "path with env var",
			base:     "/srv/rotor",
			file:     "$HOME/etc/rotation.yaml",
			expected: os.Getenv("HOME") + "/etc/rotation.yaml",
		},
		{
			name:     "relative path with env var",
			base:     "/srv/rotor",
			file:     "${ROTOR_CONF_DIR}/rotation.yaml",
			expected: "conf/rotation.yaml",
			setupEnv: map[string]string{"ROTOR_CONF_DIR": "conf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.setupEnv {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := confkit.ResolvePath(tt.base, tt.file)

			// Relative paths with env vars expand first, then join with base.
			if tt.setupEnv != nil && !filepath.IsAbs(tt.file) {
				expected := filepath.Join(tt.base, os.ExpandEnv(tt.file))
				if result != expected {
					t.Errorf("ResolvePath() = %v, want %v", result, expected)
				}
			} else if result != tt.expected {
				t.Errorf("ResolvePath() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestBaseDir(t *testing.T) {
	tests := []struct {
		name     string
		mainPath string
		expected string
	}{
		{
			name:     "simple path",
			mainPath: "/etc/rotor/rotor.yaml",
			expected: "/etc/rotor",
		},
		{
			name:     "root path",
			mainPath: "/rotor.yaml",
			expected: "/",
		},
		{
			name:     "relative path",
			mainPath: "etc/rotor.yaml",
			expected: "etc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := confkit.BaseDir(tt.mainPath)
			if result != tt.expected {
				t.Errorf("BaseDir() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSection_Hydrate(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		section := &confkit.Section[string]{}
		err := section.Hydrate("/base", func(path string) (*string, error) {
			t.Error("loader should not be called for empty file")
			return nil, nil
		})
		if err != nil {
			t.Errorf("Hydrate() with empty file should not error, got: %v", err)
		}
		if section.Value != nil {
			t.Error("Value should remain nil for empty file")
		}
	})

	t.Run("successful hydration", func(t *testing.T) {
		section := &confkit.Section[string]{File: "rotation.yaml"}
		expected := "loaded"

		err := section.Hydrate("/base", func(path string) (*string, error) {
			if path != "/base/rotation.yaml" {
				t.Errorf("loader received path %v, want /base/rotation.yaml", path)
			}
			return &expected, nil
		})

		if err != nil {
			t.Errorf("Hydrate() error = %v, want nil", err)
		}
		if section.Value == nil || *section.Value != expected {
			t.Errorf("Value = %v, want %v", section.Value, expected)
		}
		if section.File != "/base/rotation.yaml" {
			t.Errorf("File = %v, want /base/rotation.yaml", section.File)
		}
	})
}
