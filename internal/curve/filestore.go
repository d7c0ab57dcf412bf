package curve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore persists one YAML file per pump type under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("curve file store: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("curve file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// LoadCurve reads and validates the YAML curve file for pumpType.
func (s *FileStore) LoadCurve(_ context.Context, pumpType string) (Curve, error) {
	data, err := os.ReadFile(s.path(pumpType))
	if err != nil {
		if os.IsNotExist(err) {
			return Curve{}, ErrCurveNotFound
		}
		return Curve{}, fmt.Errorf("read curve file: %w", err)
	}

	var raw Curve
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Curve{}, fmt.Errorf("parse curve file: %w", err)
	}

	// Re-validate on the way in; hand-edited files are not trusted.
	return New(pumpType, raw.Points)
}

// SaveCurve writes the curve atomically (temp file + rename).
func (s *FileStore) SaveCurve(_ context.Context, c Curve) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode curve: %w", err)
	}

	tmp := s.path(c.PumpType) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write curve file: %w", err)
	}
	if err := os.Rename(tmp, s.path(c.PumpType)); err != nil {
		return fmt.Errorf("install curve file: %w", err)
	}
	return nil
}

func (s *FileStore) path(pumpType string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, pumpType)
	return filepath.Join(s.dir, name+".yaml")
}

var _ Store = (*FileStore)(nil)
