package templates

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

//go:embed claims/*.yaml
var embedded embed.FS

type templateFile struct {
	ClaimType domain.ClaimType `yaml:"claimType"`
	Fields    map[string]any   `yaml:"fields"`
}

// Store serves claim form templates loaded once from YAML.
type Store struct {
	templates map[domain.ClaimType]map[string]any
}

// New loads the built-in templates.
func New() (*Store, error) {
	return Load(embedded, "claims")
}

// Load reads every *.yaml file in dir. Each file names its claim type.
func Load(fsys fs.FS, dir string) (*Store, error) {
	entries, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list schema templates: %w", err)
	}
	store := &Store{templates: make(map[domain.ClaimType]map[string]any, len(entries))}
	for _, name := range entries {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read schema template %s: %w", name, err)
		}
		var file templateFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse schema template %s: %w", name, err)
		}
		claimType, err := domain.ParseClaimType(string(file.ClaimType))
		if err != nil {
			return nil, fmt.Errorf("schema template %s: %w", name, err)
		}
		if len(file.Fields) == 0 {
			return nil, fmt.Errorf("schema template %s has no fields", name)
		}
		if _, dup := store.templates[claimType]; dup {
			return nil, fmt.Errorf("schema template %s duplicates %s", name, claimType)
		}
		store.templates[claimType] = file.Fields
	}
	return store, nil
}

// Template returns the stored template. Callers clone before mutating.
func (s *Store) Template(_ context.Context, claimType domain.ClaimType) (map[string]any, error) {
	template, ok := s.templates[claimType]
	if !ok {
		return nil, domain.WrapError(domain.ErrSchemaNotFound, "schema template", fmt.Errorf("claim type %s", claimType))
	}
	return template, nil
}
