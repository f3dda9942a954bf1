package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const yamlStoreVersion = 1

type yamlDocument struct {
	Version  int        `yaml:"version"`
	Profiles []*Profile `yaml:"profiles"`
}

// YAMLStore keeps profiles in a single YAML file.
type YAMLStore struct {
	mu   sync.Mutex
	path string
}

// NewYAMLStore creates a store backed by path. The file is created on the
// first Save.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// LoadAll reads every profile in the file.
func (s *YAMLStore) LoadAll(ctx context.Context) ([]*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return doc.Profiles, nil
}

// Create returns an empty, unsaved profile.
func (s *YAMLStore) Create() *Profile {
	return New()
}

// Save inserts or replaces p by ID.
func (s *YAMLStore) Save(ctx context.Context, p *Profile) error {
	if p == nil {
		return &SaveError{Reason: fmt.Errorf("nil profile")}
	}
	if err := ctx.Err(); err != nil {
		return &SaveError{Reason: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return &SaveError{Reason: err}
	}

	stored := p.Clone()
	stored.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	replaced := false
	for i, existing := range doc.Profiles {
		if existing.ID == p.ID {
			doc.Profiles[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Profiles = append(doc.Profiles, stored)
	}

	if err := s.writeUnsafe(doc); err != nil {
		return &SaveError{Reason: err}
	}
	return nil
}

// Reload returns the stored copy of p.
func (s *YAMLStore) Reload(ctx context.Context, p *Profile) (*Profile, error) {
	if p == nil {
		return nil, &LoadError{Reason: ErrNotFound}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Reason: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readUnsafe()
	if err != nil {
		return nil, &LoadError{Reason: err}
	}
	for _, existing := range doc.Profiles {
		if existing.ID == p.ID {
			return existing, nil
		}
	}
	return nil, &LoadError{Reason: ErrNotFound}
}

func (s *YAMLStore) readUnsafe() (*yamlDocument, error) {
	doc := &yamlDocument{Version: yamlStoreVersion}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return doc, nil
}

func (s *YAMLStore) writeUnsafe(doc *yamlDocument) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace profiles: %w", err)
	}
	return nil
}
