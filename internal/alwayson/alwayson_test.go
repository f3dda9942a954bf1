package alwayson

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vpn-tunnel/internal/profile"
)

type failingStore struct {
	profile.Store
	saveErr   error
	reloadErr error
}

func (s *failingStore) Save(ctx context.Context, p *profile.Profile) error {
	if s.saveErr != nil {
		return &profile.SaveError{Reason: s.saveErr}
	}
	return s.Store.Save(ctx, p)
}

func (s *failingStore) Reload(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	if s.reloadErr != nil {
		return nil, &profile.LoadError{Reason: s.reloadErr}
	}
	return s.Store.Reload(ctx, p)
}

func TestApply_Idempotent(t *testing.T) {
	p := profile.New()

	Apply(p, true)
	Apply(p, true)
	require.Len(t, p.OnDemandRules, 1)
	assert.Equal(t, Rule, p.OnDemandRules[0])
	assert.True(t, Enabled(p))
	assert.True(t, HasRules(p))

	Apply(p, false)
	Apply(p, false)
	assert.Empty(t, p.OnDemandRules)
	assert.False(t, Enabled(p))
	assert.False(t, HasRules(p))

	Apply(nil, true)
	assert.False(t, Enabled(nil))
	assert.False(t, HasRules(nil))
}

func TestPolicy_SetPersists(t *testing.T) {
	ctx := context.Background()
	store := profile.NewYAMLStore(filepath.Join(t.TempDir(), "profiles.yaml"))
	pol := New(store)

	p := store.Create()
	on := pol.Set(ctx, p, true)
	on = pol.Set(ctx, on, true)
	require.Len(t, on.OnDemandRules, 1)
	assert.True(t, on.OnDemandEnabled)
	assert.Empty(t, p.OnDemandRules, "input profile must not be mutated")

	stored, err := store.Reload(ctx, p)
	require.NoError(t, err)
	assert.Len(t, stored.OnDemandRules, 1)

	off := pol.Set(ctx, on, false)
	assert.Empty(t, off.OnDemandRules)
	assert.False(t, off.OnDemandEnabled)
}

func TestPolicy_SetFailureKeepsProfile(t *testing.T) {
	ctx := context.Background()
	base := profile.NewYAMLStore(filepath.Join(t.TempDir(), "profiles.yaml"))

	tests := []struct {
		name  string
		store *failingStore
	}{
		{"save", &failingStore{Store: base, saveErr: errors.New("disk full")}},
		{"reload", &failingStore{Store: base, reloadErr: errors.New("gone")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base.Create()
			got := New(tt.store).Set(ctx, p, true)
			assert.Same(t, p, got)
			assert.False(t, Enabled(got))
		})
	}

	assert.Nil(t, New(base).Set(ctx, nil, true))
}
