package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testOwner = "com.example.tunnel.provider"

func sampleProfile() *Profile {
	p := New()
	p.Name = "VPN Tunnel"
	p.Enabled = true
	p.OnDemandEnabled = true
	p.OnDemandRules = []OnDemandRule{{Action: ActionConnect, InterfaceTypeMatch: InterfaceTypeAny}}
	p.Protocol = &ProtocolConfiguration{
		ProviderID:         testOwner,
		ServerAddress:      "5.6.7.8:51820",
		ConfigRef:          NewRef(),
		IncludeAllNetworks: true,
	}
	return p
}

func TestClone_IsDeep(t *testing.T) {
	p := sampleProfile()
	c := p.Clone()
	require.Equal(t, p, c)

	c.OnDemandRules[0].Action = "disconnect"
	c.Protocol.ServerAddress = "1.1.1.1:1"
	assert.Equal(t, ActionConnect, p.OnDemandRules[0].Action)
	assert.Equal(t, "5.6.7.8:51820", p.Protocol.ServerAddress)

	var nilProfile *Profile
	assert.Nil(t, nilProfile.Clone())
}

func TestConfigRef(t *testing.T) {
	var nilProfile *Profile
	assert.Empty(t, nilProfile.ConfigRef())
	assert.Empty(t, New().ConfigRef())

	p := sampleProfile()
	assert.Equal(t, p.Protocol.ConfigRef, p.ConfigRef())
}

func TestSelectOwned(t *testing.T) {
	foreign := sampleProfile()
	foreign.Protocol.ProviderID = "com.other.app"
	noProtocol := New()
	emptyProvider := sampleProfile()
	emptyProvider.Protocol.ProviderID = ""
	owned := sampleProfile()
	second := sampleProfile()

	tests := []struct {
		name     string
		profiles []*Profile
		want     *Profile
	}{
		{"empty", nil, nil},
		{"only foreign", []*Profile{foreign, noProtocol, emptyProvider}, nil},
		{"skips invalid", []*Profile{nil, noProtocol, emptyProvider, foreign, owned}, owned},
		{"first wins", []*Profile{owned, second}, owned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, SelectOwned(tt.profiles, testOwner))
		})
	}
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"yaml":   NewYAMLStore(filepath.Join(dir, "profiles.yaml")),
		"sqlite": sqlite,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			all, err := store.LoadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			p := sampleProfile()
			require.NoError(t, store.Save(ctx, p))

			got, err := store.Reload(ctx, p)
			require.NoError(t, err)
			assert.False(t, got.UpdatedAt.IsZero())

			want := p.Clone()
			want.UpdatedAt = got.UpdatedAt
			assert.Equal(t, want, got)

			all, err = store.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, got, all[0])
		})
	}
}

func TestStore_SaveReplacesByID(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			first := sampleProfile()
			other := sampleProfile()
			require.NoError(t, store.Save(ctx, first))
			require.NoError(t, store.Save(ctx, other))

			updated := first.Clone()
			updated.OnDemandEnabled = false
			updated.OnDemandRules = nil
			require.NoError(t, store.Save(ctx, updated))

			all, err := store.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)
			assert.False(t, all[0].OnDemandEnabled)
			assert.Empty(t, all[0].OnDemandRules)
			assert.Equal(t, other.ID, all[1].ID)
		})
	}
}

func TestStore_ReloadUnknown(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Reload(ctx, store.Create())

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CreateIsUnsaved(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			p := store.Create()
			assert.NotEmpty(t, p.ID)
			assert.Nil(t, p.Protocol)

			all, err := store.LoadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestYAMLStore_Unavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [unterminated"), 0600))

	store := NewYAMLStore(path)
	_, err := store.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = store.Save(context.Background(), sampleProfile())
	var saveErr *SaveError
	assert.True(t, errors.As(err, &saveErr))
}

func TestYAMLStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewYAMLStore(filepath.Join(t.TempDir(), "profiles.yaml"))
	_, err := store.LoadAll(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.Save(ctx, sampleProfile()), context.Canceled)
}

func TestKeyringVault(t *testing.T) {
	keyring.MockInit()
	v := NewKeyringVault("")
	assert.Equal(t, DefaultVaultService, v.Service)

	ref := NewRef()
	_, err := v.Get(ref)
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, v.Put(ref, "[Interface]\n"))
	got, err := v.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "[Interface]\n", got)

	require.NoError(t, v.Delete(ref))
	require.NoError(t, v.Delete(ref))
	_, err = v.Get(ref)
	assert.ErrorIs(t, err, ErrSecretNotFound)

	assert.Error(t, v.Put("", "x"))
	assert.NoError(t, v.Delete(""))
}

func TestFileVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "vault")
	v, err := NewFileVault(path)
	require.NoError(t, err)

	ref := NewRef()
	_, err = v.Get(ref)
	assert.ErrorIs(t, err, ErrSecretNotFound)
	require.NoError(t, v.Put(ref, "[Interface]\nPrivateKey = secret\n"))
	require.NoError(t, v.Delete("missing"))
	assert.Error(t, v.Put("", "x"))

	for _, p := range []string{path, path + ".key"} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), p)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	reopened, err := NewFileVault(path)
	require.NoError(t, err)
	got, err := reopened.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "[Interface]\nPrivateKey = secret\n", got)

	require.NoError(t, reopened.Delete(ref))
	again, err := NewFileVault(path)
	require.NoError(t, err)
	_, err = again.Get(ref)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestFileVault_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault")
	_, err := NewFileVault(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("garbage that is long enough to hold a nonce"), 0600))
	_, err = NewFileVault(path)
	assert.Error(t, err)
}

func TestOpenVault(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		backend    string
		keyringErr error
		want       interface{}
		wantErr    bool
	}{
		{"auto with keyring", VaultAuto, nil, &KeyringVault{}, false},
		{"auto without keyring", VaultAuto, errors.New("org.freedesktop.secrets was not provided"), &FileVault{}, false},
		{"empty means auto", "", errors.New("no session bus"), &FileVault{}, false},
		{"keyring forced", VaultKeyring, errors.New("no session bus"), &KeyringVault{}, false},
		{"file forced", VaultFile, nil, &FileVault{}, false},
		{"unknown", "bolt", nil, nil, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.keyringErr != nil {
				keyring.MockInitWithError(tt.keyringErr)
			} else {
				keyring.MockInit()
			}

			v, err := OpenVault(tt.backend, "", filepath.Join(dir, fmt.Sprintf("vault-%d", i)))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, v)
		})
	}
}

func TestOpenVault_FallbackStoresConfigurations(t *testing.T) {
	keyring.MockInitWithError(errors.New("no session bus"))
	v, err := OpenVault(VaultAuto, "", filepath.Join(t.TempDir(), "vault"))
	require.NoError(t, err)

	ref := NewRef()
	require.NoError(t, v.Put(ref, "[Peer]\n"))
	got, err := v.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "[Peer]\n", got)
}
