package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/vpn-tunnel/internal/logger"
)

// Sentinel errors for store operations.
var (
	ErrStoreUnavailable = errors.New("profile store unavailable")
	ErrNotFound         = errors.New("profile not found")
)

// SaveError is returned when a profile could not be written.
type SaveError struct {
	Reason error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save profile: %v", e.Reason)
}

func (e *SaveError) Unwrap() error {
	return e.Reason
}

// LoadError is returned when a profile could not be read back.
type LoadError struct {
	Reason error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load profile: %v", e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Reason
}

// Store persists tunnel profiles. A successful Save must be followed by Reload
// before the profile is used again; the reloaded value replaces the old one.
type Store interface {
	// LoadAll returns every stored profile. Failures wrap ErrStoreUnavailable.
	LoadAll(ctx context.Context) ([]*Profile, error)

	// Create returns an empty, unsaved profile.
	Create() *Profile

	// Save writes p. Failures are *SaveError.
	Save(ctx context.Context, p *Profile) error

	// Reload returns the stored copy of p. Failures are *LoadError.
	Reload(ctx context.Context, p *Profile) (*Profile, error)
}

// SelectOwned returns the first profile whose protocol configuration belongs
// to ownerID, or nil.
func SelectOwned(profiles []*Profile, ownerID string) *Profile {
	for _, p := range profiles {
		if p == nil || p.Protocol == nil {
			logger.Debug("Ignoring profile because the protocol is missing")
			continue
		}
		if p.Protocol.ProviderID == "" {
			logger.Debug("Ignoring profile %s because the provider identifier is empty", p.ID)
			continue
		}
		if p.Protocol.ProviderID != ownerID {
			logger.Debug("Ignoring profile %s because the provider identifier doesn't match", p.ID)
			continue
		}
		logger.Debug("Found the profile with the correct provider identifier: %s", ownerID)
		return p
	}
	return nil
}
