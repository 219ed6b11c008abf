// Package identities builds the linked-identity summary shown on the settings page.
package identities

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"golang.org/x/sync/errgroup"
)

var errMissingStore = errors.New("identities: identity store required")

// Store is the read access the builder needs into linked identities.
type Store interface {
	FindIdentity(ctx context.Context, userID string, provider users.Provider) (users.LinkedIdentity, bool, error)
	CountIdentities(ctx context.Context, userID string) (int64, error)
}

// Summary describes which providers a user linked and whether any may be disconnected.
// A nil identity means the provider is not linked.
type Summary struct {
	GitHubLogin   *users.LinkedIdentity
	TwitterLogin  *users.LinkedIdentity
	FacebookLogin *users.LinkedIdentity
	CanDisconnect bool
}

// ViewModel returns the template data for the settings page.
func (s Summary) ViewModel() map[string]any {
	return map[string]any{
		"github_login":   s.GitHubLogin,
		"twitter_login":  s.TwitterLogin,
		"facebook_login": s.FacebookLogin,
		"can_disconnect": s.CanDisconnect,
	}
}

// Linked returns the identity for the provider, or nil when absent.
func (s Summary) Linked(provider users.Provider) *users.LinkedIdentity {
	switch provider {
	case users.ProviderGitHub:
		return s.GitHubLogin
	case users.ProviderTwitter:
		return s.TwitterLogin
	case users.ProviderFacebook:
		return s.FacebookLogin
	default:
		return nil
	}
}

// Builder produces summaries from an identity store.
type Builder struct {
	store Store
}

// NewBuilder constructs a Builder.
func NewBuilder(store Store) (*Builder, error) {
	if store == nil {
		return nil, errMissingStore
	}
	return &Builder{store: store}, nil
}

// Build looks up the user's identity at each provider and computes CanDisconnect.
// A user keeps at least one way to sign in: another linked identity or a usable password.
func (b *Builder) Build(ctx context.Context, user users.User) (Summary, error) {
	var (
		summary Summary
		count   int64
	)
	slots := map[users.Provider]**users.LinkedIdentity{
		users.ProviderGitHub:   &summary.GitHubLogin,
		users.ProviderTwitter:  &summary.TwitterLogin,
		users.ProviderFacebook: &summary.FacebookLogin,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for provider, slot := range slots {
		group.Go(func() error {
			identity, found, err := b.store.FindIdentity(groupCtx, user.ID, provider)
			if err != nil {
				return err
			}
			if found {
				*slot = &identity
			}
			return nil
		})
	}
	group.Go(func() error {
		total, err := b.store.CountIdentities(groupCtx, user.ID)
		count = total
		return err
	})
	if err := group.Wait(); err != nil {
		return Summary{}, err
	}

	summary.CanDisconnect = count > 1 || user.HasUsablePassword()
	return summary, nil
}
