package oauth

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
)

// Credentials is the client registration for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Registry holds the enabled providers keyed by name.
type Registry struct {
	providers map[users.Provider]Provider
}

// NewRegistry registers the given providers by name.
func NewRegistry(list ...Provider) *Registry {
	providers := make(map[users.Provider]Provider, len(list))
	for _, provider := range list {
		providers[provider.Name()] = provider
	}
	return &Registry{providers: providers}
}

// BuildRegistry enables every provider with credentials, redirecting back to
// <publicURL>/oauth/complete/<provider>/.
func BuildRegistry(publicURL string, credentials map[users.Provider]Credentials, httpClient *http.Client) (*Registry, error) {
	base := strings.TrimRight(publicURL, "/")
	list := make([]Provider, 0, len(credentials))
	for _, name := range users.Providers() {
		creds, ok := credentials[name]
		if !ok || creds.ClientID == "" || creds.ClientSecret == "" {
			continue
		}
		provider, err := New(name, ClientConfig{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  CallbackURL(base, name),
			HTTPClient:   httpClient,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, provider)
	}
	return NewRegistry(list...), nil
}

// CallbackURL returns the absolute redirect URI registered with the provider.
func CallbackURL(publicURL string, name users.Provider) string {
	return strings.TrimRight(publicURL, "/") + "/oauth/complete/" + name.String() + "/"
}

// Get returns the provider by name.
func (r *Registry) Get(name users.Provider) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	provider, ok := r.providers[name]
	return provider, ok
}

// Enabled lists the registered provider names in display order.
func (r *Registry) Enabled() []users.Provider {
	if r == nil {
		return nil
	}
	names := make([]users.Provider, 0, len(r.providers))
	for _, name := range users.Providers() {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
