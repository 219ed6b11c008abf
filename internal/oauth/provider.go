// Package oauth wraps golang.org/x/oauth2 for the identity providers users can link.
// Providers return normalized profiles only; linking and sessions live elsewhere.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"golang.org/x/oauth2"
)

const maxProfileBytes = 1 << 20

var (
	errMissingClientID     = errors.New("oauth: client id required")
	errMissingClientSecret = errors.New("oauth: client secret required")
	errMissingRedirectURL  = errors.New("oauth: redirect url required")
	// ErrExchangeFailed wraps failures talking to the provider during the callback.
	ErrExchangeFailed = errors.New("oauth: exchange failed")
)

// Provider is one configured external identity service.
type Provider interface {
	Name() users.Provider
	// AuthCodeURL returns the provider consent URL for the state nonce and PKCE verifier.
	AuthCodeURL(state, verifier string) string
	// Exchange trades the authorization code for a token and fetches the account profile.
	Exchange(ctx context.Context, code, verifier string) (users.Profile, error)
}

// ClientConfig carries the client registration and optional endpoint overrides.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint and ProfileURL override the provider defaults when set.
	Endpoint   *oauth2.Endpoint
	ProfileURL string
	HTTPClient *http.Client
}

type profileDecoder func(body []byte) (users.Profile, error)

type clientProvider struct {
	name       users.Provider
	config     *oauth2.Config
	profileURL string
	decode     profileDecoder
	httpClient *http.Client
}

func newClientProvider(name users.Provider, cfg ClientConfig, endpoint oauth2.Endpoint, scopes []string, profileURL string, decode profileDecoder) (Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%s: %w", name, errMissingClientID)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%s: %w", name, errMissingClientSecret)
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, fmt.Errorf("%s: %w", name, errMissingRedirectURL)
	}
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if cfg.ProfileURL != "" {
		profileURL = cfg.ProfileURL
	}
	return &clientProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		profileURL: profileURL,
		decode:     decode,
		httpClient: cfg.HTTPClient,
	}, nil
}

func (p *clientProvider) Name() users.Provider {
	return p.name
}

func (p *clientProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	)
}

func (p *clientProvider) Exchange(ctx context.Context, code, verifier string) (users.Profile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return users.Profile{}, fmt.Errorf("%w: %s token: %v", ErrExchangeFailed, p.name, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return users.Profile{}, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := p.config.Client(ctx, token).Do(request)
	if err != nil {
		return users.Profile{}, fmt.Errorf("%w: %s profile: %v", ErrExchangeFailed, p.name, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return users.Profile{}, fmt.Errorf("%w: %s profile returned status %d", ErrExchangeFailed, p.name, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxProfileBytes))
	if err != nil {
		return users.Profile{}, err
	}

	profile, err := p.decode(body)
	if err != nil {
		return users.Profile{}, fmt.Errorf("%w: %s profile: %v", ErrExchangeFailed, p.name, err)
	}
	if strings.TrimSpace(profile.UID) == "" {
		return users.Profile{}, fmt.Errorf("%w: %s profile missing id", ErrExchangeFailed, p.name)
	}
	profile.Provider = p.name
	profile.RawJSON = string(body)
	return profile, nil
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}
