package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"golang.org/x/oauth2"
)

const (
	testClientID     = "client-id"
	testClientSecret = "client-secret"
	testAccessToken  = "access-token-1"
	testCode         = "auth-code"
)

type fakeProviderServer struct {
	server       *httptest.Server
	seenVerifier string
	profileBody  string
	profileCode  int
}

func newFakeProviderServer(t *testing.T, profileBody string) *fakeProviderServer {
	t.Helper()
	fake := &fakeProviderServer{profileBody: profileBody, profileCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != testCode {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		fake.seenVerifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + testAccessToken + `","token_type":"bearer"}`))
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fake.profileCode)
		_, _ = w.Write([]byte(fake.profileBody))
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeProviderServer) clientConfig() ClientConfig {
	return ClientConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  "http://localhost:8080/oauth/complete/test/",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   f.server.URL + "/authorize",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		ProfileURL: f.server.URL + "/profile",
		HTTPClient: f.server.Client(),
	}
}

func TestProvidersExchangeCodeForProfile(t *testing.T) {
	testCases := []struct {
		name        string
		build       func(ClientConfig) (Provider, error)
		body        string
		wantUID     string
		wantLogin   string
		wantProfile string
	}{
		{
			name:        "github",
			build:       NewGitHub,
			body:        `{"id":583231,"login":"octocat","name":"The Octocat","html_url":"https://github.com/octocat"}`,
			wantUID:     "583231",
			wantLogin:   "octocat",
			wantProfile: "https://github.com/octocat",
		},
		{
			name:        "twitter",
			build:       NewTwitter,
			body:        `{"data":{"id":"2244994945","username":"TwitterDev","name":"Twitter Dev"}}`,
			wantUID:     "2244994945",
			wantLogin:   "TwitterDev",
			wantProfile: "https://twitter.com/TwitterDev",
		},
		{
			name:        "facebook",
			build:       NewFacebook,
			body:        `{"id":"10158","name":"Mark Example","link":"https://facebook.com/app_scoped_user_id/10158/"}`,
			wantUID:     "10158",
			wantLogin:   "Mark Example",
			wantProfile: "https://facebook.com/app_scoped_user_id/10158/",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fake := newFakeProviderServer(t, testCase.body)
			provider, err := testCase.build(fake.clientConfig())
			if err != nil {
				t.Fatalf("failed to build provider: %v", err)
			}
			if provider.Name().String() != testCase.name {
				t.Fatalf("unexpected provider name %q", provider.Name())
			}

			verifier := GenerateVerifier()
			profile, err := provider.Exchange(context.Background(), testCode, verifier)
			if err != nil {
				t.Fatalf("exchange failed: %v", err)
			}
			if fake.seenVerifier != verifier {
				t.Fatalf("expected PKCE verifier to reach token endpoint, got %q", fake.seenVerifier)
			}
			if profile.UID != testCase.wantUID || profile.Login != testCase.wantLogin || profile.ProfileURL != testCase.wantProfile {
				t.Fatalf("unexpected profile: %+v", profile)
			}
			if profile.Provider.String() != testCase.name {
				t.Fatalf("expected provider to be stamped on profile, got %q", profile.Provider)
			}
			if profile.RawJSON != testCase.body {
				t.Fatalf("expected raw profile json to be kept")
			}
		})
	}
}

func TestProviderExchangeFailures(t *testing.T) {
	fake := newFakeProviderServer(t, `{"login":"ghost"}`)
	provider, err := NewGitHub(fake.clientConfig())
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}

	if _, err := provider.Exchange(context.Background(), "wrong-code", GenerateVerifier()); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected exchange failure for bad code, got %v", err)
	}
	if _, err := provider.Exchange(context.Background(), testCode, GenerateVerifier()); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected exchange failure for profile without id, got %v", err)
	}

	fake.profileBody = `{"id":1}`
	fake.profileCode = http.StatusForbidden
	if _, err := provider.Exchange(context.Background(), testCode, GenerateVerifier()); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected exchange failure for profile status, got %v", err)
	}
}

func TestAuthCodeURLCarriesStateAndChallenge(t *testing.T) {
	fake := newFakeProviderServer(t, `{}`)
	provider, err := NewTwitter(fake.clientConfig())
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}

	rawURL := provider.AuthCodeURL("nonce-1", GenerateVerifier())
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("state") != "nonce-1" {
		t.Fatalf("expected state in auth url, got %q", query.Get("state"))
	}
	if query.Get("code_challenge") == "" || query.Get("code_challenge_method") != "S256" {
		t.Fatalf("expected S256 challenge in auth url: %s", rawURL)
	}
	if query.Get("client_id") != testClientID {
		t.Fatalf("unexpected client id %q", query.Get("client_id"))
	}
	if query.Get("scope") != "users.read tweet.read" {
		t.Fatalf("unexpected scope %q", query.Get("scope"))
	}
}

func TestNewProviderRequiresCredentials(t *testing.T) {
	if _, err := NewGitHub(ClientConfig{ClientSecret: "s", RedirectURL: "http://x/"}); !errors.Is(err, errMissingClientID) {
		t.Fatalf("expected missing client id error, got %v", err)
	}
	if _, err := NewGitHub(ClientConfig{ClientID: "c", RedirectURL: "http://x/"}); !errors.Is(err, errMissingClientSecret) {
		t.Fatalf("expected missing client secret error, got %v", err)
	}
	if _, err := NewGitHub(ClientConfig{ClientID: "c", ClientSecret: "s"}); !errors.Is(err, errMissingRedirectURL) {
		t.Fatalf("expected missing redirect error, got %v", err)
	}
	if _, err := New(users.Provider("myspace"), ClientConfig{}); !errors.Is(err, users.ErrUnknownProvider) {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestBuildRegistryEnablesConfiguredProviders(t *testing.T) {
	registry, err := BuildRegistry("https://linkdeck.example.com/", map[users.Provider]Credentials{
		users.ProviderFacebook: {ClientID: "fb", ClientSecret: "fb-secret"},
		users.ProviderGitHub:   {ClientID: "gh", ClientSecret: "gh-secret"},
		users.ProviderTwitter:  {ClientID: "tw"},
	}, nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	enabled := registry.Enabled()
	if len(enabled) != 2 || enabled[0] != users.ProviderGitHub || enabled[1] != users.ProviderFacebook {
		t.Fatalf("unexpected enabled providers: %v", enabled)
	}
	if _, ok := registry.Get(users.ProviderTwitter); ok {
		t.Fatalf("expected twitter without secret to be disabled")
	}

	provider, ok := registry.Get(users.ProviderGitHub)
	if !ok {
		t.Fatalf("expected github provider")
	}
	parsed, err := url.Parse(provider.AuthCodeURL("s", GenerateVerifier()))
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	if got := parsed.Query().Get("redirect_uri"); got != "https://linkdeck.example.com/oauth/complete/github/" {
		t.Fatalf("unexpected redirect uri %q", got)
	}
}
