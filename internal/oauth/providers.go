package oauth

import (
	"encoding/json"
	"strconv"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
)

const (
	githubProfileURL   = "https://api.github.com/user"
	twitterProfileURL  = "https://api.twitter.com/2/users/me"
	facebookProfileURL = "https://graph.facebook.com/me?fields=id,name,link"
)

var twitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// NewGitHub configures the GitHub provider.
func NewGitHub(cfg ClientConfig) (Provider, error) {
	return newClientProvider(users.ProviderGitHub, cfg, github.Endpoint, []string{"read:user"}, githubProfileURL, decodeGitHubProfile)
}

// NewTwitter configures the Twitter (X) OAuth 2.0 provider.
func NewTwitter(cfg ClientConfig) (Provider, error) {
	return newClientProvider(users.ProviderTwitter, cfg, twitterEndpoint, []string{"users.read", "tweet.read"}, twitterProfileURL, decodeTwitterProfile)
}

// NewFacebook configures the Facebook provider.
func NewFacebook(cfg ClientConfig) (Provider, error) {
	return newClientProvider(users.ProviderFacebook, cfg, facebook.Endpoint, []string{"public_profile"}, facebookProfileURL, decodeFacebookProfile)
}

// New configures the provider with the given name.
func New(name users.Provider, cfg ClientConfig) (Provider, error) {
	switch name {
	case users.ProviderGitHub:
		return NewGitHub(cfg)
	case users.ProviderTwitter:
		return NewTwitter(cfg)
	case users.ProviderFacebook:
		return NewFacebook(cfg)
	default:
		return nil, users.ErrUnknownProvider
	}
}

type githubUser struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	HTMLURL string `json:"html_url"`
}

func decodeGitHubProfile(body []byte) (users.Profile, error) {
	var payload githubUser
	if err := json.Unmarshal(body, &payload); err != nil {
		return users.Profile{}, err
	}
	uid := ""
	if payload.ID != 0 {
		uid = strconv.FormatInt(payload.ID, 10)
	}
	return users.Profile{
		UID:         uid,
		Login:       payload.Login,
		DisplayName: payload.Name,
		Email:       payload.Email,
		ProfileURL:  payload.HTMLURL,
	}, nil
}

type twitterUserEnvelope struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"data"`
}

func decodeTwitterProfile(body []byte) (users.Profile, error) {
	var payload twitterUserEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return users.Profile{}, err
	}
	profileURL := ""
	if payload.Data.Username != "" {
		profileURL = "https://twitter.com/" + payload.Data.Username
	}
	return users.Profile{
		UID:         payload.Data.ID,
		Login:       payload.Data.Username,
		DisplayName: payload.Data.Name,
		ProfileURL:  profileURL,
	}, nil
}

type facebookUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Link string `json:"link"`
}

func decodeFacebookProfile(body []byte) (users.Profile, error) {
	var payload facebookUser
	if err := json.Unmarshal(body, &payload); err != nil {
		return users.Profile{}, err
	}
	return users.Profile{
		UID:         payload.ID,
		Login:       payload.Name,
		DisplayName: payload.Name,
		ProfileURL:  payload.Link,
	}, nil
}
